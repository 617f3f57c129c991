package server

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/gocollab/pkg/datastore"
	"github.com/NicolasHaas/gocollab/pkg/model"
)

// BanYAML represents a ban in YAML export.
type BanYAML struct {
	IP        string `yaml:"ip"`
	Username  string `yaml:"username,omitempty"`
	Reason    string `yaml:"reason,omitempty"`
	BannedBy  string `yaml:"banned_by,omitempty"`
	ExpiresAt string `yaml:"expires_at,omitempty"`
	CreatedAt string `yaml:"created_at"`
}

// BansExport is the top-level YAML for ban export.
type BansExport struct {
	Bans []BanYAML `yaml:"bans"`
}

// AccountYAML represents an account in YAML export.
type AccountYAML struct {
	ID        int64  `yaml:"id"`
	Username  string `yaml:"username"`
	Rank      string `yaml:"rank"`
	CreatedAt string `yaml:"created_at"`
}

// AccountsExport is the top-level YAML for account export.
type AccountsExport struct {
	Accounts []AccountYAML `yaml:"accounts"`
}

// ExportBansYAML exports all bans as YAML.
func ExportBansYAML(ctx context.Context, st datastore.BanReadProvider) ([]byte, error) {
	bans, err := st.ListBans(ctx)
	if err != nil {
		return nil, fmt.Errorf("export bans: %w", err)
	}

	export := BansExport{}
	for _, b := range bans {
		entry := BanYAML{
			IP:        b.IP,
			Username:  b.Username,
			Reason:    b.Reason,
			BannedBy:  b.BannedBy,
			CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
		}
		if !b.ExpiresAt.IsZero() {
			entry.ExpiresAt = b.ExpiresAt.UTC().Format(time.RFC3339)
		}
		export.Bans = append(export.Bans, entry)
	}
	return yaml.Marshal(&export)
}

// ExportAccountsYAML exports all accounts as YAML.
func ExportAccountsYAML(ctx context.Context, st datastore.AccountReadProvider) ([]byte, error) {
	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("export accounts: %w", err)
	}

	export := AccountsExport{}
	for _, a := range accounts {
		export.Accounts = append(export.Accounts, AccountYAML{
			ID:        a.ID,
			Username:  a.Username,
			Rank:      a.Rank.String(),
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return yaml.Marshal(&export)
}

// ChatYAML represents an archived chat line in YAML export.
type ChatYAML struct {
	ID        int64  `yaml:"id"`
	Node      string `yaml:"node"`
	Username  string `yaml:"username"`
	IP        string `yaml:"ip"`
	Body      string `yaml:"body"`
	CreatedAt string `yaml:"created_at"`
}

// ChatExport is the top-level YAML for chat archive export.
type ChatExport struct {
	Messages []ChatYAML `yaml:"messages"`
}

// ExportChatYAML exports archived chat lines matching filters, newest first.
func ExportChatYAML(ctx context.Context, st datastore.MessageReadProvider, filters model.MessageFilters) ([]byte, error) {
	messages, err := st.ListMessages(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("export chat: %w", err)
	}

	export := ChatExport{}
	for _, m := range messages {
		export.Messages = append(export.Messages, ChatYAML{
			ID:        m.ID,
			Node:      m.Node,
			Username:  m.Username,
			IP:        m.IP,
			Body:      m.Body,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return yaml.Marshal(&export)
}
