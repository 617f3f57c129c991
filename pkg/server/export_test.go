package server

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/gocollab/pkg/model"
	"github.com/NicolasHaas/gocollab/pkg/store"
)

func TestExportYAML(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryWithClock(func() time.Time { return now })

	if _, err := st.CreateAccount(ctx, "alice", model.RankModerator); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := st.CreateBan(ctx, &model.Ban{IP: "192.0.2.7", Username: "mallory", Reason: "spam", BannedBy: "alice"}); err != nil {
		t.Fatalf("CreateBan: %v", err)
	}

	data, err := ExportAccountsYAML(ctx, st)
	if err != nil {
		t.Fatalf("ExportAccountsYAML: %v", err)
	}
	var accounts AccountsExport
	if err := yaml.Unmarshal(data, &accounts); err != nil {
		t.Fatalf("unmarshal accounts: %v", err)
	}
	wantAccounts := AccountsExport{Accounts: []AccountYAML{{ID: 1, Username: "alice", Rank: "moderator", CreatedAt: "2024-05-01T12:00:00Z"}}}
	if diff := cmp.Diff(wantAccounts, accounts); diff != "" {
		t.Errorf("accounts (-want +got):\n%s", diff)
	}

	data, err = ExportBansYAML(ctx, st)
	if err != nil {
		t.Fatalf("ExportBansYAML: %v", err)
	}
	var bans BansExport
	if err := yaml.Unmarshal(data, &bans); err != nil {
		t.Fatalf("unmarshal bans: %v", err)
	}
	wantBans := BansExport{Bans: []BanYAML{{IP: "192.0.2.7", Username: "mallory", Reason: "spam", BannedBy: "alice", CreatedAt: "2024-05-01T12:00:00Z"}}}
	if diff := cmp.Diff(wantBans, bans); diff != "" {
		t.Errorf("bans (-want +got):\n%s", diff)
	}
}

func TestExportChatYAML(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryWithClock(func() time.Time { return now })

	for _, m := range []model.Message{
		{Node: "vm0", Username: "alice", IP: "192.0.2.1", Body: "hi"},
		{Node: "vm1", Username: "bob", IP: "192.0.2.2", Body: "elsewhere"},
		{Node: "vm0", Username: "bob", IP: "192.0.2.2", Body: "hello"},
	} {
		if err := st.CreateMessage(ctx, &m); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	node := "vm0"
	data, err := ExportChatYAML(ctx, st, model.MessageFilters{LimitToNode: &node})
	if err != nil {
		t.Fatalf("ExportChatYAML: %v", err)
	}
	var got ChatExport
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal chat: %v", err)
	}
	want := ChatExport{Messages: []ChatYAML{
		{ID: 3, Node: "vm0", Username: "bob", IP: "192.0.2.2", Body: "hello", CreatedAt: "2024-05-01T12:00:00Z"},
		{ID: 1, Node: "vm0", Username: "alice", IP: "192.0.2.1", Body: "hi", CreatedAt: "2024-05-01T12:00:00Z"},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chat (-want +got):\n%s", diff)
	}
}
