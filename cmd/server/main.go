package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/NicolasHaas/gocollab/pkg/auth"
	"github.com/NicolasHaas/gocollab/pkg/ban"
	"github.com/NicolasHaas/gocollab/pkg/crypto"
	"github.com/NicolasHaas/gocollab/pkg/logging"
	"github.com/NicolasHaas/gocollab/pkg/model"
	"github.com/NicolasHaas/gocollab/pkg/server"
	"github.com/NicolasHaas/gocollab/pkg/store"
	"github.com/NicolasHaas/gocollab/pkg/version"
	"github.com/NicolasHaas/gocollab/pkg/vm"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (GOCOLLAB_* environment variables override it)")
	hashSecret := flag.String("hash-secret", "", "Print the argon2id form of a staff password and exit")
	issueToken := flag.String("issue-token", "", "Issue a login token as name:rank and exit")
	exportBans := flag.Bool("export-bans", false, "Export all bans as YAML and exit")
	exportAccounts := flag.Bool("export-accounts", false, "Export all accounts as YAML and exit")
	exportChat := flag.Bool("export-chat", false, "Export the chat archive of this node as YAML and exit")
	chatUser := flag.String("chat-user", "", "Limit -export-chat to one username")
	chatLimit := flag.Int64("chat-limit", 100, "Maximum number of lines -export-chat prints")
	unban := flag.String("unban", "", "Lift every ban on an IP address and exit")
	deleteMessage := flag.Int64("delete-message", 0, "Delete an archived chat line by ID and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if *hashSecret != "" {
		hashed, err := crypto.HashSecret(*hashSecret)
		if err != nil {
			slog.Error("hash secret", "err", err)
			os.Exit(1)
		}
		fmt.Println(hashed)
		return
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	// Handle one-shot commands (run and exit)
	cmd := command{
		issue:         *issueToken,
		bans:          *exportBans,
		accounts:      *exportAccounts,
		chat:          *exportChat,
		unban:         *unban,
		deleteMessage: *deleteMessage,
	}
	if cmd.any() {
		cmd.chatFilters.LimitToNode = &cfg.Node.ID
		if *chatUser != "" {
			cmd.chatFilters.LimitToUsername = chatUser
		}
		cmd.chatFilters.PageSize = chatLimit
		err := cmd.run(st)
		_ = st.Close()
		if err != nil {
			slog.Error("command failed", "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("starting gocollab", "version", version.String(), "node", cfg.Node.ID)

	machine := vm.NewPattern(cfg.Node.Width, cfg.Node.Height)
	srv, err := server.New(cfg, server.Dependencies{Store: st, Machine: machine})
	if err != nil {
		_ = st.Close()
		slog.Error("create server", "err", err)
		os.Exit(1)
	}
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

// command holds the one-shot actions requested on the command line.
type command struct {
	issue         string
	bans          bool
	accounts      bool
	chat          bool
	chatFilters   model.MessageFilters
	unban         string
	deleteMessage int64
}

func (c command) any() bool {
	return c.issue != "" || c.bans || c.accounts || c.chat || c.unban != "" || c.deleteMessage != 0
}

func (c command) run(st store.Store) error {
	ctx := context.Background()

	if c.issue != "" {
		name, rank, ok := strings.Cut(c.issue, ":")
		if !ok {
			rank = "registered"
		}
		token, err := auth.IssueToken(ctx, st, name, model.ParseRank(rank))
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Println(token)
	}
	if c.unban != "" {
		if err := ban.NewManager(st).Unban(ctx, c.unban); err != nil {
			return err
		}
		slog.Info("ban lifted", "ip", c.unban)
	}
	if c.deleteMessage != 0 {
		if err := st.DeleteMessage(ctx, c.deleteMessage); err != nil {
			return fmt.Errorf("delete message %d: %w", c.deleteMessage, err)
		}
		slog.Info("chat line deleted", "id", c.deleteMessage)
	}
	if c.bans {
		data, err := server.ExportBansYAML(ctx, st)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	}
	if c.accounts {
		data, err := server.ExportAccountsYAML(ctx, st)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	}
	if c.chat {
		data, err := server.ExportChatYAML(ctx, st, c.chatFilters)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	}
	return nil
}
