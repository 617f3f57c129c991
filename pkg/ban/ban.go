// Package ban records IP bans and optionally runs an external command (for
// example a firewall rule) whenever a ban is issued.
package ban

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/NicolasHaas/gocollab/pkg/model"
)

// Store persists bans.
type Store interface {
	IsIPBanned(ctx context.Context, ip string, now time.Time) (bool, error)
	CreateBan(ctx context.Context, ban *model.Ban) error
	DeleteBan(ctx context.Context, ip string) error
}

// Runner executes an external ban command.
type Runner func(ctx context.Context, argv []string) ([]byte, error)

// ExecRunner runs argv with os/exec.
func ExecRunner(ctx context.Context, argv []string) ([]byte, error) {
	return exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
}

// Manager checks and issues bans.
type Manager struct {
	store   Store
	command []string
	run     Runner
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithCommand sets the argv run on every ban. "$IP" and "$NAME" in any
// argument are replaced by the banned address and username.
func WithCommand(argv []string) Option {
	return func(m *Manager) { m.command = argv }
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(m *Manager) { m.run = r }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager backed by store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{store: store, run: ExecRunner, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// IsBanned reports whether ip is currently banned.
func (m *Manager) IsBanned(ctx context.Context, ip string) (bool, error) {
	banned, err := m.store.IsIPBanned(ctx, ip, m.now().UTC())
	if err != nil {
		return false, fmt.Errorf("ban: check %s: %w", ip, err)
	}
	return banned, nil
}

// Ban runs the configured command and then records a ban on ip. Nothing is
// recorded when the command fails. A zero duration bans permanently.
func (m *Manager) Ban(ctx context.Context, ip, username, reason, by string, duration time.Duration) error {
	if ip == "" {
		return fmt.Errorf("ban: empty ip")
	}
	if err := m.runCommand(ctx, ip, username); err != nil {
		return err
	}
	b := &model.Ban{IP: ip, Username: username, Reason: reason, BannedBy: by}
	if duration > 0 {
		b.ExpiresAt = m.now().UTC().Add(duration)
	}
	if err := m.store.CreateBan(ctx, b); err != nil {
		return fmt.Errorf("ban: record %s: %w", ip, err)
	}
	return nil
}

// Unban lifts every ban on ip. The ban command is not reversed.
func (m *Manager) Unban(ctx context.Context, ip string) error {
	if ip == "" {
		return fmt.Errorf("ban: empty ip")
	}
	if err := m.store.DeleteBan(ctx, ip); err != nil {
		return fmt.Errorf("ban: lift %s: %w", ip, err)
	}
	return nil
}

func (m *Manager) runCommand(ctx context.Context, ip, username string) error {
	if len(m.command) == 0 {
		return nil
	}
	argv := make([]string, len(m.command))
	r := strings.NewReplacer("$IP", ip, "$NAME", username)
	for i, a := range m.command {
		argv[i] = r.Replace(a)
	}
	out, err := m.run(ctx, argv)
	if err != nil {
		return fmt.Errorf("ban: command %q: %w", argv[0], err)
	}
	slog.Debug("ban command ran", "ip", ip, "output", strings.TrimSpace(string(out)))
	return nil
}
