package ban_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/gocollab/pkg/ban"
	"github.com/NicolasHaas/gocollab/pkg/store"
)

func TestBanRecordsAndRunsCommand(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st := store.NewMemoryWithClock(func() time.Time { return now })

	var ran [][]string
	m := ban.NewManager(st,
		ban.WithCommand([]string{"iptables", "-A", "INPUT", "-s", "$IP", "-j", "DROP", "-m", "comment", "--comment", "$NAME"}),
		ban.WithRunner(func(_ context.Context, argv []string) ([]byte, error) {
			ran = append(ran, argv)
			return nil, nil
		}),
		ban.WithClock(func() time.Time { return now }),
	)

	if banned, err := m.IsBanned(ctx, "203.0.113.9"); err != nil || banned {
		t.Fatalf("IsBanned before ban = %v, %v", banned, err)
	}
	if err := m.Ban(ctx, "203.0.113.9", "mallory", "spam", "admin", 0); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if banned, err := m.IsBanned(ctx, "203.0.113.9"); err != nil || !banned {
		t.Fatalf("IsBanned after ban = %v, %v", banned, err)
	}

	want := [][]string{{"iptables", "-A", "INPUT", "-s", "203.0.113.9", "-j", "DROP", "-m", "comment", "--comment", "mallory"}}
	if diff := cmp.Diff(want, ran); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
}

func TestUnban(t *testing.T) {
	ctx := context.Background()
	m := ban.NewManager(store.NewMemory())

	for _, ip := range []string{"203.0.113.5", "203.0.113.5", "203.0.113.6"} {
		if err := m.Ban(ctx, ip, "", "", "", 0); err != nil {
			t.Fatalf("Ban(%s): %v", ip, err)
		}
	}
	if err := m.Unban(ctx, "203.0.113.5"); err != nil {
		t.Fatalf("Unban: %v", err)
	}
	if banned, _ := m.IsBanned(ctx, "203.0.113.5"); banned {
		t.Error("address still banned after Unban")
	}
	if banned, _ := m.IsBanned(ctx, "203.0.113.6"); !banned {
		t.Error("Unban lifted an unrelated ban")
	}
	if err := m.Unban(ctx, ""); err == nil {
		t.Error("Unban with empty ip succeeded")
	}
}

func TestTemporaryBanExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := ban.NewManager(store.NewMemoryWithClock(clock), ban.WithClock(clock))

	if err := m.Ban(ctx, "203.0.113.1", "", "", "", time.Hour); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if banned, _ := m.IsBanned(ctx, "203.0.113.1"); !banned {
		t.Fatal("temporary ban not active")
	}
	now = now.Add(2 * time.Hour)
	if banned, _ := m.IsBanned(ctx, "203.0.113.1"); banned {
		t.Fatal("temporary ban still active after expiry")
	}
}

func TestBanCommandFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	st := store.NewMemory()
	m := ban.NewManager(st,
		ban.WithCommand([]string{"false"}),
		ban.WithRunner(func(context.Context, []string) ([]byte, error) { return nil, boom }),
	)
	if err := m.Ban(ctx, "203.0.113.2", "x", "", "", 0); !errors.Is(err, boom) {
		t.Errorf("Ban error = %v, want wrapped boom", err)
	}
	if banned, err := m.IsBanned(ctx, "203.0.113.2"); err != nil || banned {
		t.Errorf("IsBanned after failed command = %v, %v, want false", banned, err)
	}
	if bans, _ := st.ListBans(ctx); len(bans) != 0 {
		t.Errorf("failed ban left %d records", len(bans))
	}
	if err := m.Ban(ctx, "", "x", "", "", 0); err == nil {
		t.Error("Ban with empty ip succeeded")
	}
}
