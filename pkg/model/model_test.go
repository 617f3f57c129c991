package model

import (
	"strings"
	"testing"
	"time"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"valid with dot", "user.name", nil},
		{"valid with space", "has space", nil},
		{"valid min length", "abc", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameTooShort},
		{"too short", "ab", ErrUsernameTooShort},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"leading space", " alice", ErrUsernameSpacing},
		{"trailing space", "alice ", ErrUsernameSpacing},
		{"double space", "al  ice", ErrUsernameSpacing},
		{"contains @", "user@name", ErrUsernameInvalidChars},
		{"html", "<b>bob</b>", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidChars},
		{"tab character", "user\tname", ErrUsernameInvalidChars},
		{"newline", "user\nname", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestGuestName(t *testing.T) {
	tests := map[int]string{0: "guest00000", 42: "guest00042", 99999: "guest99999", 123456: "guest23456"}
	for n, want := range tests {
		got := GuestName(n)
		if got != want {
			t.Errorf("GuestName(%d) = %q, want %q", n, got, want)
		}
		if err := ValidateUsername(got); err != nil {
			t.Errorf("GuestName(%d) = %q is not a valid username: %v", n, got, err)
		}
	}
}

func TestRankValid(t *testing.T) {
	tests := []struct {
		name string
		rank Rank
		want bool
	}{
		{"RankGuest", RankGuest, true},
		{"RankRegistered", RankRegistered, true},
		{"RankModerator", RankModerator, true},
		{"RankAdmin", RankAdmin, true},
		{"negative", Rank(-1), false},
		{"four", Rank(4), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rank.Valid(); got != tt.want {
				t.Errorf("Rank(%d).Valid() = %v, want %v", tt.rank, got, tt.want)
			}
		})
	}
}

func TestRankString(t *testing.T) {
	tests := []struct {
		rank Rank
		want string
	}{
		{RankGuest, "guest"},
		{RankRegistered, "registered"},
		{RankModerator, "moderator"},
		{RankAdmin, "admin"},
		{Rank(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.rank.String(); got != tt.want {
				t.Errorf("Rank(%d).String() = %q, want %q", tt.rank, got, tt.want)
			}
			if tt.rank.Valid() && ParseRank(tt.want) != tt.rank {
				t.Errorf("ParseRank(%q) = %d, want %d", tt.want, ParseRank(tt.want), tt.rank)
			}
		})
	}
}

func TestRankLadder(t *testing.T) {
	if !RankAdmin.AtLeast(RankModerator) || !RankModerator.AtLeast(RankRegistered) || !RankRegistered.AtLeast(RankGuest) {
		t.Error("rank ladder is not guest < registered < moderator < admin")
	}
	if RankGuest.AtLeast(RankRegistered) {
		t.Error("guest ranked at least registered")
	}

	wire := map[Rank]int{RankGuest: 0, RankRegistered: 1, RankAdmin: 2, RankModerator: 3}
	for r, want := range wire {
		if got := r.WireValue(); got != want {
			t.Errorf("%v.WireValue() = %d, want %d", r, got, want)
		}
	}
}

func TestPermissionMask(t *testing.T) {
	p := Permissions{Restore: true, Ban: true, Kick: true, XSS: true}
	if got, want := p.Mask(), uint32(1|4|32|512); got != want {
		t.Errorf("Mask() = %d, want %d", got, want)
	}
	if got := PermissionsFromMask(p.Mask()); got != p {
		t.Errorf("PermissionsFromMask(Mask()) = %+v, want %+v", got, p)
	}
	if !p.Has(PermBan) || p.Has(PermMute) {
		t.Errorf("Has mismatch for %+v", p)
	}

	all := AllPermissions()
	if got, want := all.Mask(), uint32(2047); got != want {
		t.Errorf("AllPermissions().Mask() = %d, want %d", got, want)
	}
	if all.Has(PermToggleTurns) || all.Has(PermHideScreen) {
		t.Error("admin-only permissions leaked into a moderator permission set")
	}
}

func TestBanActive(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	permanent := Ban{IP: "1.2.3.4"}
	if !permanent.Active(now) {
		t.Error("permanent ban not active")
	}
	expired := Ban{IP: "1.2.3.4", ExpiresAt: now.Add(-time.Minute)}
	if expired.Active(now) {
		t.Error("expired ban still active")
	}
	pending := Ban{IP: "1.2.3.4", ExpiresAt: now.Add(time.Minute)}
	if !pending.Active(now) {
		t.Error("unexpired ban not active")
	}
}
