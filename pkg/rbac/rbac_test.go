package rbac

import (
	"testing"

	"github.com/NicolasHaas/gocollab/pkg/model"
)

func TestCan(t *testing.T) {
	modPerms := model.Permissions{Kick: true, Mute: true}

	tests := []struct {
		name  string
		rank  model.Rank
		perms model.Permissions
		perm  model.Permission
		want  bool
	}{
		{"admin anything", model.RankAdmin, model.Permissions{}, model.PermBan, true},
		{"admin toggle turns", model.RankAdmin, model.Permissions{}, model.PermToggleTurns, true},
		{"moderator granted", model.RankModerator, modPerms, model.PermKick, true},
		{"moderator not granted", model.RankModerator, modPerms, model.PermBan, false},
		{"moderator admin-only", model.RankModerator, model.AllPermissions(), model.PermHideScreen, false},
		{"moderator xss not default", model.RankModerator, modPerms, model.PermXSS, false},
		{"registered", model.RankRegistered, model.AllPermissions(), model.PermKick, false},
		{"guest", model.RankGuest, model.AllPermissions(), model.PermKick, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Can(tt.rank, tt.perms, tt.perm); got != tt.want {
				t.Errorf("Can(%v, %+v, %v) = %v, want %v", tt.rank, tt.perms, tt.perm, got, tt.want)
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	if msg := RequirePermission(model.RankAdmin, model.Permissions{}, model.PermBan); msg != "" {
		t.Errorf("admin denied: %q", msg)
	}
	if msg := RequirePermission(model.RankGuest, model.Permissions{}, model.PermBan); msg == "" {
		t.Error("guest allowed to ban")
	}
}
