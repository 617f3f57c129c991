// Package rbac provides rank and permission checks for moderation commands.
package rbac

import "github.com/NicolasHaas/gocollab/pkg/model"

// adminOnly lists permissions that no moderator configuration can grant.
var adminOnly = map[model.Permission]bool{
	model.PermToggleTurns: true,
	model.PermHideScreen:  true,
}

// Can reports whether a user of the given rank and moderator permission set
// may use perm. Admins may do everything. Moderators are limited to perms.
// Guests and registered users hold no moderation permissions.
func Can(rank model.Rank, perms model.Permissions, perm model.Permission) bool {
	switch rank {
	case model.RankAdmin:
		return true
	case model.RankModerator:
		if adminOnly[perm] {
			return false
		}
		return perms.Has(perm)
	default:
		return false
	}
}

// RequirePermission returns a denial message if the user lacks perm, or an
// empty string if allowed.
func RequirePermission(rank model.Rank, perms model.Permissions, perm model.Permission) string {
	if Can(rank, perms, perm) {
		return ""
	}
	return "permission denied: " + perm.String() + " requires higher rank"
}

// IsStaff reports whether the rank has logged in as moderator or admin.
func IsStaff(rank model.Rank) bool {
	return rank.AtLeast(model.RankModerator)
}
