package model

// Permission is one moderation capability. Values are the bits of the mask
// sent to moderators after login.
type Permission uint32

const (
	PermRestore        Permission = 1 << iota // Restore the machine to its snapshot
	PermReboot                                // Reboot the machine
	PermBan                                   // Ban a user
	PermForceVote                             // End a running vote with a chosen outcome
	PermMute                                  // Mute a user
	PermKick                                  // Kick a user
	PermBypassTurn                            // Take or end turns out of order
	PermRename                                // Rename other users
	PermGrabIP                                // Look up a user's IP address
	PermXSS                                   // Send raw and system messages
	PermIndefiniteTurn                        // Hold a turn that never expires

	// Admin-only capabilities. They have no bit in the moderator mask.
	PermToggleTurns Permission = 1 << 16
	PermHideScreen  Permission = 1 << 17
)

// Permissions is the per-capability configuration of the moderator role.
type Permissions struct {
	Restore        bool `yaml:"restore"`
	Reboot         bool `yaml:"reboot"`
	Ban            bool `yaml:"ban"`
	ForceVote      bool `yaml:"forcevote"`
	Mute           bool `yaml:"mute"`
	Kick           bool `yaml:"kick"`
	BypassTurn     bool `yaml:"bypassturn"`
	Rename         bool `yaml:"rename"`
	GrabIP         bool `yaml:"grabip"`
	XSS            bool `yaml:"xss"`
	IndefiniteTurn bool `yaml:"indefiniteturn"`
}

// Mask packs the permissions into the wire bitmask.
func (p Permissions) Mask() uint32 {
	var m Permission
	set := func(on bool, perm Permission) {
		if on {
			m |= perm
		}
	}
	set(p.Restore, PermRestore)
	set(p.Reboot, PermReboot)
	set(p.Ban, PermBan)
	set(p.ForceVote, PermForceVote)
	set(p.Mute, PermMute)
	set(p.Kick, PermKick)
	set(p.BypassTurn, PermBypassTurn)
	set(p.Rename, PermRename)
	set(p.GrabIP, PermGrabIP)
	set(p.XSS, PermXSS)
	set(p.IndefiniteTurn, PermIndefiniteTurn)
	return uint32(m)
}

// PermissionsFromMask unpacks a wire bitmask.
func PermissionsFromMask(mask uint32) Permissions {
	m := Permission(mask)
	return Permissions{
		Restore:        m&PermRestore != 0,
		Reboot:         m&PermReboot != 0,
		Ban:            m&PermBan != 0,
		ForceVote:      m&PermForceVote != 0,
		Mute:           m&PermMute != 0,
		Kick:           m&PermKick != 0,
		BypassTurn:     m&PermBypassTurn != 0,
		Rename:         m&PermRename != 0,
		GrabIP:         m&PermGrabIP != 0,
		XSS:            m&PermXSS != 0,
		IndefiniteTurn: m&PermIndefiniteTurn != 0,
	}
}

// Has reports whether the set grants perm. Admin-only permissions are never
// part of a Permissions value.
func (p Permissions) Has(perm Permission) bool {
	return Permission(p.Mask())&perm != 0
}

// AllPermissions grants every moderator capability.
func AllPermissions() Permissions {
	return PermissionsFromMask(uint32(PermIndefiniteTurn<<1 - 1))
}

func (p Permission) String() string {
	switch p {
	case PermRestore:
		return "restore"
	case PermReboot:
		return "reboot"
	case PermBan:
		return "ban"
	case PermForceVote:
		return "forcevote"
	case PermMute:
		return "mute"
	case PermKick:
		return "kick"
	case PermBypassTurn:
		return "bypassturn"
	case PermRename:
		return "rename"
	case PermGrabIP:
		return "grabip"
	case PermXSS:
		return "xss"
	case PermIndefiniteTurn:
		return "indefiniteturn"
	case PermToggleTurns:
		return "toggleturns"
	case PermHideScreen:
		return "hidescreen"
	default:
		return "unknown"
	}
}
