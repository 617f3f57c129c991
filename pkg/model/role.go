package model

// Rank is a user's coarse privilege tier.
type Rank int

const (
	RankGuest      Rank = iota // Unauthenticated viewer
	RankRegistered             // Logged in through the auth verifier or a token
	RankModerator              // Staff login with the configured permission subset
	RankAdmin                  // Full control
)

func (r Rank) String() string {
	switch r {
	case RankGuest:
		return "guest"
	case RankRegistered:
		return "registered"
	case RankModerator:
		return "moderator"
	case RankAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseRank converts a string to a Rank.
func ParseRank(s string) Rank {
	switch s {
	case "admin":
		return RankAdmin
	case "moderator":
		return RankModerator
	case "registered", "user":
		return RankRegistered
	default:
		return RankGuest
	}
}

// Valid returns true if the rank is a recognised value.
func (r Rank) Valid() bool {
	return r >= RankGuest && r <= RankAdmin
}

// AtLeast reports whether r is o or higher on the ladder.
func (r Rank) AtLeast(o Rank) bool {
	return r >= o
}

// WireValue is the number clients expect in adduser messages.
// Moderator and admin are swapped relative to the ladder order.
func (r Rank) WireValue() int {
	switch r {
	case RankRegistered:
		return 1
	case RankAdmin:
		return 2
	case RankModerator:
		return 3
	default:
		return 0
	}
}

// RankFromWire is the inverse of WireValue. Unknown values map to guest.
func RankFromWire(v int) Rank {
	switch v {
	case 1:
		return RankRegistered
	case 2:
		return RankAdmin
	case 3:
		return RankModerator
	default:
		return RankGuest
	}
}
