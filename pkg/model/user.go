package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

var ErrUsernameTooShort = fmt.Errorf("username must be at least %d characters", MinUsernameLength)
var ErrUsernameTooLong = fmt.Errorf("username must not exceed %d characters", MaxUsernameLength)
var ErrUsernameInvalidChars = errors.New("username must contain only letters, digits, spaces, underscores, dots, or hyphens")
var ErrUsernameSpacing = errors.New("username must not start or end with a space or contain double spaces")
var ErrInvalidRank = errors.New("invalid rank: must be guest, registered, moderator, or admin")

// Account is a registered user known to the datastore.
type Account struct {
	ID        int64     `json:"id" yaml:"id"`
	Username  string    `json:"username" yaml:"username"`
	Rank      Rank      `json:"rank" yaml:"rank"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ValidateUsername checks that a username is 3-20 ASCII letters, digits,
// spaces, underscores, dots or hyphens, without leading, trailing or
// repeated spaces.
func ValidateUsername(name string) error {
	if len(name) < MinUsernameLength {
		return ErrUsernameTooShort
	}
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') &&
			r != '_' && r != '-' && r != '.' && r != ' ' {
			return ErrUsernameInvalidChars
		}
	}
	if name[0] == ' ' || name[len(name)-1] == ' ' || strings.Contains(name, "  ") {
		return ErrUsernameSpacing
	}
	return nil
}

// GuestName formats a generated guest name from a number in [0, 100000).
func GuestName(n int) string {
	return fmt.Sprintf("guest%05d", n%100000)
}
