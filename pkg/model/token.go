package model

import "time"

// Token is a login token bound to an account.
type Token struct {
	ID        int64     `json:"id"`
	Value     string    `json:"-"` // raw token value (only shown on creation)
	Hash      string    `json:"-"` // SHA-256 hash stored in DB
	AccountID int64     `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired returns true if the token has expired at now.
func (t *Token) IsExpired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.After(t.ExpiresAt)
}
