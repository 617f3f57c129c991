package model

import "time"

// Ban represents a banned IP address. Username records who held the address
// when the ban was issued.
type Ban struct {
	ID        int64     `json:"id" yaml:"id"`
	IP        string    `json:"ip" yaml:"ip"`
	Username  string    `json:"username" yaml:"username,omitempty"`
	Reason    string    `json:"reason" yaml:"reason,omitempty"`
	BannedBy  string    `json:"banned_by" yaml:"banned_by,omitempty"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at,omitempty"` // zero = permanent
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Active reports whether the ban is in force at now.
func (b *Ban) Active(now time.Time) bool {
	return b.ExpiresAt.IsZero() || now.Before(b.ExpiresAt)
}
