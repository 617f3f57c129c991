package server

import (
	"slices"
	"time"

	"github.com/NicolasHaas/gocollab/pkg/model"
	"github.com/NicolasHaas/gocollab/pkg/protocol"
)

// Conn is the coordinator's handle on a client connection.
type Conn interface {
	protocol.Peer
	Close(reason string)
	IP() string
}

// User is a connected client.
type User struct {
	ID     string
	IP     string
	Conn   Conn
	Sender protocol.Sender

	Username string
	Rank     model.Rank
	Perms    model.Permissions
	LoggedIn bool // authenticated through the auth verifier

	// TurnWhitelist lets the user take turns while turns are disabled.
	TurnWhitelist bool

	Connected bool // joined the node
	Spectator bool // joined in screen-only mode

	MuteUntil        time.Time
	MutedPermanently bool
	Country          string
	NoFlag           bool
	AudioMuted       bool

	chatTimes []time.Time

	passwordPending bool
	lastPassword    time.Time
}

// Participant reports whether the user joined the node as a full member.
func (u *User) Participant() bool {
	return u.Connected && !u.Spectator
}

// Muted reports whether the user may not chat at now.
func (u *User) Muted(now time.Time) bool {
	return u.MutedPermanently || now.Before(u.MuteUntil)
}

func (u *User) entry() protocol.UserEntry {
	return protocol.UserEntry{Username: u.Username, Rank: u.Rank.WireValue()}
}

// Registry holds the connected users in arrival order. It is owned by the
// coordinator goroutine and is not safe for concurrent use.
type Registry struct {
	users map[string]*User
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*User)}
}

// Add registers u.
func (r *Registry) Add(u *User) {
	if _, ok := r.users[u.ID]; ok {
		return
	}
	r.users[u.ID] = u
	r.order = append(r.order, u.ID)
}

// Remove drops a user and returns it, or nil if unknown.
func (r *Registry) Remove(id string) *User {
	u, ok := r.users[id]
	if !ok {
		return nil
	}
	delete(r.users, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return u
}

// Get retrieves a user by ID.
func (r *Registry) Get(id string) *User {
	return r.users[id]
}

// ByName returns the user holding username (case-sensitive), or nil.
func (r *Registry) ByName(username string) *User {
	if username == "" {
		return nil
	}
	for _, id := range r.order {
		if u := r.users[id]; u.Username == username {
			return u
		}
	}
	return nil
}

// Count returns the number of registered users.
func (r *Registry) Count() int {
	return len(r.users)
}

// CountIP returns the number of users connected from ip.
func (r *Registry) CountIP(ip string) int {
	n := 0
	for _, u := range r.users {
		if u.IP == ip {
			n++
		}
	}
	return n
}

// All returns every user in arrival order (snapshot).
func (r *Registry) All() []*User {
	out := make([]*User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id])
	}
	return out
}

// Participants returns the users that joined the node as full members.
func (r *Registry) Participants() []*User {
	return r.filter((*User).Participant)
}

// Viewers returns every user that joined the node, spectators included.
func (r *Registry) Viewers() []*User {
	return r.filter(func(u *User) bool { return u.Connected })
}

func (r *Registry) filter(keep func(*User) bool) []*User {
	var out []*User
	for _, id := range r.order {
		if u := r.users[id]; keep(u) {
			out = append(out, u)
		}
	}
	return out
}
