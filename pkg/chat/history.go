// Package chat holds the bounded chat history replayed to joining users.
package chat

import "time"

// Entry is one chat line.
type Entry struct {
	Username string
	Text     string
	Time     time.Time
}

// History is a fixed-capacity FIFO of chat entries. The oldest entry is
// evicted when a new one arrives at capacity. Not safe for concurrent use.
type History struct {
	buf   []Entry
	start int
	n     int
}

// NewHistory returns a history holding at most capacity entries. A capacity
// of zero or less keeps nothing.
func NewHistory(capacity int) *History {
	return &History{buf: make([]Entry, max(capacity, 0))}
}

// Add appends e, evicting the oldest entry when full.
func (h *History) Add(e Entry) {
	if len(h.buf) == 0 {
		return
	}
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = e
		h.n++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored entries.
func (h *History) Len() int { return h.n }

// Entries returns the stored entries oldest first.
func (h *History) Entries() []Entry {
	out := make([]Entry, h.n)
	for i := range h.n {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}
