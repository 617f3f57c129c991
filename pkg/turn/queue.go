// Package turn implements the FIFO turn queue that decides which user
// controls the shared machine.
//
// Queue is not safe for concurrent use; it is owned by the session
// coordinator goroutine. Time is passed in explicitly so the queue never
// reads the clock itself.
package turn

import (
	"slices"
	"time"
)

// Transition describes the effect of a queue operation.
type Transition struct {
	// Changed is set when the holder or the waiting list changed.
	Changed bool
	// HolderChanged is set when a different user (or nobody) now holds the turn.
	HolderChanged bool
	// Holder is the holder after the operation, empty when nobody holds it.
	Holder string
	// Gen is the generation token of the current holder's turn. A timer armed
	// for an older generation must be ignored.
	Gen uint64
	// ArmTimer is set when the caller must (re)arm the expiry timer for
	// ExpiresAt. When HolderChanged is set and ArmTimer is not, any running
	// timer must be stopped.
	ArmTimer  bool
	ExpiresAt time.Time
}

// Queue is the turn queue state machine.
type Queue struct {
	duration time.Duration

	holder     string
	expiresAt  time.Time
	indefinite bool
	waiting    []string
	accepting  bool
	gen        uint64
}

// New returns an empty queue that accepts turn requests and hands out turns
// of the given duration.
func New(duration time.Duration) *Queue {
	return &Queue{duration: duration, accepting: true}
}

// Holder returns the current holder, or "" if nobody has the turn.
func (q *Queue) Holder() string { return q.holder }

// ExpiresAt is the expiry of the current turn. Zero when indefinite or idle.
func (q *Queue) ExpiresAt() time.Time { return q.expiresAt }

// Indefinite reports whether the current holder never expires.
func (q *Queue) Indefinite() bool { return q.indefinite }

// Accepting reports whether turn requests are currently honoured.
func (q *Queue) Accepting() bool { return q.accepting }

// Gen returns the current generation token.
func (q *Queue) Gen() uint64 { return q.gen }

// Waiting returns a copy of the queued users in order.
func (q *Queue) Waiting() []string { return slices.Clone(q.waiting) }

// Order returns the holder followed by the waiting users.
func (q *Queue) Order() []string {
	if q.holder == "" {
		return q.Waiting()
	}
	out := make([]string, 0, 1+len(q.waiting))
	out = append(out, q.holder)
	return append(out, q.waiting...)
}

// Position returns 0 for the holder, 1.. for waiting users and -1 when the
// user is not in the queue.
func (q *Queue) Position(id string) int {
	if id != "" && id == q.holder {
		return 0
	}
	if i := slices.Index(q.waiting, id); i >= 0 {
		return i + 1
	}
	return -1
}

// Remaining returns how long the current turn has left at now.
func (q *Queue) Remaining(now time.Time) time.Duration {
	if q.holder == "" || q.indefinite {
		return 0
	}
	return max(q.expiresAt.Sub(now), 0)
}

// WaitTime estimates how long a waiting user has until their turn.
func (q *Queue) WaitTime(id string, now time.Time) time.Duration {
	pos := q.Position(id)
	if pos <= 0 {
		return 0
	}
	return q.Remaining(now) + time.Duration(pos-1)*q.duration
}

// Request enqueues id unless it already holds or waits for the turn. If
// nobody holds the turn the head of the queue is promoted.
func (q *Queue) Request(id string, now time.Time) Transition {
	if !q.accepting {
		return q.unchanged()
	}
	return q.Admit(id, now)
}

// Admit queues id like Request but ignores SetAccepting. It lets users
// exempt from disabled turns still take them.
func (q *Queue) Admit(id string, now time.Time) Transition {
	if id == "" || q.Position(id) >= 0 {
		return q.unchanged()
	}
	q.waiting = append(q.waiting, id)
	if q.holder == "" {
		return q.promote(now)
	}
	return q.changed(false)
}

// Forfeit removes id from the holder slot or the waiting list.
func (q *Queue) Forfeit(id string, now time.Time) Transition {
	return q.Remove(id, now)
}

// Release gives up id's turn if it holds it.
func (q *Queue) Release(id string, now time.Time) Transition {
	if id == "" || id != q.holder {
		return q.unchanged()
	}
	return q.promote(now)
}

// Remove drops id from the queue entirely, promoting the next user if id
// was the holder. Used on disconnect.
func (q *Queue) Remove(id string, now time.Time) Transition {
	if id == "" {
		return q.unchanged()
	}
	if id == q.holder {
		return q.promote(now)
	}
	if i := slices.Index(q.waiting, id); i >= 0 {
		q.waiting = slices.Delete(q.waiting, i, i+1)
		return q.changed(false)
	}
	return q.unchanged()
}

// EndTurn ends id's turn on behalf of a moderator. A waiting user is
// removed from the queue instead.
func (q *Queue) EndTurn(id string, now time.Time) Transition {
	return q.Remove(id, now)
}

// Clear empties the queue and removes the holder.
func (q *Queue) Clear() Transition {
	if q.holder == "" && len(q.waiting) == 0 {
		return q.unchanged()
	}
	hadHolder := q.holder != ""
	q.waiting = nil
	q.holder = ""
	q.expiresAt = time.Time{}
	q.indefinite = false
	if hadHolder {
		q.gen++
	}
	return q.changed(hadHolder)
}

// Bypass makes id the holder immediately with a fresh turn. A previous
// holder goes back to the front of the queue.
func (q *Queue) Bypass(id string, now time.Time) Transition {
	return q.takeOver(id, now, false)
}

// GrantIndefinite makes id the holder with no expiry.
func (q *Queue) GrantIndefinite(id string, now time.Time) Transition {
	return q.takeOver(id, now, true)
}

// SetAccepting enables or disables turn requests. Existing turns are kept.
func (q *Queue) SetAccepting(enabled bool) {
	q.accepting = enabled
}

// Expire handles an expiry timer for generation gen. Stale generations and
// indefinite turns are ignored.
func (q *Queue) Expire(gen uint64, now time.Time) Transition {
	if gen != q.gen || q.holder == "" || q.indefinite {
		return q.unchanged()
	}
	return q.promote(now)
}

func (q *Queue) takeOver(id string, now time.Time, indefinite bool) Transition {
	if id == "" {
		return q.unchanged()
	}
	if i := slices.Index(q.waiting, id); i >= 0 {
		q.waiting = slices.Delete(q.waiting, i, i+1)
	}
	if q.holder != "" && q.holder != id {
		q.waiting = slices.Insert(q.waiting, 0, q.holder)
	}
	q.setHolder(id, now, indefinite)
	return q.changed(true)
}

// promote hands the turn to the head of the waiting list, or to nobody.
func (q *Queue) promote(now time.Time) Transition {
	if len(q.waiting) == 0 {
		q.holder = ""
		q.expiresAt = time.Time{}
		q.indefinite = false
		q.gen++
		return q.changed(true)
	}
	next := q.waiting[0]
	q.waiting = slices.Delete(q.waiting, 0, 1)
	q.setHolder(next, now, false)
	return q.changed(true)
}

func (q *Queue) setHolder(id string, now time.Time, indefinite bool) {
	q.holder = id
	q.indefinite = indefinite
	if indefinite {
		q.expiresAt = time.Time{}
	} else {
		q.expiresAt = now.Add(q.duration)
	}
	q.gen++
}

func (q *Queue) changed(holderChanged bool) Transition {
	t := Transition{
		Changed:       true,
		HolderChanged: holderChanged,
		Holder:        q.holder,
		Gen:           q.gen,
	}
	if holderChanged && q.holder != "" && !q.indefinite {
		t.ArmTimer = true
		t.ExpiresAt = q.expiresAt
	}
	return t
}

func (q *Queue) unchanged() Transition {
	return Transition{Holder: q.holder, Gen: q.gen}
}
