// Package vote implements the reset poll: a single yes/no vote that runs
// for a fixed duration and is followed by a cooldown.
//
// Poll is not safe for concurrent use; the session coordinator owns it.
package vote

import (
	"errors"
	"time"
)

var (
	ErrInProgress  = errors.New("vote: already in progress")
	ErrCoolingDown = errors.New("vote: cooling down")
	ErrNotActive   = errors.New("vote: not active")
)

// Phase is the poll lifecycle state.
type Phase int

const (
	Idle Phase = iota
	Active
	Ended
	Cooldown
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Ended:
		return "ended"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Choice is a ballot value.
type Choice int

const (
	None Choice = iota
	No
	Yes
)

// ChoiceFromWire maps the wire value (0 no, 1 yes) to a Choice.
func ChoiceFromWire(v int) (Choice, bool) {
	switch v {
	case 0:
		return No, true
	case 1:
		return Yes, true
	default:
		return None, false
	}
}

// Outcome is the result of a finished poll. Ties fail.
type Outcome struct {
	Passed bool
	Yes    int
	No     int
	Forced bool
}

// Poll is the vote state machine.
type Poll struct {
	duration time.Duration
	cooldown time.Duration

	phase         Phase
	startedAt     time.Time
	endsAt        time.Time
	cooldownUntil time.Time
	yes           map[string]struct{}
	no            map[string]struct{}
	gen           uint64

	// OnPhase, when set, is called on every phase change.
	OnPhase func(Phase)
}

// New returns an idle poll.
func New(duration, cooldown time.Duration) *Poll {
	return &Poll{
		duration: duration,
		cooldown: cooldown,
		yes:      make(map[string]struct{}),
		no:       make(map[string]struct{}),
	}
}

func (p *Poll) Phase() Phase { return p.phase }

// Gen is the generation token for the timer of the current phase.
func (p *Poll) Gen() uint64 { return p.gen }

func (p *Poll) StartedAt() time.Time { return p.startedAt }

func (p *Poll) EndsAt() time.Time { return p.endsAt }

func (p *Poll) CooldownUntil() time.Time { return p.cooldownUntil }

// Counts returns the current yes and no tallies.
func (p *Poll) Counts() (yes, no int) { return len(p.yes), len(p.no) }

// Remaining returns the time left in the active vote.
func (p *Poll) Remaining(now time.Time) time.Duration {
	if p.phase != Active {
		return 0
	}
	return max(p.endsAt.Sub(now), 0)
}

// CooldownRemaining returns the time until a new vote may start.
func (p *Poll) CooldownRemaining(now time.Time) time.Duration {
	return max(p.cooldownUntil.Sub(now), 0)
}

// ChoiceOf returns the ballot of id.
func (p *Poll) ChoiceOf(id string) Choice {
	if _, ok := p.yes[id]; ok {
		return Yes
	}
	if _, ok := p.no[id]; ok {
		return No
	}
	return None
}

// Start opens a new vote. It fails while a vote is running or the cooldown
// has not elapsed. The returned generation is the one the expiry timer must
// carry.
func (p *Poll) Start(now time.Time) (uint64, error) {
	switch p.phase {
	case Active, Ended:
		return 0, ErrInProgress
	case Cooldown:
		if now.Before(p.cooldownUntil) {
			return 0, ErrCoolingDown
		}
		p.setPhase(Idle)
	}
	if now.Before(p.cooldownUntil) {
		return 0, ErrCoolingDown
	}

	clear(p.yes)
	clear(p.no)
	p.startedAt = now
	p.endsAt = now.Add(p.duration)
	p.gen++
	p.setPhase(Active)
	return p.gen, nil
}

// Cast records id's ballot, replacing any earlier one. It reports whether
// the tally changed.
func (p *Poll) Cast(id string, c Choice) bool {
	if p.phase != Active || id == "" {
		return false
	}
	switch c {
	case Yes:
		if _, ok := p.yes[id]; ok {
			return false
		}
		delete(p.no, id)
		p.yes[id] = struct{}{}
	case No:
		if _, ok := p.no[id]; ok {
			return false
		}
		delete(p.yes, id)
		p.no[id] = struct{}{}
	default:
		return false
	}
	return true
}

// Withdraw removes id's ballot without ending the vote.
func (p *Poll) Withdraw(id string) bool {
	if p.ChoiceOf(id) == None {
		return false
	}
	delete(p.yes, id)
	delete(p.no, id)
	return true
}

// Expire ends the vote on its timer. Stale generations are ignored. On
// success the poll is in Cooldown and the returned generation is the one the
// cooldown timer must carry.
func (p *Poll) Expire(gen uint64, now time.Time) (Outcome, bool) {
	if gen != p.gen || p.phase != Active {
		return Outcome{}, false
	}
	y, n := p.Counts()
	p.finish(now)
	return Outcome{Passed: y > n, Yes: y, No: n}, true
}

// Force ends an active vote with the given outcome regardless of tallies.
func (p *Poll) Force(c Choice, now time.Time) (Outcome, error) {
	if p.phase != Active {
		return Outcome{}, ErrNotActive
	}
	if c != Yes && c != No {
		return Outcome{}, errors.New("vote: invalid forced choice")
	}
	y, n := p.Counts()
	p.finish(now)
	return Outcome{Passed: c == Yes, Yes: y, No: n, Forced: true}, nil
}

// Settle returns a cooled-down poll to Idle. Stale generations are ignored.
func (p *Poll) Settle(gen uint64, now time.Time) bool {
	if gen != p.gen || p.phase != Cooldown || now.Before(p.cooldownUntil) {
		return false
	}
	p.setPhase(Idle)
	return true
}

func (p *Poll) finish(now time.Time) {
	p.setPhase(Ended)
	clear(p.yes)
	clear(p.no)
	p.cooldownUntil = now.Add(p.cooldown)
	p.gen++
	p.setPhase(Cooldown)
}

func (p *Poll) setPhase(ph Phase) {
	p.phase = ph
	if p.OnPhase != nil {
		p.OnPhase(ph)
	}
}
