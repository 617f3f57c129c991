package server

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/gocollab/pkg/auth"
	"github.com/NicolasHaas/gocollab/pkg/chat"
	"github.com/NicolasHaas/gocollab/pkg/logging"
	"github.com/NicolasHaas/gocollab/pkg/model"
	"github.com/NicolasHaas/gocollab/pkg/protocol"
	"github.com/NicolasHaas/gocollab/pkg/turn"
	"github.com/NicolasHaas/gocollab/pkg/vm"
	"github.com/NicolasHaas/gocollab/pkg/vote"
)

var (
	ErrTooManyConnections = errors.New("server: too many connections from this address")
	ErrStopped            = errors.New("server: coordinator stopped")
)

// indefiniteMillis is reported as the time left of a turn that never expires.
const indefiniteMillis = 9999999999

// Banner checks and issues bans.
type Banner interface {
	IsBanned(ctx context.Context, ip string) (bool, error)
	Ban(ctx context.Context, ip, username, reason, by string, duration time.Duration) error
}

// Archive stores chat lines.
type Archive interface {
	CreateMessage(ctx context.Context, message *model.Message) error
}

// GeoLookup maps an address to a country code. It returns "" when unknown.
type GeoLookup interface {
	Country(ip string) string
}

// CoordinatorDeps are the collaborators of the coordinator. Machine is
// required; a nil Verifier disables login, a nil Bans disables banning, a
// nil Archive disables the chat archive and a nil Geo disables flags.
type CoordinatorDeps struct {
	Machine  vm.Machine
	Verifier auth.Verifier
	Bans     Banner
	Archive  Archive
	Geo      GeoLookup
	Clock    Clock
	Metrics  *Metrics
}

// Coordinator owns all shared session state: the user registry, the turn
// queue, the vote poll and the chat history. Every mutation runs on the
// goroutine started by Run; connections and timers hand work to it through
// the inbox.
type Coordinator struct {
	cfg      Config
	machine  vm.Machine
	verifier auth.Verifier
	bans     Banner
	archive  Archive
	geo      GeoLookup
	clock    Clock
	metrics  *Metrics
	log      *slog.Logger

	inbox chan func()
	done  chan struct{}
	ctx   context.Context

	// post hands f to the coordinator goroutine. spawn runs f elsewhere.
	post  func(f func())
	spawn func(f func())

	users   *Registry
	queue   *turn.Queue
	poll    *vote.Poll
	history *chat.History

	turnTimer Timer
	voteTimer Timer

	screenHidden  bool
	width, height int
	thumbnail     []byte

	guestNumber func() int

	// checkSecret verifies staff passwords. passwordSlots bounds how many
	// checks run at once.
	checkSecret   func(stored, candidate string) (bool, error)
	passwordSlots chan struct{}
}

// NewCoordinator creates a coordinator. Run must be called to process work.
func NewCoordinator(cfg Config, deps CoordinatorDeps) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	c := &Coordinator{
		cfg:         cfg,
		machine:     deps.Machine,
		verifier:    deps.Verifier,
		bans:        deps.Bans,
		archive:     deps.Archive,
		geo:         deps.Geo,
		clock:       deps.Clock,
		metrics:     deps.Metrics,
		log:         logging.Component("coordinator"),
		inbox:       make(chan func(), 1024),
		done:        make(chan struct{}),
		ctx:         context.Background(),
		users:       NewRegistry(),
		queue:       turn.New(cfg.Collab.TurnTime),
		poll:        vote.New(cfg.Collab.VoteTime, cfg.Collab.VoteCooldown),
		history:     chat.NewHistory(cfg.Collab.MaxChatHistory),
		guestNumber: func() int { return rand.IntN(100000) }, //nolint:gosec // guest names need no crypto randomness
		checkSecret: verifySecret,
	}
	c.passwordSlots = make(chan struct{}, max(cfg.Auth.PasswordChecks, 1))
	c.post = func(f func()) { c.enqueue(f) }
	c.spawn = func(f func()) { go f() }
	c.width, c.height = cfg.Node.Width, cfg.Node.Height
	if deps.Machine != nil {
		c.width, c.height = deps.Machine.Size()
	}
	c.poll.OnPhase = func(ph vote.Phase) {
		c.log.Debug("vote phase", "phase", ph)
	}
	return c
}

// Run processes the inbox until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	c.ctx = ctx
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case f := <-c.inbox:
			f()
		}
	}
}

func (c *Coordinator) enqueue(f func()) bool {
	select {
	case c.inbox <- f:
		return true
	case <-c.done:
		return false
	}
}

// async runs work off the coordinator goroutine and applies its result on it.
func (c *Coordinator) async(work func() func()) {
	c.spawn(func() {
		if apply := work(); apply != nil {
			c.post(apply)
		}
	})
}

func (c *Coordinator) shutdown() {
	c.stopTurnTimer()
	if c.voteTimer != nil {
		c.voteTimer.Stop()
	}
	c.log.Info("closing connections", "users", c.users.Count())
	for _, u := range c.users.All() {
		u.Conn.Close("server shutting down")
	}
}

// Connect registers a new connection and returns the user ID.
func (c *Coordinator) Connect(conn Conn) (string, error) {
	id := uuid.NewString()
	reply := make(chan error, 1)
	if !c.enqueue(func() { reply <- c.addUser(id, conn) }) {
		return "", ErrStopped
	}
	select {
	case err := <-reply:
		return id, err
	case <-c.done:
		return "", ErrStopped
	}
}

// Deliver hands a parsed client message to the coordinator.
func (c *Coordinator) Deliver(id string, msg protocol.Message) {
	c.enqueue(func() { c.handleMessage(id, msg) })
}

// Disconnect removes a user after its connection closed.
func (c *Coordinator) Disconnect(id string) {
	c.enqueue(func() { c.removeUser(id) })
}

// Post runs f on the coordinator goroutine. It is used by the screen and
// audio workers to deliver encoded media.
func (c *Coordinator) Post(f func()) {
	c.post(f)
}

func (c *Coordinator) addUser(id string, conn Conn) error {
	if limit := c.cfg.HTTP.MaxConnectionsPerIP; limit > 0 && c.users.CountIP(conn.IP()) >= limit {
		return ErrTooManyConnections
	}
	u := &User{
		ID:     id,
		IP:     conn.IP(),
		Conn:   conn,
		Sender: protocol.Text{},
		Rank:   model.RankGuest,
	}
	if c.geo != nil {
		u.Country = c.geo.Country(u.IP)
	}
	c.users.Add(u)
	c.metrics.ActiveConnections.Add(1)
	c.metrics.TotalConnections.Add(1)
	if c.verifier != nil && c.cfg.Auth.LoginURL != "" {
		u.Sender.SendAuth(u.Conn, c.cfg.Auth.LoginURL)
	}
	c.log.Debug("connection registered", "id", id, "ip", u.IP, "users", c.users.Count())
	return nil
}

func (c *Coordinator) removeUser(id string) {
	u := c.users.Remove(id)
	if u == nil {
		return
	}
	c.metrics.ActiveConnections.Add(-1)
	c.metrics.TotalDisconnects.Add(1)

	if u.Participant() {
		for _, o := range c.users.Participants() {
			o.Sender.SendRemUser(o.Conn, []string{u.Username})
		}
	}
	now := c.clock.Now()
	c.applyTurn(c.queue.Remove(id, now))
	if c.poll.Withdraw(id) {
		c.broadcastVoteStats(now)
	}
	c.log.Info("client disconnected", "user", u.Username, "ip", u.IP, "users", c.users.Count())
}

// ----- turn timer -----

func (c *Coordinator) applyTurn(tr turn.Transition) {
	if !tr.Changed {
		return
	}
	if tr.HolderChanged {
		c.stopTurnTimer()
		if tr.Holder != "" {
			c.metrics.TurnsGranted.Add(1)
		}
		if tr.ArmTimer {
			gen := tr.Gen
			d := tr.ExpiresAt.Sub(c.clock.Now())
			c.turnTimer = c.clock.AfterFunc(d, func() {
				c.post(func() { c.turnExpired(gen) })
			})
		}
	}
	c.broadcastTurnQueue()
}

func (c *Coordinator) stopTurnTimer() {
	if c.turnTimer != nil {
		c.turnTimer.Stop()
		c.turnTimer = nil
	}
}

func (c *Coordinator) turnExpired(gen uint64) {
	c.applyTurn(c.queue.Expire(gen, c.clock.Now()))
}

func (c *Coordinator) turnNames() []string {
	order := c.queue.Order()
	names := make([]string, 0, len(order))
	for _, id := range order {
		if u := c.users.Get(id); u != nil {
			names = append(names, u.Username)
		}
	}
	return names
}

func (c *Coordinator) turnMillisLeft(now time.Time) int64 {
	if c.queue.Indefinite() {
		return indefiniteMillis
	}
	return c.queue.Remaining(now).Milliseconds()
}

func (c *Coordinator) sendTurnQueue(u *User, names []string, now time.Time) {
	msLeft := c.turnMillisLeft(now)
	if c.queue.Position(u.ID) > 0 {
		wait := c.queue.WaitTime(u.ID, now).Milliseconds()
		if c.queue.Indefinite() {
			wait = indefiniteMillis
		}
		u.Sender.SendTurnQueueWaiting(u.Conn, msLeft, names, wait)
		return
	}
	u.Sender.SendTurnQueue(u.Conn, msLeft, names)
}

func (c *Coordinator) broadcastTurnQueue() {
	now := c.clock.Now()
	names := c.turnNames()
	for _, u := range c.users.Participants() {
		c.sendTurnQueue(u, names, now)
	}
}

// ----- vote timers -----

func (c *Coordinator) armVoteTimer(d time.Duration, fire func(gen uint64)) {
	if c.voteTimer != nil {
		c.voteTimer.Stop()
	}
	gen := c.poll.Gen()
	c.voteTimer = c.clock.AfterFunc(d, func() {
		c.post(func() { fire(gen) })
	})
}

func (c *Coordinator) voteExpired(gen uint64) {
	out, ok := c.poll.Expire(gen, c.clock.Now())
	if !ok {
		return
	}
	c.finishVote(out)
}

func (c *Coordinator) voteSettled(gen uint64) {
	c.poll.Settle(gen, c.clock.Now())
}

func (c *Coordinator) finishVote(out vote.Outcome) {
	c.metrics.VotesFinished.Add(1)
	for _, u := range c.users.Participants() {
		u.Sender.SendVoteEnded(u.Conn)
	}
	if out.Passed {
		c.systemChat("The vote to reset the VM has won.")
		c.resetMachine(nil, "vote")
	} else {
		c.systemChat("The vote to reset the VM has lost.")
	}
	c.armVoteTimer(c.cfg.Collab.VoteCooldown, c.voteSettled)
}

func (c *Coordinator) broadcastVoteStats(now time.Time) {
	if c.poll.Phase() != vote.Active {
		return
	}
	yes, no := c.poll.Counts()
	ms := c.poll.Remaining(now).Milliseconds()
	for _, u := range c.users.Participants() {
		u.Sender.SendVoteStats(u.Conn, ms, yes, no)
	}
}

// ----- chat helpers -----

// systemChat broadcasts a server announcement.
func (c *Coordinator) systemChat(text string) {
	for _, u := range c.users.Participants() {
		u.Sender.SendChat(u.Conn, "", text)
	}
}

// notice sends a private server message to u.
func (c *Coordinator) notice(u *User, text string) {
	u.Sender.SendChat(u.Conn, "", text)
}

// ----- naming -----

func (c *Coordinator) newGuestName() string {
	for {
		name := model.GuestName(c.guestNumber())
		if c.users.ByName(name) == nil {
			return name
		}
	}
}

// setName renames u and tells everyone who needs to know.
func (c *Coordinator) setName(u *User, name string, status protocol.RenameStatus) {
	old := u.Username
	u.Username = name
	u.Sender.SendSelfRename(u.Conn, status, name)
	if old == "" || old == name || !u.Participant() {
		return
	}
	for _, o := range c.users.Participants() {
		if o != u {
			o.Sender.SendRename(o.Conn, old, name)
		}
	}
	c.broadcastTurnQueueIfHeld(u)
}

func (c *Coordinator) broadcastTurnQueueIfHeld(u *User) {
	if c.queue.Position(u.ID) >= 0 {
		c.broadcastTurnQueue()
	}
}

// announceRank re-sends u's user entry so other clients see a rank change.
func (c *Coordinator) announceRank(u *User) {
	if !u.Participant() {
		return
	}
	for _, o := range c.users.Participants() {
		o.Sender.SendAddUser(o.Conn, []protocol.UserEntry{u.entry()})
	}
}
