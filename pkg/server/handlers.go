package server

import (
	"errors"
	"html"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NicolasHaas/gocollab/pkg/auth"
	"github.com/NicolasHaas/gocollab/pkg/chat"
	"github.com/NicolasHaas/gocollab/pkg/model"
	"github.com/NicolasHaas/gocollab/pkg/protocol"
	"github.com/NicolasHaas/gocollab/pkg/rbac"
	"github.com/NicolasHaas/gocollab/pkg/vote"
)

// handleMessage dispatches a client message to the appropriate handler.
func (c *Coordinator) handleMessage(id string, msg protocol.Message) {
	u := c.users.Get(id)
	if u == nil {
		return
	}

	switch m := msg.(type) {
	case protocol.Nop:
	case protocol.Capabilities:
		c.handleCapabilities(u, m)
	case protocol.Login:
		c.handleLogin(u, m)
	case protocol.NoFlag:
		u.NoFlag = true
	case protocol.Connect:
		c.handleJoin(u, m.Node, false)
	case protocol.View:
		c.handleView(u, m)
	case protocol.List:
		c.handleList(u)
	case protocol.Rename:
		c.handleRename(u, m)
	case protocol.Turn:
		c.handleTurn(u, m)
	case protocol.Vote:
		c.handleVote(u, m)
	case protocol.Mouse:
		if c.isHolder(u) {
			c.machine.SendMouse(m.X, m.Y, m.Mask)
		}
	case protocol.Key:
		if c.isHolder(u) {
			c.machine.SendKey(m.Keysym, m.Down)
		}
	case protocol.AudioMute:
		u.AudioMuted = !u.AudioMuted
	case protocol.Chat:
		c.handleChat(u, m)
	case protocol.Unknown:
		c.log.Debug("ignoring unknown opcode", "opcode", m.Opcode, "user", u.Username)
	default:
		c.handleAdmin(u, msg)
	}
}

func (c *Coordinator) isHolder(u *User) bool {
	return u.Participant() && c.queue.Holder() == u.ID
}

// guestMay reports whether u may use a feature that guests can be denied
// while an auth mode is active.
func (c *Coordinator) guestMay(u *User, allowed bool) bool {
	return c.verifier == nil || u.Rank.AtLeast(model.RankRegistered) || allowed
}

func (c *Coordinator) handleCapabilities(u *User, m protocol.Capabilities) {
	if u.Connected {
		return
	}
	sender, accepted := protocol.Negotiate(m.Caps)
	u.Sender = sender
	u.Sender.SendCapabilities(u.Conn, accepted)
}

func (c *Coordinator) handleView(u *User, m protocol.View) {
	switch m.Mode {
	case 0:
		c.handleJoin(u, m.Node, true)
	case 1:
		c.handleJoin(u, m.Node, false)
	default:
		u.Sender.SendConnectFail(u.Conn)
	}
}

// handleJoin connects u to the node and replays the session state.
func (c *Coordinator) handleJoin(u *User, node string, spectator bool) {
	if u.Connected {
		return
	}
	if node != c.cfg.Node.ID {
		u.Sender.SendConnectFail(u.Conn)
		return
	}
	if u.Username == "" {
		c.setName(u, c.newGuestName(), protocol.RenameOK)
	}
	u.Connected = true
	u.Spectator = spectator
	u.Sender.SendConnectOK(u.Conn, c.cfg.Collab.VotesEnabled)

	now := c.clock.Now()
	if !spectator {
		c.joinParticipant(u, now)
	}
	u.Sender.SendScreenResize(u.Conn, c.width, c.height)
	if !c.screenHidden || c.seesHiddenScreen(u) {
		c.sendFullFrame([]*User{u})
	}
	c.log.Info("client joined", "user", u.Username, "ip", u.IP, "spectator", spectator)
}

func (c *Coordinator) joinParticipant(u *User, now time.Time) {
	participants := c.users.Participants()

	entries := make([]protocol.UserEntry, 0, len(participants))
	var flags []protocol.Flag
	for _, o := range participants {
		entries = append(entries, o.entry())
		if o.Country != "" && !o.NoFlag {
			flags = append(flags, protocol.Flag{Username: o.Username, CountryCode: o.Country})
		}
	}
	u.Sender.SendAddUser(u.Conn, entries)
	if len(flags) > 0 {
		u.Sender.SendFlag(u.Conn, flags)
	}

	for _, o := range participants {
		if o == u {
			continue
		}
		o.Sender.SendAddUser(o.Conn, []protocol.UserEntry{u.entry()})
		if u.Country != "" && !u.NoFlag {
			o.Sender.SendFlag(o.Conn, []protocol.Flag{{Username: u.Username, CountryCode: u.Country}})
		}
	}

	if c.history.Len() > 0 {
		hist := c.history.Entries()
		replay := make([]protocol.ChatEntry, len(hist))
		for i, e := range hist {
			replay[i] = protocol.ChatEntry{Username: e.Username, Text: e.Text}
		}
		u.Sender.SendChatHistory(u.Conn, replay)
	}
	if c.cfg.Collab.MOTD != "" {
		c.notice(u, c.cfg.Collab.MOTD)
	}

	c.sendTurnQueue(u, c.turnNames(), now)
	if c.poll.Phase() == vote.Active {
		yes, no := c.poll.Counts()
		u.Sender.SendVoteStats(u.Conn, c.poll.Remaining(now).Milliseconds(), yes, no)
	}
}

func (c *Coordinator) handleList(u *User) {
	u.Sender.SendList(u.Conn, []protocol.ListEntry{{
		ID:        c.cfg.Node.ID,
		Name:      c.cfg.Node.DisplayName,
		Thumbnail: c.thumbnail,
	}})
}

// renameStatus validates a requested name for u.
func (c *Coordinator) renameStatus(u *User, name string) protocol.RenameStatus {
	if model.ValidateUsername(name) != nil {
		return protocol.RenameInvalid
	}
	if slices.ContainsFunc(c.cfg.Collab.UsernameBlacklist, func(b string) bool {
		return strings.EqualFold(b, name)
	}) {
		return protocol.RenameBlacklisted
	}
	if o := c.users.ByName(name); o != nil && o != u {
		return protocol.RenameTaken
	}
	return protocol.RenameOK
}

func (c *Coordinator) handleRename(u *User, m protocol.Rename) {
	if u.LoggedIn {
		c.notice(u, "You are logged in and cannot change your username.")
		return
	}
	if m.Generate || m.Name == "" {
		c.setName(u, c.newGuestName(), protocol.RenameOK)
		return
	}
	if m.Name == u.Username {
		u.Sender.SendSelfRename(u.Conn, protocol.RenameOK, u.Username)
		return
	}
	status := c.renameStatus(u, m.Name)
	if status != protocol.RenameOK {
		if u.Username == "" {
			c.setName(u, c.newGuestName(), status)
			return
		}
		u.Sender.SendSelfRename(u.Conn, status, u.Username)
		return
	}
	c.setName(u, m.Name, protocol.RenameOK)
}

func (c *Coordinator) handleLogin(u *User, m protocol.Login) {
	if c.verifier == nil || u.LoggedIn {
		return
	}
	ctx := auth.WithIP(c.ctx, u.IP)
	id := u.ID
	c.async(func() func() {
		res, err := c.verifier.Verify(ctx, m.Token)
		return func() { c.finishLogin(id, res, err) }
	})
}

func (c *Coordinator) finishLogin(id string, res auth.Result, err error) {
	u := c.users.Get(id)
	if u == nil {
		return
	}
	if err != nil {
		c.log.Error("auth verify failed", "ip", u.IP, "err", err)
		c.metrics.FailedAuths.Add(1)
		u.Sender.SendLogin(u.Conn, false, "Failed to authenticate")
		return
	}
	if !res.OK {
		c.metrics.FailedAuths.Add(1)
		u.Sender.SendLogin(u.Conn, false, res.Message)
		return
	}
	c.metrics.SuccessfulAuths.Add(1)
	u.LoggedIn = true
	u.Rank = max(res.Rank, model.RankRegistered)
	switch u.Rank {
	case model.RankAdmin:
		u.Perms = model.AllPermissions()
	case model.RankModerator:
		u.Perms = c.cfg.ModeratorPermissions
	}
	u.Sender.SendLogin(u.Conn, true, "")

	// The account name wins over whoever currently uses it.
	if o := c.users.ByName(res.Username); o != nil && o != u {
		c.setName(o, c.newGuestName(), protocol.RenameOK)
	}
	if u.Username != res.Username {
		c.setName(u, res.Username, protocol.RenameOK)
	}
	switch u.Rank {
	case model.RankAdmin:
		u.Sender.SendAdminLogin(u.Conn, true, false, 0)
	case model.RankModerator:
		u.Sender.SendAdminLogin(u.Conn, true, true, u.Perms.Mask())
	}
	c.announceRank(u)
	c.log.Info("client logged in", "user", u.Username, "rank", u.Rank)
}

func (c *Coordinator) handleTurn(u *User, m protocol.Turn) {
	if !u.Participant() {
		return
	}
	now := c.clock.Now()
	if m.Forfeit {
		c.applyTurn(c.queue.Forfeit(u.ID, now))
		return
	}
	if !c.guestMay(u, c.cfg.Auth.Guests.Turn) {
		c.notice(u, "You need to log in to take turns.")
		return
	}
	if limit := c.cfg.Collab.TurnLimit; limit > 0 && c.queue.Position(u.ID) < 0 {
		n := 0
		for _, id := range c.queue.Order() {
			if o := c.users.Get(id); o != nil && o.IP == u.IP {
				n++
			}
		}
		if n >= limit {
			return
		}
	}
	if !c.queue.Accepting() && (u.TurnWhitelist || rbac.IsStaff(u.Rank)) {
		c.applyTurn(c.queue.Admit(u.ID, now))
		return
	}
	c.applyTurn(c.queue.Request(u.ID, now))
}

func (c *Coordinator) handleVote(u *User, m protocol.Vote) {
	if !u.Participant() || !c.cfg.Collab.VotesEnabled {
		return
	}
	if !c.guestMay(u, c.cfg.Auth.Guests.Vote) {
		c.notice(u, "You need to log in to vote.")
		return
	}
	choice, ok := vote.ChoiceFromWire(m.Choice)
	if !ok {
		return
	}
	now := c.clock.Now()

	if c.poll.Phase() != vote.Active {
		if choice != vote.Yes {
			return
		}
		if !c.guestMay(u, c.cfg.Auth.Guests.CallForReset) {
			c.notice(u, "You need to log in to start a vote.")
			return
		}
		if _, err := c.poll.Start(now); err != nil {
			if errors.Is(err, vote.ErrCoolingDown) {
				u.Sender.SendVoteCooldown(u.Conn, c.poll.CooldownRemaining(now).Milliseconds())
			}
			return
		}
		c.metrics.VotesStarted.Add(1)
		c.armVoteTimer(c.cfg.Collab.VoteTime, c.voteExpired)
		for _, o := range c.users.Participants() {
			o.Sender.SendVoteStarted(o.Conn)
		}
		c.systemChat(u.Username + " has started a vote to reset the VM.")
	}

	if !c.poll.Cast(u.ID, choice) {
		return
	}
	if choice == vote.Yes {
		c.systemChat(u.Username + " has voted yes.")
	} else {
		c.systemChat(u.Username + " has voted no.")
	}
	c.broadcastVoteStats(now)
}

func (c *Coordinator) handleChat(u *User, m protocol.Chat) {
	if !u.Participant() {
		return
	}
	if !c.guestMay(u, c.cfg.Auth.Guests.Chat) {
		c.notice(u, "You need to log in to chat.")
		return
	}
	now := c.clock.Now()
	if u.Muted(now) {
		return
	}
	text := strings.TrimSpace(sanitizeText(m.Text))
	if limit := c.cfg.Collab.MaxChatLength; limit > 0 && utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
	}
	if text == "" {
		return
	}
	if c.floods(u, now) {
		u.MuteUntil = now.Add(c.cfg.Collab.TempMuteTime)
		c.metrics.MuteCount.Add(1)
		c.systemChat(u.Username + " has been muted for flooding.")
		return
	}
	c.broadcastChat(u.Username, u.IP, html.EscapeString(text), now)
}

// floods records a chat message from u and reports whether it exceeds the
// automute limit.
func (c *Coordinator) floods(u *User, now time.Time) bool {
	limit := c.cfg.Collab.AutomuteMessages
	if limit <= 0 || rbac.IsStaff(u.Rank) {
		return false
	}
	cutoff := now.Add(-c.cfg.Collab.AutomuteWindow)
	u.chatTimes = slices.DeleteFunc(u.chatTimes, func(t time.Time) bool { return !t.After(cutoff) })
	u.chatTimes = append(u.chatTimes, now)
	if len(u.chatTimes) > limit {
		u.chatTimes = nil
		return true
	}
	return false
}

// broadcastChat records a chat line and sends it to every participant.
func (c *Coordinator) broadcastChat(username, ip, text string, now time.Time) {
	c.history.Add(chat.Entry{Username: username, Text: text, Time: now})
	for _, o := range c.users.Participants() {
		o.Sender.SendChat(o.Conn, username, text)
	}
	c.metrics.ChatMessagesSent.Add(1)
	c.archiveChat(username, ip, text)
}

func (c *Coordinator) archiveChat(username, ip, text string) {
	if c.archive == nil || !c.cfg.Collab.ArchiveChat {
		return
	}
	msg := &model.Message{Node: c.cfg.Node.ID, Username: username, IP: ip, Body: text}
	ctx := c.ctx
	c.async(func() func() {
		if err := c.archive.CreateMessage(ctx, msg); err != nil {
			c.log.Error("archive chat", "user", username, "err", err)
		}
		return nil
	})
}

func sanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' ' // collapse newlines to spaces
		}
		if r < 0x20 || r == 0x7f {
			return -1 // strip other control chars
		}
		return r
	}, s)
}
