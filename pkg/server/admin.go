package server

import (
	"github.com/NicolasHaas/gocollab/pkg/crypto"
	"github.com/NicolasHaas/gocollab/pkg/model"
	"github.com/NicolasHaas/gocollab/pkg/protocol"
	"github.com/NicolasHaas/gocollab/pkg/rbac"
	"github.com/NicolasHaas/gocollab/pkg/vote"
)

// handleAdmin dispatches admin sub-opcodes. Each case checks its own
// permission.
func (c *Coordinator) handleAdmin(u *User, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.AdminLogin:
		c.handleAdminLogin(u, m)

	case protocol.AdminMonitor:
		if u.Rank != model.RankAdmin {
			c.notice(u, "permission denied: monitor requires admin rank")
			return
		}
		if m.Node != c.cfg.Node.ID {
			return
		}
		c.monitor(u, m.Command)

	case protocol.AdminRestore:
		if c.require(u, model.PermRestore) && m.Node == c.cfg.Node.ID {
			c.resetMachine(u, "restore")
		}

	case protocol.AdminReboot:
		if c.require(u, model.PermReboot) && m.Node == c.cfg.Node.ID {
			c.rebootMachine(u)
		}

	case protocol.AdminBan:
		if !c.require(u, model.PermBan) {
			return
		}
		if target := c.target(u, m.Target); target != nil {
			c.ban(u, target, m.Reason)
		}

	case protocol.AdminForceVote:
		if !c.require(u, model.PermForceVote) {
			return
		}
		choice, ok := vote.ChoiceFromWire(m.Choice)
		if !ok {
			return
		}
		out, err := c.poll.Force(choice, c.clock.Now())
		if err != nil {
			return
		}
		c.finishVote(out)

	case protocol.AdminMute:
		if !c.require(u, model.PermMute) {
			return
		}
		if target := c.target(u, m.Target); target != nil {
			c.toggleMute(u, target, m.Temporary)
		}

	case protocol.AdminKick:
		if !c.require(u, model.PermKick) {
			return
		}
		if target := c.target(u, m.Target); target != nil {
			c.kick(u, target, "kicked")
		}

	case protocol.AdminEndTurn:
		if !c.require(u, model.PermBypassTurn) {
			return
		}
		if target := c.target(u, m.Target); target != nil {
			c.applyTurn(c.queue.EndTurn(target.ID, c.clock.Now()))
		}

	case protocol.AdminClearQueue:
		if c.require(u, model.PermBypassTurn) && m.Node == c.cfg.Node.ID {
			c.applyTurn(c.queue.Clear())
		}

	case protocol.AdminRename:
		if !c.require(u, model.PermRename) {
			return
		}
		if target := c.target(u, m.Target); target != nil {
			c.adminRename(u, target, m.NewName)
		}

	case protocol.AdminGetIP:
		if !c.require(u, model.PermGrabIP) {
			return
		}
		if target := c.target(u, m.Target); target != nil {
			u.Sender.SendAdminIP(u.Conn, target.Username, target.IP)
		}

	case protocol.AdminBypassTurn:
		if c.require(u, model.PermBypassTurn) && u.Participant() {
			c.applyTurn(c.queue.Bypass(u.ID, c.clock.Now()))
		}

	case protocol.AdminRawMessage:
		if c.require(u, model.PermXSS) && u.Participant() && m.Text != "" {
			c.broadcastChat(u.Username, u.IP, m.Text, c.clock.Now())
		}

	case protocol.AdminToggleTurns:
		if !c.require(u, model.PermToggleTurns) {
			return
		}
		c.queue.SetAccepting(m.Enabled)
		if !m.Enabled {
			c.applyTurn(c.queue.Clear())
		}
		c.log.Info("turns toggled", "enabled", m.Enabled, "by", u.Username)

	case protocol.AdminIndefiniteTurn:
		if c.require(u, model.PermIndefiniteTurn) && u.Participant() {
			c.applyTurn(c.queue.GrantIndefinite(u.ID, c.clock.Now()))
		}

	case protocol.AdminHideScreen:
		if c.require(u, model.PermHideScreen) {
			c.setScreenHidden(m.Hidden)
		}

	case protocol.AdminSystemMessage:
		if c.require(u, model.PermXSS) && m.Text != "" {
			c.systemChat(m.Text)
		}
	}
}

// require checks perm and sends u a private notice when it is missing.
func (c *Coordinator) require(u *User, perm model.Permission) bool {
	if msg := rbac.RequirePermission(u.Rank, u.Perms, perm); msg != "" {
		c.notice(u, msg)
		return false
	}
	return true
}

// target resolves an admin command target by username.
func (c *Coordinator) target(u *User, username string) *User {
	t := c.users.ByName(username)
	if t == nil {
		c.log.Debug("admin target not found", "target", username, "by", u.Username)
	}
	return t
}

// staffGrant is the outcome of a staff password check.
type staffGrant int

const (
	grantNone staffGrant = iota
	grantTurns
	grantModerator
	grantAdmin
)

func (c *Coordinator) handleAdminLogin(u *User, m protocol.AdminLogin) {
	if u.passwordPending {
		c.log.Debug("password check already pending", "user", u.Username, "ip", u.IP)
		return
	}
	now := c.clock.Now()
	if iv := c.cfg.Auth.PasswordInterval; iv > 0 && !u.lastPassword.IsZero() && now.Sub(u.lastPassword) < iv {
		c.metrics.FailedAuths.Add(1)
		u.Sender.SendAdminLogin(u.Conn, false, false, 0)
		return
	}
	u.passwordPending = true
	u.lastPassword = now

	ctx, id := c.ctx, u.ID
	secrets := []struct {
		stored string
		grant  staffGrant
	}{
		{c.cfg.Admin, grantAdmin},
		{c.cfg.Mod, grantModerator},
		{c.cfg.Turn, grantTurns},
	}
	c.async(func() func() {
		select {
		case c.passwordSlots <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		defer func() { <-c.passwordSlots }()

		grant := grantNone
		for _, s := range secrets {
			ok, err := c.checkSecret(s.stored, m.Password)
			if err != nil {
				c.log.Error("verify staff secret", "grant", s.grant, "err", err)
				continue
			}
			if ok {
				grant = s.grant
				break
			}
		}
		return func() { c.finishAdminLogin(id, grant) }
	})
}

func verifySecret(stored, candidate string) (bool, error) {
	if stored == "" {
		return false, nil
	}
	return crypto.VerifySecret(stored, candidate)
}

func (c *Coordinator) finishAdminLogin(id string, grant staffGrant) {
	u := c.users.Get(id)
	if u == nil {
		return
	}
	u.passwordPending = false
	switch grant {
	case grantAdmin:
		u.Rank = model.RankAdmin
		u.Perms = model.AllPermissions()
		u.Sender.SendAdminLogin(u.Conn, true, false, 0)
	case grantModerator:
		u.Rank = model.RankModerator
		u.Perms = c.cfg.ModeratorPermissions
		u.Sender.SendAdminLogin(u.Conn, true, true, u.Perms.Mask())
	case grantTurns:
		u.TurnWhitelist = true
		c.metrics.SuccessfulAuths.Add(1)
		c.notice(u, "You may now take turns.")
		c.log.Info("turn password accepted", "user", u.Username, "ip", u.IP)
		return
	default:
		c.metrics.FailedAuths.Add(1)
		u.Sender.SendAdminLogin(u.Conn, false, false, 0)
		c.log.Warn("admin login failed", "user", u.Username, "ip", u.IP)
		return
	}
	c.metrics.SuccessfulAuths.Add(1)
	c.announceRank(u)
	if c.screenHidden {
		c.sendFullFrame([]*User{u})
	}
	c.log.Info("staff login", "user", u.Username, "rank", u.Rank)
}

func (c *Coordinator) monitor(u *User, command string) {
	ctx, id := c.ctx, u.ID
	c.async(func() func() {
		out, err := c.machine.Monitor(ctx, command)
		return func() {
			u := c.users.Get(id)
			if u == nil {
				return
			}
			if err != nil {
				c.log.Error("monitor command", "command", command, "err", err)
				out = "Error: " + err.Error()
			}
			u.Sender.SendAdminMonitor(u.Conn, out)
		}
	})
}

// resetMachine restores the machine. by is nil when a vote triggered it.
func (c *Coordinator) resetMachine(by *User, reason string) {
	ctx := c.ctx
	var id string
	if by != nil {
		id = by.ID
	}
	c.async(func() func() {
		err := c.machine.Reset(ctx)
		return func() { c.machineResult(id, "reset", reason, err) }
	})
}

func (c *Coordinator) rebootMachine(by *User) {
	ctx, id := c.ctx, by.ID
	c.async(func() func() {
		err := c.machine.Reboot(ctx)
		return func() { c.machineResult(id, "reboot", "admin", err) }
	})
}

func (c *Coordinator) machineResult(id, op, reason string, err error) {
	if err == nil {
		c.log.Info("machine "+op, "reason", reason)
		return
	}
	c.log.Error("machine "+op+" failed", "reason", reason, "err", err)
	if u := c.users.Get(id); u != nil {
		c.notice(u, "Failed to "+op+" the VM.")
	}
}

func (c *Coordinator) ban(by, target *User, reason string) {
	if c.bans == nil {
		c.notice(by, "Bans are not configured.")
		return
	}
	ctx := c.ctx
	byID, byName := by.ID, by.Username
	ip, name := target.IP, target.Username
	c.async(func() func() {
		err := c.bans.Ban(ctx, ip, name, reason, byName, 0)
		return func() {
			if err != nil {
				c.log.Error("ban failed", "target", name, "ip", ip, "err", err)
				if u := c.users.Get(byID); u != nil {
					c.notice(u, "Failed to ban "+name+".")
				}
				return
			}
			c.metrics.BanCount.Add(1)
			for _, u := range c.users.All() {
				if u.IP == ip {
					c.kick(nil, u, "banned")
				}
			}
			c.log.Info("user banned", "target", name, "ip", ip, "by", byName, "reason", reason)
		}
	})
}

// kick disconnects target immediately.
func (c *Coordinator) kick(by, target *User, reason string) {
	c.removeUser(target.ID)
	target.Conn.Close(reason)
	if reason == "kicked" {
		c.metrics.KickCount.Add(1)
	}
	if by != nil {
		c.log.Info("user kicked", "target", target.Username, "by", by.Username)
	}
}

// toggleMute mutes target, or unmutes a target that is already muted.
func (c *Coordinator) toggleMute(by, target *User, temporary bool) {
	now := c.clock.Now()
	if target.Muted(now) {
		target.MutedPermanently = false
		target.MuteUntil = now
		c.notice(target, "You have been unmuted.")
		c.notice(by, target.Username+" has been unmuted.")
		return
	}
	if temporary {
		target.MuteUntil = now.Add(c.cfg.Collab.TempMuteTime)
		c.notice(target, "You have been muted for "+c.cfg.Collab.TempMuteTime.String()+".")
	} else {
		target.MutedPermanently = true
		c.notice(target, "You have been muted indefinitely.")
	}
	c.metrics.MuteCount.Add(1)
	c.notice(by, target.Username+" has been muted.")
}

func (c *Coordinator) adminRename(by, target *User, name string) {
	if name == target.Username {
		return
	}
	if status := c.renameStatus(target, name); status != protocol.RenameOK {
		c.notice(by, "Cannot rename "+target.Username+" to "+name+".")
		return
	}
	c.setName(target, name, protocol.RenameOK)
}
