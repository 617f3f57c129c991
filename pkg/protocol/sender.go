package protocol

import (
	"encoding/base64"
	"strconv"
)

// Peer is the write side of a client connection. Implementations enqueue
// without blocking.
type Peer interface {
	SendText(msg string)
	SendBinary(data []byte)
}

// RenameStatus is the result code of a rename request.
type RenameStatus int

const (
	RenameOK RenameStatus = iota
	RenameTaken
	RenameInvalid
	RenameBlacklisted
)

// ScreenRect is a changed screen region ready for delivery. Data holds the
// already encoded image bytes.
type ScreenRect struct {
	X        int    `msgpack:"x"`
	Y        int    `msgpack:"y"`
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Data     []byte `msgpack:"-"`
	Encoding string `msgpack:"encoding,omitempty"`
}

// ChatEntry is one (user, message) pair of a chat history replay.
type ChatEntry struct {
	Username string
	Text     string
}

// UserEntry describes a user in an adduser message.
type UserEntry struct {
	Username string
	Rank     int
}

// Flag maps a user to a country code.
type Flag struct {
	Username    string
	CountryCode string
}

// ListEntry is one node of a directory listing.
type ListEntry struct {
	ID        string
	Name      string
	Thumbnail []byte
}

// Sender writes server messages to a peer in one protocol variant.
type Sender interface {
	Name() string

	SendAuth(p Peer, authURL string)
	SendNop(p Peer)
	SendSync(p Peer, nowMillis int64)
	SendCapabilities(p Peer, caps []string)
	SendConnectFail(p Peer)
	SendConnectOK(p Peer, votes bool)
	SendLogin(p Peer, ok bool, message string)
	SendAdminLogin(p Peer, ok bool, moderator bool, permMask uint32)
	SendAdminMonitor(p Peer, output string)
	SendAdminIP(p Peer, username, ip string)
	SendChat(p Peer, username, text string)
	SendChatHistory(p Peer, history []ChatEntry)
	SendAddUser(p Peer, users []UserEntry)
	SendRemUser(p Peer, usernames []string)
	SendFlag(p Peer, flags []Flag)
	SendSelfRename(p Peer, status RenameStatus, newName string)
	SendRename(p Peer, oldName, newName string)
	SendList(p Peer, nodes []ListEntry)
	SendVoteStarted(p Peer)
	SendVoteStats(p Peer, msLeft int64, yes, no int)
	SendVoteEnded(p Peer)
	SendVoteCooldown(p Peer, msLeft int64)
	SendTurnQueue(p Peer, msLeft int64, usernames []string)
	SendTurnQueueWaiting(p Peer, msLeft int64, usernames []string, waitMillis int64)
	SendScreenResize(p Peer, width, height int)
	SendScreenUpdate(p Peer, rect ScreenRect, nowMillis int64)
	SendAudioOpus(p Peer, packet []byte)
}

// Text is the length-prefixed text protocol ("guacamole").
type Text struct{}

var _ Sender = Text{}

func (Text) Name() string { return ProtocolText }

func (Text) send(p Peer, elements ...string) {
	p.SendText(Encode(elements...))
}

func (t Text) SendAuth(p Peer, authURL string) { t.send(p, "auth", authURL) }

func (t Text) SendNop(p Peer) { t.send(p, "nop") }

func (t Text) SendSync(p Peer, nowMillis int64) {
	t.send(p, "sync", strconv.FormatInt(nowMillis, 10))
}

func (t Text) SendCapabilities(p Peer, caps []string) {
	t.send(p, append([]string{"cap"}, caps...)...)
}

func (t Text) SendConnectFail(p Peer) { t.send(p, "connect", "0") }

func (t Text) SendConnectOK(p Peer, votes bool) {
	t.send(p, "connect", "1", "1", boolString(votes), "0")
}

func (t Text) SendLogin(p Peer, ok bool, message string) {
	if ok {
		t.send(p, "login", "1")
		return
	}
	t.send(p, "login", "0", message)
}

func (t Text) SendAdminLogin(p Peer, ok bool, moderator bool, permMask uint32) {
	switch {
	case !ok:
		t.send(p, "admin", "0", "0")
	case moderator:
		t.send(p, "admin", "0", "3", strconv.FormatUint(uint64(permMask), 10))
	default:
		t.send(p, "admin", "0", "1")
	}
}

func (t Text) SendAdminMonitor(p Peer, output string) { t.send(p, "admin", "2", output) }

func (t Text) SendAdminIP(p Peer, username, ip string) {
	t.send(p, "admin", "19", username, ip)
}

func (t Text) SendChat(p Peer, username, text string) { t.send(p, "chat", username, text) }

func (t Text) SendChatHistory(p Peer, history []ChatEntry) {
	el := make([]string, 0, 1+2*len(history))
	el = append(el, "chat")
	for _, h := range history {
		el = append(el, h.Username, h.Text)
	}
	t.send(p, el...)
}

func (t Text) SendAddUser(p Peer, users []UserEntry) {
	el := make([]string, 0, 2+2*len(users))
	el = append(el, "adduser", strconv.Itoa(len(users)))
	for _, u := range users {
		el = append(el, u.Username, strconv.Itoa(u.Rank))
	}
	t.send(p, el...)
}

func (t Text) SendRemUser(p Peer, usernames []string) {
	el := make([]string, 0, 2+len(usernames))
	el = append(el, "remuser", strconv.Itoa(len(usernames)))
	el = append(el, usernames...)
	t.send(p, el...)
}

func (t Text) SendFlag(p Peer, flags []Flag) {
	el := make([]string, 0, 1+2*len(flags))
	el = append(el, "flag")
	for _, f := range flags {
		el = append(el, f.Username, f.CountryCode)
	}
	t.send(p, el...)
}

func (t Text) SendSelfRename(p Peer, status RenameStatus, newName string) {
	t.send(p, "rename", "0", strconv.Itoa(int(status)), newName)
}

func (t Text) SendRename(p Peer, oldName, newName string) {
	t.send(p, "rename", "1", oldName, newName)
}

func (t Text) SendList(p Peer, nodes []ListEntry) {
	el := make([]string, 0, 1+3*len(nodes))
	el = append(el, "list")
	for _, n := range nodes {
		el = append(el, n.ID, n.Name, base64.StdEncoding.EncodeToString(n.Thumbnail))
	}
	t.send(p, el...)
}

func (t Text) SendVoteStarted(p Peer) { t.send(p, "vote", "0") }

func (t Text) SendVoteStats(p Peer, msLeft int64, yes, no int) {
	t.send(p, "vote", "1", strconv.FormatInt(msLeft, 10), strconv.Itoa(yes), strconv.Itoa(no))
}

func (t Text) SendVoteEnded(p Peer) { t.send(p, "vote", "2") }

func (t Text) SendVoteCooldown(p Peer, msLeft int64) {
	t.send(p, "vote", "3", strconv.FormatInt(msLeft, 10))
}

func turnElements(msLeft int64, usernames []string) []string {
	el := make([]string, 0, 4+len(usernames))
	el = append(el, "turn", strconv.FormatInt(msLeft, 10), strconv.Itoa(len(usernames)))
	return append(el, usernames...)
}

func (t Text) SendTurnQueue(p Peer, msLeft int64, usernames []string) {
	t.send(p, turnElements(msLeft, usernames)...)
}

func (t Text) SendTurnQueueWaiting(p Peer, msLeft int64, usernames []string, waitMillis int64) {
	el := turnElements(msLeft, usernames)
	t.send(p, append(el, strconv.FormatInt(waitMillis, 10))...)
}

func (t Text) SendScreenResize(p Peer, width, height int) {
	t.send(p, "size", "0", strconv.Itoa(width), strconv.Itoa(height))
}

// SendScreenUpdate writes the rect as a base64 image followed by a sync.
func (t Text) SendScreenUpdate(p Peer, rect ScreenRect, nowMillis int64) {
	t.send(p, "png", "0", "0", strconv.Itoa(rect.X), strconv.Itoa(rect.Y),
		base64.StdEncoding.EncodeToString(rect.Data))
	t.SendSync(p, nowMillis)
}

// SendAudioOpus is a no-op: the text protocol has no audio channel.
func (Text) SendAudioOpus(Peer, []byte) {}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
