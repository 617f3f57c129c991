package protocol

import (
	"strconv"
)

// Message is a decoded client instruction.
type Message interface{ isMessage() }

// ----- Session -----

type Nop struct{}

// Capabilities requests protocol upgrades ("bin" for the binary variant).
type Capabilities struct {
	Caps []string
}

type Login struct {
	Token string
}

// NoFlag asks the server not to publish the client's country flag.
type NoFlag struct{}

type Connect struct {
	Node string
}

type List struct{}

// View connects to a node in a given mode: 0 watches the screen only,
// 1 joins as a full participant.
type View struct {
	Node string
	Mode int
}

// Rename requests a new username. An empty Name with Generate set asks the
// server to pick a guest name.
type Rename struct {
	Name     string
	Generate bool
}

// Turn requests (or with Forfeit, gives up) control of the machine.
type Turn struct {
	Forfeit bool
}

type Vote struct {
	Choice int
}

// ----- Input -----

type Mouse struct {
	X, Y int
	Mask int
}

type Key struct {
	Keysym int
	Down   bool
}

type AudioMute struct{}

// ----- Chat -----

type Chat struct {
	Text string
}

// ----- Admin -----

type AdminLogin struct {
	Password string
}

type AdminMonitor struct {
	Node    string
	Command string
}

type AdminRestore struct {
	Node string
}

type AdminReboot struct {
	Node string
}

type AdminBan struct {
	Target string
	Reason string
}

type AdminForceVote struct {
	Choice int
}

type AdminMute struct {
	Target    string
	Temporary bool
}

type AdminKick struct {
	Target string
}

type AdminEndTurn struct {
	Target string
}

type AdminClearQueue struct {
	Node string
}

type AdminRename struct {
	Target  string
	NewName string
}

type AdminGetIP struct {
	Target string
}

type AdminBypassTurn struct{}

type AdminRawMessage struct {
	Text string
}

type AdminToggleTurns struct {
	Enabled bool
}

type AdminIndefiniteTurn struct{}

type AdminHideScreen struct {
	Hidden bool
}

type AdminSystemMessage struct {
	Text string
}

// Unknown is returned for opcodes (or admin sub-opcodes) this server does
// not implement. It is accepted and ignored.
type Unknown struct {
	Opcode string
}

func (Nop) isMessage()                 {}
func (Capabilities) isMessage()        {}
func (Login) isMessage()               {}
func (NoFlag) isMessage()              {}
func (Connect) isMessage()             {}
func (List) isMessage()                {}
func (View) isMessage()                {}
func (Rename) isMessage()              {}
func (Turn) isMessage()                {}
func (Vote) isMessage()                {}
func (Mouse) isMessage()               {}
func (Key) isMessage()                 {}
func (AudioMute) isMessage()           {}
func (Chat) isMessage()                {}
func (AdminLogin) isMessage()          {}
func (AdminMonitor) isMessage()        {}
func (AdminRestore) isMessage()        {}
func (AdminReboot) isMessage()         {}
func (AdminBan) isMessage()            {}
func (AdminForceVote) isMessage()      {}
func (AdminMute) isMessage()           {}
func (AdminKick) isMessage()           {}
func (AdminEndTurn) isMessage()        {}
func (AdminClearQueue) isMessage()     {}
func (AdminRename) isMessage()         {}
func (AdminGetIP) isMessage()          {}
func (AdminBypassTurn) isMessage()     {}
func (AdminRawMessage) isMessage()     {}
func (AdminToggleTurns) isMessage()    {}
func (AdminIndefiniteTurn) isMessage() {}
func (AdminHideScreen) isMessage()     {}
func (AdminSystemMessage) isMessage()  {}
func (Unknown) isMessage()             {}

// Admin sub-opcodes carried as the second element of an "admin" instruction.
const (
	AdminOpLogin          = 2
	AdminOpMonitor        = 5
	AdminOpRestore        = 8
	AdminOpReboot         = 10
	AdminOpBan            = 12
	AdminOpForceVote      = 13
	AdminOpMute           = 14
	AdminOpKick           = 15
	AdminOpEndTurn        = 16
	AdminOpClearQueue     = 17
	AdminOpRename         = 18
	AdminOpGetIP          = 19
	AdminOpBypassTurn     = 20
	AdminOpRawMessage     = 21
	AdminOpToggleTurns    = 22
	AdminOpIndefiniteTurn = 23
	AdminOpHideScreen     = 24
	AdminOpSystemMessage  = 25
)

// Parse decodes a raw text frame and maps it to a typed Message.
//
// Malformed frames return ErrMalformedFrame, known opcodes with the wrong
// shape return ErrBadArguments. Unrecognised opcodes yield Unknown.
func Parse(raw []byte) (Message, error) {
	el, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return ParseElements(el)
}

// ParseElements maps already-decoded elements to a typed Message.
func ParseElements(el []string) (Message, error) {
	if len(el) < 1 {
		return nil, ErrMalformedFrame
	}

	switch el[0] {
	case "nop":
		return Nop{}, nil

	case "cap":
		if len(el) < 2 {
			return nil, ErrBadArguments
		}
		return Capabilities{Caps: append([]string(nil), el[1:]...)}, nil

	case "login":
		if len(el) != 2 {
			return nil, ErrBadArguments
		}
		return Login{Token: el[1]}, nil

	case "noflag":
		return NoFlag{}, nil

	case "list":
		return List{}, nil

	case "connect":
		if len(el) != 2 {
			return nil, ErrBadArguments
		}
		return Connect{Node: el[1]}, nil

	case "view":
		if len(el) != 3 {
			return nil, ErrBadArguments
		}
		mode, err := atoi(el[2])
		if err != nil {
			return nil, err
		}
		return View{Node: el[1], Mode: mode}, nil

	case "rename":
		switch len(el) {
		case 1:
			return Rename{Generate: true}, nil
		case 2:
			return Rename{Name: el[1]}, nil
		default:
			return nil, ErrBadArguments
		}

	case "chat":
		if len(el) != 2 {
			return nil, ErrBadArguments
		}
		return Chat{Text: el[1]}, nil

	case "turn":
		switch len(el) {
		case 1:
			return Turn{}, nil
		case 2:
			forfeit, err := flag(el[1])
			if err != nil {
				return nil, err
			}
			// "0" gives the turn up, "1" asks for it.
			return Turn{Forfeit: !forfeit}, nil
		default:
			return nil, ErrBadArguments
		}

	case "mouse":
		if len(el) != 4 {
			return nil, ErrBadArguments
		}
		x, err := atoi(el[1])
		if err != nil {
			return nil, err
		}
		y, err := atoi(el[2])
		if err != nil {
			return nil, err
		}
		mask, err := atoi(el[3])
		if err != nil {
			return nil, err
		}
		return Mouse{X: x, Y: y, Mask: mask}, nil

	case "key":
		if len(el) != 3 {
			return nil, ErrBadArguments
		}
		keysym, err := atoi(el[1])
		if err != nil {
			return nil, err
		}
		down, err := flag(el[2])
		if err != nil {
			return nil, err
		}
		return Key{Keysym: keysym, Down: down}, nil

	case "vote":
		if len(el) != 2 {
			return nil, ErrBadArguments
		}
		choice, err := atoi(el[1])
		if err != nil {
			return nil, err
		}
		return Vote{Choice: choice}, nil

	case "audioMute":
		if len(el) != 1 {
			return nil, ErrBadArguments
		}
		return AudioMute{}, nil

	case "admin":
		if len(el) < 2 {
			return nil, ErrBadArguments
		}
		return parseAdmin(el)

	default:
		return Unknown{Opcode: el[0]}, nil
	}
}

func parseAdmin(el []string) (Message, error) {
	op, err := strconv.Atoi(el[1])
	if err != nil {
		return Unknown{Opcode: "admin:" + el[1]}, nil
	}

	// want checks the exact element count for a sub-opcode.
	want := func(n int) error {
		if len(el) != n {
			return ErrBadArguments
		}
		return nil
	}

	switch op {
	case AdminOpLogin:
		if err := want(3); err != nil {
			return nil, err
		}
		return AdminLogin{Password: el[2]}, nil

	case AdminOpMonitor:
		if err := want(4); err != nil {
			return nil, err
		}
		return AdminMonitor{Node: el[2], Command: el[3]}, nil

	case AdminOpRestore:
		if err := want(3); err != nil {
			return nil, err
		}
		return AdminRestore{Node: el[2]}, nil

	case AdminOpReboot:
		if err := want(3); err != nil {
			return nil, err
		}
		return AdminReboot{Node: el[2]}, nil

	case AdminOpBan:
		switch len(el) {
		case 3:
			return AdminBan{Target: el[2]}, nil
		case 4:
			return AdminBan{Target: el[2], Reason: el[3]}, nil
		default:
			return nil, ErrBadArguments
		}

	case AdminOpForceVote:
		if err := want(3); err != nil {
			return nil, err
		}
		choice, err := atoi(el[2])
		if err != nil {
			return nil, err
		}
		return AdminForceVote{Choice: choice}, nil

	case AdminOpMute:
		if err := want(4); err != nil {
			return nil, err
		}
		permanent, err := flag(el[3])
		if err != nil {
			return nil, err
		}
		return AdminMute{Target: el[2], Temporary: !permanent}, nil

	case AdminOpKick:
		if err := want(3); err != nil {
			return nil, err
		}
		return AdminKick{Target: el[2]}, nil

	case AdminOpEndTurn:
		if err := want(3); err != nil {
			return nil, err
		}
		return AdminEndTurn{Target: el[2]}, nil

	case AdminOpClearQueue:
		if err := want(3); err != nil {
			return nil, err
		}
		return AdminClearQueue{Node: el[2]}, nil

	case AdminOpRename:
		if err := want(4); err != nil {
			return nil, err
		}
		return AdminRename{Target: el[2], NewName: el[3]}, nil

	case AdminOpGetIP:
		if err := want(3); err != nil {
			return nil, err
		}
		return AdminGetIP{Target: el[2]}, nil

	case AdminOpBypassTurn:
		if err := want(2); err != nil {
			return nil, err
		}
		return AdminBypassTurn{}, nil

	case AdminOpRawMessage:
		if err := want(3); err != nil {
			return nil, err
		}
		return AdminRawMessage{Text: el[2]}, nil

	case AdminOpToggleTurns:
		if err := want(3); err != nil {
			return nil, err
		}
		enabled, err := flag(el[2])
		if err != nil {
			return nil, err
		}
		return AdminToggleTurns{Enabled: enabled}, nil

	case AdminOpIndefiniteTurn:
		if err := want(2); err != nil {
			return nil, err
		}
		return AdminIndefiniteTurn{}, nil

	case AdminOpHideScreen:
		if err := want(3); err != nil {
			return nil, err
		}
		show, err := flag(el[2])
		if err != nil {
			return nil, err
		}
		return AdminHideScreen{Hidden: !show}, nil

	case AdminOpSystemMessage:
		if err := want(3); err != nil {
			return nil, err
		}
		return AdminSystemMessage{Text: el[2]}, nil

	default:
		return Unknown{Opcode: "admin:" + el[1]}, nil
	}
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrBadArguments
	}
	return n, nil
}

// flag parses a strict "0"/"1" boolean.
func flag(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, ErrBadArguments
	}
}
