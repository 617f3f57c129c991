package protocol

const (
	ProtocolText   = "guacamole"
	ProtocolBinary = "binary1"

	// CapBinary is the capability a client advertises to switch to the
	// binary protocol.
	CapBinary = "bin"
)

var senders = map[string]Sender{
	ProtocolText:   Text{},
	ProtocolBinary: Binary{},
}

// Lookup returns the sender registered under name.
func Lookup(name string) (Sender, bool) {
	s, ok := senders[name]
	return s, ok
}

// Negotiate picks the protocol for a capability list and returns the
// capabilities the server accepted.
func Negotiate(caps []string) (Sender, []string) {
	for _, c := range caps {
		if c == CapBinary {
			s, _ := Lookup(ProtocolBinary)
			return s, []string{CapBinary}
		}
	}
	s, _ := Lookup(ProtocolText)
	return s, nil
}
