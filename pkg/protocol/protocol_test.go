package protocol

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		elements []string
	}{
		{"single opcode", []string{"nop"}},
		{"chat", []string{"chat", "hello"}},
		{"separators inside", []string{"chat", "a,b;c", ";;", ",,"}},
		{"empty element", []string{"rename", ""}},
		{"multibyte", []string{"chat", "héllo wörld", "日本語", "😀"}},
		{"digits and dots", []string{"4.chat", "12.", "0."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(Encode(tt.elements...)))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(tt.elements, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func FuzzEncodeDecode(f *testing.F) {
	f.Add("chat", "hello", "")
	f.Add("rename", "a,b;c", "12.")
	f.Add("chat", "日本語", "😀")
	f.Fuzz(func(t *testing.T, a, b, c string) {
		elements := []string{a, b, c}
		for _, e := range elements {
			if !utf8.ValidString(e) {
				t.Skip()
			}
		}
		raw := Encode(elements...)
		if len(raw) > MaxFrameSize {
			t.Skip()
		}
		got, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Decode(%q): %v", raw, err)
		}
		if diff := cmp.Diff(elements, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestChatFrameIsBitExact(t *testing.T) {
	const raw = "4.chat,5.hello;"

	got, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode(%q): %v", raw, err)
	}
	if diff := cmp.Diff([]string{"chat", "hello"}, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
	if enc := Encode("chat", "hello"); enc != raw {
		t.Errorf("Encode = %q, want %q", enc, raw)
	}
}

func TestEncodeUsesByteLength(t *testing.T) {
	if got, want := Encode("é"), "2.é;"; got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":              "",
		"missing terminator": "4.chat,5.hello",
		"missing dot":        "4chat;",
		"non-numeric length": "x.chat;",
		"negative length":    "-1.a;",
		"truncated element":  "10.chat;",
		"trailing garbage":   "4.chat;x",
		"two instructions":   "3.nop;3.nop;",
		"bad separator":      "4.chat.5.hello;",
		"length too long":    "999999999.a;",
		"invalid utf8":       "2.\xff\xfe;",
		"only separator":     ";",
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(raw)); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("Decode(%q) error = %v, want ErrMalformedFrame", raw, err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Message
		wantErr error
	}{
		{"nop", Encode("nop"), Nop{}, nil},
		{"cap", Encode("cap", "bin"), Capabilities{Caps: []string{"bin"}}, nil},
		{"cap without caps", Encode("cap"), nil, ErrBadArguments},
		{"login", Encode("login", "tok"), Login{Token: "tok"}, nil},
		{"login extra", Encode("login", "a", "b"), nil, ErrBadArguments},
		{"connect", Encode("connect", "vm1"), Connect{Node: "vm1"}, nil},
		{"view", Encode("view", "vm1", "1"), View{Node: "vm1", Mode: 1}, nil},
		{"view bad mode", Encode("view", "vm1", "x"), nil, ErrBadArguments},
		{"rename generate", Encode("rename"), Rename{Generate: true}, nil},
		{"rename", Encode("rename", "bob"), Rename{Name: "bob"}, nil},
		{"turn request", Encode("turn"), Turn{}, nil},
		{"turn request explicit", Encode("turn", "1"), Turn{}, nil},
		{"turn forfeit", Encode("turn", "0"), Turn{Forfeit: true}, nil},
		{"turn bad flag", Encode("turn", "2"), nil, ErrBadArguments},
		{"turn too many", Encode("turn", "1", "1"), nil, ErrBadArguments},
		{"mouse", Encode("mouse", "10", "20", "1"), Mouse{X: 10, Y: 20, Mask: 1}, nil},
		{"mouse nan", Encode("mouse", "10", "NaN", "1"), nil, ErrBadArguments},
		{"mouse short", Encode("mouse", "10", "20"), nil, ErrBadArguments},
		{"key", Encode("key", "65307", "1"), Key{Keysym: 65307, Down: true}, nil},
		{"key bad down", Encode("key", "65307", "2"), nil, ErrBadArguments},
		{"vote", Encode("vote", "1"), Vote{Choice: 1}, nil},
		{"vote empty", Encode("vote", ""), nil, ErrBadArguments},
		{"audioMute", Encode("audioMute"), AudioMute{}, nil},
		{"chat", Encode("chat", "hi"), Chat{Text: "hi"}, nil},
		{"chat missing", Encode("chat"), nil, ErrBadArguments},
		{"unknown opcode", Encode("fancy", "1", "2"), Unknown{Opcode: "fancy"}, nil},
		{"admin short", Encode("admin"), nil, ErrBadArguments},
		{"admin unknown", Encode("admin", "99"), Unknown{Opcode: "admin:99"}, nil},
		{"admin login", Encode("admin", "2", "pw"), AdminLogin{Password: "pw"}, nil},
		{"admin monitor", Encode("admin", "5", "vm1", "info"), AdminMonitor{Node: "vm1", Command: "info"}, nil},
		{"admin ban", Encode("admin", "12", "bob"), AdminBan{Target: "bob"}, nil},
		{"admin ban reason", Encode("admin", "12", "bob", "spam"), AdminBan{Target: "bob", Reason: "spam"}, nil},
		{"admin ban missing target", Encode("admin", "12"), nil, ErrBadArguments},
		{"admin force vote", Encode("admin", "13", "1"), AdminForceVote{Choice: 1}, nil},
		{"admin mute temporary", Encode("admin", "14", "bob", "0"), AdminMute{Target: "bob", Temporary: true}, nil},
		{"admin mute permanent", Encode("admin", "14", "bob", "1"), AdminMute{Target: "bob"}, nil},
		{"admin mute bad flag", Encode("admin", "14", "bob", "x"), nil, ErrBadArguments},
		{"admin rename", Encode("admin", "18", "bob", "rob"), AdminRename{Target: "bob", NewName: "rob"}, nil},
		{"admin bypass", Encode("admin", "20"), AdminBypassTurn{}, nil},
		{"admin toggle turns", Encode("admin", "22", "0"), AdminToggleTurns{Enabled: false}, nil},
		{"admin hide screen", Encode("admin", "24", "0"), AdminHideScreen{Hidden: true}, nil},
		{"admin show screen", Encode("admin", "24", "1"), AdminHideScreen{Hidden: false}, nil},
		{"admin system message", Encode("admin", "25", "<b>hi</b>"), AdminSystemMessage{Text: "<b>hi</b>"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.raw))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse([]byte("4.chat,5.hel")); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Parse error = %v, want ErrMalformedFrame", err)
	}
}

type recordingPeer struct {
	texts    []string
	binaries [][]byte
}

func (p *recordingPeer) SendText(msg string)    { p.texts = append(p.texts, msg) }
func (p *recordingPeer) SendBinary(data []byte) { p.binaries = append(p.binaries, data) }

func TestTextSender(t *testing.T) {
	p := &recordingPeer{}
	var s Sender = Text{}

	s.SendConnectOK(p, true)
	s.SendAdminLogin(p, true, true, 0x25)
	s.SendChatHistory(p, []ChatEntry{{"a", "1"}, {"b", "2"}})
	s.SendAddUser(p, []UserEntry{{"alice", 2}})
	s.SendTurnQueueWaiting(p, 1500, []string{"alice", "bob"}, 3000)
	s.SendScreenUpdate(p, ScreenRect{X: 8, Y: 16, Data: []byte{1, 2, 3}}, 42)
	s.SendAudioOpus(p, []byte{9})

	want := []string{
		Encode("connect", "1", "1", "1", "0"),
		Encode("admin", "0", "3", "37"),
		Encode("chat", "a", "1", "b", "2"),
		Encode("adduser", "1", "alice", "2"),
		Encode("turn", "1500", "2", "alice", "bob", "3000"),
		Encode("png", "0", "0", "8", "16", "AQID"),
		Encode("sync", "42"),
	}
	if diff := cmp.Diff(want, p.texts); diff != "" {
		t.Errorf("text output mismatch (-want +got):\n%s", diff)
	}
	if len(p.binaries) != 0 {
		t.Errorf("text sender wrote %d binary frames", len(p.binaries))
	}
}

func TestBinarySenderOverridesPayloadKinds(t *testing.T) {
	p := &recordingPeer{}
	var s Sender = Binary{}

	s.SendChat(p, "alice", "hi")
	s.SendScreenUpdate(p, ScreenRect{X: 1, Y: 2, Width: 3, Height: 4, Data: []byte{0xff, 0xd8}}, 0)
	s.SendAudioOpus(p, []byte{7, 7})

	if diff := cmp.Diff([]string{Encode("chat", "alice", "hi")}, p.texts); diff != "" {
		t.Errorf("text output mismatch (-want +got):\n%s", diff)
	}
	if len(p.binaries) != 2 {
		t.Fatalf("got %d binary frames, want 2", len(p.binaries))
	}

	frame, err := DecodeRecord(p.binaries[0])
	if err != nil {
		t.Fatalf("DecodeRecord(frame): %v", err)
	}
	if frame.Type != RecordFrame || frame.Rect == nil {
		t.Fatalf("frame record = %+v", frame)
	}
	if frame.Rect.X != 1 || frame.Rect.Y != 2 || frame.Rect.Width != 3 || frame.Rect.Height != 4 {
		t.Errorf("frame rect = %+v", *frame.Rect)
	}
	if diff := cmp.Diff([]byte{0xff, 0xd8}, frame.Frame); diff != "" {
		t.Errorf("frame payload mismatch (-want +got):\n%s", diff)
	}

	audio, err := DecodeRecord(p.binaries[1])
	if err != nil {
		t.Fatalf("DecodeRecord(audio): %v", err)
	}
	if audio.Type != RecordAudioOpus {
		t.Errorf("audio record type = %d", audio.Type)
	}
	if diff := cmp.Diff([]byte{7, 7}, audio.OpusPacket); diff != "" {
		t.Errorf("opus payload mismatch (-want +got):\n%s", diff)
	}
}

func TestNegotiate(t *testing.T) {
	s, accepted := Negotiate([]string{"foo", CapBinary})
	if s.Name() != ProtocolBinary {
		t.Errorf("Negotiate picked %q, want %q", s.Name(), ProtocolBinary)
	}
	if diff := cmp.Diff([]string{CapBinary}, accepted); diff != "" {
		t.Errorf("accepted caps mismatch (-want +got):\n%s", diff)
	}

	s, accepted = Negotiate([]string{"foo"})
	if s.Name() != ProtocolText || accepted != nil {
		t.Errorf("Negotiate(foo) = %q, %v", s.Name(), accepted)
	}

	if _, ok := Lookup("nope"); ok {
		t.Error("Lookup(nope) succeeded")
	}
}
