package protocol

import (
	"fmt"
	"log/slog"

	"github.com/vmihailenco/msgpack/v5"
)

// RecordType tags a binary record.
type RecordType int

const (
	RecordFrame     RecordType = 0
	RecordAudioOpus RecordType = 1
)

// Record is the msgpack envelope used by the binary protocol for the two
// payload-heavy message kinds.
type Record struct {
	Type       RecordType  `msgpack:"type"`
	Rect       *ScreenRect `msgpack:"rect,omitempty"`
	Frame      []byte      `msgpack:"frame,omitempty"`
	OpusPacket []byte      `msgpack:"opusPacket,omitempty"`
}

// EncodeRecord serializes a record as a msgpack map.
func EncodeRecord(r Record) ([]byte, error) {
	b, err := msgpack.Marshal(&r)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode record: %w", err)
	}
	return b, nil
}

// DecodeRecord parses a msgpack record produced by EncodeRecord.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("protocol: decode record: %w", err)
	}
	switch r.Type {
	case RecordFrame, RecordAudioOpus:
	default:
		return Record{}, fmt.Errorf("protocol: decode record: unknown type %d", r.Type)
	}
	return r, nil
}

// Binary is the "binary1" protocol. It behaves like Text except that screen
// updates and audio packets travel as msgpack records in binary frames.
type Binary struct {
	Text
}

var _ Sender = Binary{}

func (Binary) Name() string { return ProtocolBinary }

func (Binary) SendScreenUpdate(p Peer, rect ScreenRect, _ int64) {
	r := rect
	b, err := EncodeRecord(Record{Type: RecordFrame, Rect: &r, Frame: rect.Data})
	if err != nil {
		slog.Error("binary screen update", "err", err)
		return
	}
	p.SendBinary(b)
}

func (Binary) SendAudioOpus(p Peer, packet []byte) {
	b, err := EncodeRecord(Record{Type: RecordAudioOpus, OpusPacket: packet})
	if err != nil {
		slog.Error("binary audio packet", "err", err)
		return
	}
	p.SendBinary(b)
}
