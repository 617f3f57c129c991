// Package protocol implements the client wire protocol: the length-prefixed
// text instruction codec, the typed message parser and the per-variant
// senders used to write server messages back to a peer.
package protocol

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFrameSize bounds a single inbound frame. Anything larger is rejected
	// before decoding.
	MaxFrameSize = 1 << 20

	// maxLengthDigits bounds the decimal length prefix so a hostile frame
	// cannot overflow the integer parse.
	maxLengthDigits = 8
)

var (
	// ErrMalformedFrame is returned when a frame does not follow the
	// length.value,length.value; grammar. The connection owning the frame
	// must be closed.
	ErrMalformedFrame = errors.New("protocol: malformed frame")

	// ErrBadArguments is returned when a known opcode carries the wrong
	// number of elements or an unparsable argument.
	ErrBadArguments = errors.New("protocol: bad arguments")
)

// Encode serializes elements as a single text instruction.
//
// Each element is written as its UTF-8 byte length in decimal, a '.', the
// element bytes and then ',' or the terminating ';'.
func Encode(elements ...string) string {
	var b strings.Builder
	size := 0
	for _, e := range elements {
		size += len(e) + 4
	}
	b.Grow(size)
	for i, e := range elements {
		b.WriteString(strconv.Itoa(len(e)))
		b.WriteByte('.')
		b.WriteString(e)
		if i == len(elements)-1 {
			b.WriteByte(';')
		} else {
			b.WriteByte(',')
		}
	}
	return b.String()
}

// Decode parses one text instruction into its elements. The whole input
// must be consumed by exactly one instruction.
func Decode(raw []byte) ([]string, error) {
	if len(raw) == 0 || len(raw) > MaxFrameSize {
		return nil, ErrMalformedFrame
	}

	var elements []string
	pos := 0
	for {
		start := pos
		for pos < len(raw) && raw[pos] >= '0' && raw[pos] <= '9' {
			pos++
		}
		digits := pos - start
		if digits == 0 || digits > maxLengthDigits || pos >= len(raw) || raw[pos] != '.' {
			return nil, ErrMalformedFrame
		}
		n, err := strconv.Atoi(string(raw[start:pos]))
		if err != nil {
			return nil, ErrMalformedFrame
		}
		pos++ // '.'

		if n > len(raw)-pos {
			return nil, ErrMalformedFrame
		}
		value := raw[pos : pos+n]
		if !utf8.Valid(value) {
			return nil, ErrMalformedFrame
		}
		elements = append(elements, string(value))
		pos += n

		if pos >= len(raw) {
			return nil, ErrMalformedFrame
		}
		switch raw[pos] {
		case ',':
			pos++
		case ';':
			if pos != len(raw)-1 {
				return nil, ErrMalformedFrame
			}
			return elements, nil
		default:
			return nil, ErrMalformedFrame
		}
	}
}
