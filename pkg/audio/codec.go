// Package audio turns the machine's PCM output into Opus packets for
// binary-protocol clients.
package audio

import (
	"fmt"

	"github.com/hraban/opus"
)

const (
	SampleRate = 48000
	Channels   = 2
	FrameSize  = 960 // 20ms at 48kHz, per channel

	opusBitrate = 96000 // 96 kbps stereo
	maxPacket   = 4000
)

// Encoder wraps an Opus encoder configured for general audio.
type Encoder struct {
	enc *opus.Encoder
	buf []byte // reusable output buffer
}

// NewEncoder creates a new Opus encoder for interleaved stereo PCM.
func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("audio: new encoder: %w", err)
	}

	_ = enc.SetBitrate(opusBitrate)
	_ = enc.SetDTX(true) // Discontinuous transmission (saves bandwidth on silence)

	return &Encoder{
		enc: enc,
		buf: make([]byte, maxPacket),
	}, nil
}

// Encode encodes one interleaved PCM frame (FrameSize*Channels samples) to
// Opus. Returns the encoded bytes.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	n, err := e.enc.Encode(pcm, e.buf)
	if err != nil {
		return nil, fmt.Errorf("audio: encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}

// Decoder wraps an Opus decoder.
type Decoder struct {
	dec *opus.Decoder
}

// NewDecoder creates a new Opus decoder matching NewEncoder.
func NewDecoder() (*Decoder, error) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("audio: new decoder: %w", err)
	}
	return &Decoder{dec: dec}, nil
}

// Decode decodes an Opus packet to interleaved PCM.
func (d *Decoder) Decode(opusData []byte) ([]int16, error) {
	pcm := make([]int16, FrameSize*Channels)
	n, err := d.dec.Decode(opusData, pcm)
	if err != nil {
		return nil, fmt.Errorf("audio: decode: %w", err)
	}
	return pcm[:n*Channels], nil
}

// Framer cuts an arbitrary stream of PCM chunks into whole Opus frames.
type Framer struct {
	pending []int16
}

// Push appends samples and returns every complete frame now available.
func (f *Framer) Push(samples []int16) [][]int16 {
	f.pending = append(f.pending, samples...)
	const frameLen = FrameSize * Channels
	var frames [][]int16
	for len(f.pending) >= frameLen {
		frame := make([]int16, frameLen)
		copy(frame, f.pending[:frameLen])
		frames = append(frames, frame)
		f.pending = f.pending[frameLen:]
	}
	if len(f.pending) == 0 {
		f.pending = nil
	}
	return frames
}
