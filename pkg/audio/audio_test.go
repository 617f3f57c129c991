package audio

import (
	"math"
	"testing"
)

func sine(n int, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(float64(i)*2*math.Pi*440/SampleRate))
	}
	return out
}

func TestFramerSplitsIntoWholeFrames(t *testing.T) {
	var f Framer
	const frameLen = FrameSize * Channels

	if got := f.Push(make([]int16, frameLen-10)); len(got) != 0 {
		t.Fatalf("got %d frames from a partial push", len(got))
	}
	got := f.Push(make([]int16, frameLen+20))
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	for i, fr := range got {
		if len(fr) != frameLen {
			t.Errorf("frame %d has %d samples, want %d", i, len(fr), frameLen)
		}
	}
	if len(f.pending) != 10 {
		t.Errorf("pending = %d samples, want 10", len(f.pending))
	}
}

func TestSilenceGate(t *testing.T) {
	g := NewSilenceGate(200, 2)
	quiet := make([]int16, 64)
	loud := sine(64, 10000)

	steps := []struct {
		pcm  []int16
		want bool
	}{
		{quiet, false},
		{loud, true},
		{quiet, true}, // hold 1
		{quiet, true}, // hold 2
		{quiet, false},
	}
	for i, s := range steps {
		if got := g.Pass(s.pcm); got != s.want {
			t.Errorf("step %d: Pass = %v, want %v", i, got, s.want)
		}
	}

	open := NewSilenceGate(0, 0)
	if !open.Pass(quiet) {
		t.Error("zero threshold gate dropped a frame")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	packet, err := enc.Encode(sine(FrameSize*Channels, 8000))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packet) == 0 {
		t.Fatal("empty opus packet")
	}
	pcm, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pcm) != FrameSize*Channels {
		t.Errorf("decoded %d samples, want %d", len(pcm), FrameSize*Channels)
	}
}
