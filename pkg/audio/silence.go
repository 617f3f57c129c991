package audio

import (
	"math"
)

// SilenceGate drops frames whose RMS energy stays below a threshold, with a
// hold period so quiet tails are not clipped.
type SilenceGate struct {
	threshold float64 // RMS threshold for int16 PCM
	holdTime  int     // frames to keep passing after sound stops
	holdCount int
}

// NewSilenceGate creates a gate. threshold 0 passes everything.
// holdFrames: frames to keep open after sound stops (e.g., 25 = 500ms).
func NewSilenceGate(threshold float64, holdFrames int) *SilenceGate {
	return &SilenceGate{threshold: threshold, holdTime: holdFrames}
}

// Pass reports whether the frame should be sent.
func (g *SilenceGate) Pass(pcm []int16) bool {
	if g.threshold <= 0 {
		return true
	}
	if computeRMS(pcm) > g.threshold {
		g.holdCount = g.holdTime
		return true
	}
	if g.holdCount > 0 {
		g.holdCount--
		return true
	}
	return false
}

// computeRMS calculates the Root Mean Square of a PCM frame.
func computeRMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(pcm)))
}
