package server

import (
	"github.com/NicolasHaas/gocollab/pkg/audio"
	"github.com/NicolasHaas/gocollab/pkg/protocol"
)

// AudioPipeline encodes machine PCM to Opus and hands the packets to the
// coordinator. It is used from the screen worker goroutine only.
type AudioPipeline struct {
	coord  *Coordinator
	framer audio.Framer
	gate   *audio.SilenceGate
	enc    *audio.Encoder
}

// NewAudioPipeline creates the pipeline for cfg.
func NewAudioPipeline(coord *Coordinator, cfg AudioConfig) (*AudioPipeline, error) {
	enc, err := audio.NewEncoder()
	if err != nil {
		return nil, err
	}
	return &AudioPipeline{
		coord: coord,
		gate:  audio.NewSilenceGate(cfg.SilenceThreshold, cfg.HoldFrames),
		enc:   enc,
	}, nil
}

// Push feeds interleaved stereo samples into the pipeline.
func (a *AudioPipeline) Push(pcm []int16) {
	for _, frame := range a.framer.Push(pcm) {
		if !a.gate.Pass(frame) {
			a.coord.metrics.AudioFramesSkipped.Add(1)
			continue
		}
		packet, err := a.enc.Encode(frame)
		if err != nil {
			a.coord.log.Error("encode audio", "err", err)
			continue
		}
		a.coord.Post(func() { a.coord.broadcastAudio(packet) })
	}
}

// broadcastAudio sends an Opus packet to every binary-protocol viewer that
// has not muted audio.
func (c *Coordinator) broadcastAudio(packet []byte) {
	for _, u := range c.users.Viewers() {
		if u.AudioMuted || u.Sender.Name() != protocol.ProtocolBinary {
			continue
		}
		u.Sender.SendAudioOpus(u.Conn, packet)
		c.metrics.AudioPacketsSent.Add(1)
	}
}
