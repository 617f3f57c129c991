package server

import (
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/gocollab/pkg/audio"
	"github.com/NicolasHaas/gocollab/pkg/protocol"
	"github.com/NicolasHaas/gocollab/pkg/vm"
)

func TestScreenWorkerEvents(t *testing.T) {
	h := newHarness(t, nil)
	_, conn := h.join("10.0.0.1")
	conn.reset()

	w := NewScreenWorker(h.c, h.machine, nil, h.c.cfg.Node)
	w.handle(vm.Event{Kind: vm.EventRect, Rect: image.Rect(4, 4, 12, 10)})
	png := conn.last("png")
	if png == nil {
		t.Fatal("no screen update delivered")
	}
	if diff := cmp.Diff([]string{"png", "0", "0", "4", "4"}, png[:5]); diff != "" {
		t.Errorf("update header (-want +got):\n%s", diff)
	}
	if conn.last("sync") == nil {
		t.Error("update not followed by sync")
	}

	// Rects outside the screen are dropped.
	conn.reset()
	w.handle(vm.Event{Kind: vm.EventRect, Rect: image.Rect(100, 100, 110, 110)})
	if len(conn.texts) != 0 {
		t.Errorf("offscreen rect produced %v", conn.texts)
	}

	w.handle(vm.Event{Kind: vm.EventResize, Width: 800, Height: 600})
	if diff := cmp.Diff([]string{"size", "0", "800", "600"}, conn.last("size")); diff != "" {
		t.Errorf("resize (-want +got):\n%s", diff)
	}
	if h.c.width != 800 || h.c.height != 600 {
		t.Errorf("coordinator size = %dx%d", h.c.width, h.c.height)
	}
	if got := h.c.metrics.FramesSent.Load(); got != 1 {
		t.Errorf("frames sent = %d, want 1", got)
	}
}

func TestScreenWorkerUsesEventBuffer(t *testing.T) {
	h := newHarness(t, nil)
	_, conn := h.join("10.0.0.1")
	conn.reset()

	// The machine's own framebuffer is never consulted when the event
	// carries the frame.
	h.machine.frame = image.NewRGBA(image.Rect(0, 0, 1, 1))
	frame := image.NewRGBA(image.Rect(0, 0, 16, 8))
	w := NewScreenWorker(h.c, h.machine, nil, h.c.cfg.Node)
	w.handle(vm.Event{
		Kind:   vm.EventRect,
		Rect:   image.Rect(2, 2, 10, 6),
		Width:  16,
		Height: 8,
		Buffer: frame.Pix,
		Stride: frame.Stride,
	})
	png := conn.last("png")
	if png == nil {
		t.Fatal("no screen update delivered")
	}
	if diff := cmp.Diff([]string{"png", "0", "0", "2", "2"}, png[:5]); diff != "" {
		t.Errorf("update header (-want +got):\n%s", diff)
	}

	// A truncated buffer falls back to the framebuffer, where the rect
	// lies off screen.
	conn.reset()
	w.handle(vm.Event{Kind: vm.EventRect, Rect: image.Rect(2, 2, 10, 6), Width: 16, Height: 8, Buffer: frame.Pix[:8], Stride: frame.Stride})
	if conn.last("png") != nil {
		t.Error("rect encoded from a truncated buffer")
	}
}

func TestThumbnailRefresh(t *testing.T) {
	h := newHarness(t, nil)
	w := NewScreenWorker(h.c, h.machine, nil, h.c.cfg.Node)

	w.refreshThumbnail()
	if len(h.c.thumbnail) == 0 {
		t.Fatal("thumbnail not stored")
	}
}

func TestAudioPipeline(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Audio.SilenceThreshold = 100 })
	bin, conn := h.dial("10.0.0.1")
	h.send(bin, protocol.Capabilities{Caps: []string{protocol.CapBinary}})
	h.send(bin, protocol.Connect{Node: "vm0"})
	conn.reset()

	p, err := NewAudioPipeline(h.c, h.c.cfg.Audio)
	if err != nil {
		t.Fatalf("NewAudioPipeline: %v", err)
	}

	n := audio.FrameSize * audio.Channels
	p.Push(make([]int16, n))
	if len(conn.binary) != 0 {
		t.Errorf("silent frame delivered")
	}
	if got := h.c.metrics.AudioFramesSkipped.Load(); got != 1 {
		t.Errorf("skipped frames = %d, want 1", got)
	}

	tone := make([]int16, n+10)
	for i := range tone {
		tone[i] = int16(8000 * math.Sin(float64(i/2)*2*math.Pi*440/audio.SampleRate))
	}
	p.Push(tone)
	if len(conn.binary) != 1 {
		t.Fatalf("tone delivered %d packets, want 1", len(conn.binary))
	}
	rec, err := protocol.DecodeRecord(conn.binary[0])
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if rec.Type != protocol.RecordAudioOpus || len(rec.OpusPacket) == 0 {
		t.Errorf("record = %+v", rec)
	}
}
