package vm

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	brushSize   = 4
	beepSamples = 960 * 2 // one 20ms stereo frame at 48kHz
)

// Pattern is an in-process machine that draws a test pattern. Mouse
// presses paint on the screen, key presses beep and Reset restores the
// pattern. It backs demos and tests where no real machine is attached.
type Pattern struct {
	mu      sync.Mutex
	running bool
	frame   *image.RGBA

	events  chan Event
	dropped atomic.Int64
}

var _ Machine = (*Pattern)(nil)

// NewPattern returns a stopped pattern machine of the given size.
func NewPattern(width, height int) *Pattern {
	p := &Pattern{
		frame:  image.NewRGBA(image.Rect(0, 0, width, height)),
		events: make(chan Event, 256),
	}
	p.paintPattern()
	return p
}

// Start marks the machine running and announces its size and full screen.
func (p *Pattern) Start(context.Context) error {
	p.mu.Lock()
	p.running = true
	b := p.frame.Bounds()
	ev := p.rectEvent(b)
	p.mu.Unlock()

	p.emit(Event{Kind: EventResize, Width: b.Dx(), Height: b.Dy()})
	p.emit(ev)
	return nil
}

func (p *Pattern) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return nil
}

// Reset restores the test pattern.
func (p *Pattern) Reset(context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.paintPattern()
	ev := p.rectEvent(p.frame.Bounds())
	p.mu.Unlock()

	p.emit(ev)
	return nil
}

// Reboot behaves like Reset.
func (p *Pattern) Reboot(ctx context.Context) error {
	return p.Reset(ctx)
}

// Monitor answers a small subset of monitor commands.
func (p *Pattern) Monitor(_ context.Context, command string) (string, error) {
	p.mu.Lock()
	running := p.running
	b := p.frame.Bounds()
	p.mu.Unlock()

	switch strings.TrimSpace(command) {
	case "info status":
		if running {
			return "VM status: running", nil
		}
		return "VM status: paused", nil
	case "info screen":
		return fmt.Sprintf("%dx%d", b.Dx(), b.Dy()), nil
	default:
		return "", fmt.Errorf("vm: unknown command %q", command)
	}
}

func (p *Pattern) SendKey(_ int, down bool) {
	if !down {
		return
	}
	pcm := make([]int16, beepSamples)
	for i := 0; i < beepSamples/2; i++ {
		s := int16(6000 * math.Sin(float64(i)*2*math.Pi*880/48000))
		pcm[2*i], pcm[2*i+1] = s, s
	}
	p.emit(Event{Kind: EventAudio, PCM: pcm})
}

func (p *Pattern) SendMouse(x, y, mask int) {
	if mask&1 == 0 {
		return
	}
	r := image.Rect(x, y, x+brushSize, y+brushSize)

	p.mu.Lock()
	r = r.Intersect(p.frame.Bounds())
	if r.Empty() || !p.running {
		p.mu.Unlock()
		return
	}
	for yy := r.Min.Y; yy < r.Max.Y; yy++ {
		for xx := r.Min.X; xx < r.Max.X; xx++ {
			p.frame.SetRGBA(xx, yy, color.RGBA{A: 0xff})
		}
	}
	ev := p.rectEvent(r)
	p.mu.Unlock()

	p.emit(ev)
}

func (p *Pattern) Size() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.frame.Bounds()
	return b.Dx(), b.Dy()
}

func (p *Pattern) Framebuffer() *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := image.NewRGBA(p.frame.Bounds())
	copy(cp.Pix, p.frame.Pix)
	return cp
}

func (p *Pattern) Events() <-chan Event { return p.events }

// Dropped returns how many events were discarded because nobody read them.
func (p *Pattern) Dropped() int64 { return p.dropped.Load() }

func (p *Pattern) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		if p.dropped.Add(1) == 1 {
			slog.Warn("vm: event queue full, dropping events")
		}
	}
}

// rectEvent snapshots the frame into an EventRect for r. Caller holds mu.
func (p *Pattern) rectEvent(r image.Rectangle) Event {
	b := p.frame.Bounds()
	return Event{
		Kind:   EventRect,
		Rect:   r,
		Width:  b.Dx(),
		Height: b.Dy(),
		Buffer: slices.Clone(p.frame.Pix),
		Stride: p.frame.Stride,
	}
}

// paintPattern draws colour bars. Caller holds mu.
func (p *Pattern) paintPattern() {
	bars := []color.RGBA{
		{0xc0, 0xc0, 0xc0, 0xff}, {0xc0, 0xc0, 0x00, 0xff}, {0x00, 0xc0, 0xc0, 0xff},
		{0x00, 0xc0, 0x00, 0xff}, {0xc0, 0x00, 0xc0, 0xff}, {0xc0, 0x00, 0x00, 0xff},
		{0x00, 0x00, 0xc0, 0xff},
	}
	b := p.frame.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p.frame.SetRGBA(x, y, bars[(x-b.Min.X)*len(bars)/b.Dx()])
		}
	}
}
