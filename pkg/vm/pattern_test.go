package vm

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var ignoreBuffer = cmpopts.IgnoreFields(Event{}, "Buffer")

func drain(p *Pattern) []Event {
	var out []Event
	for {
		select {
		case ev := <-p.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPatternStartAnnouncesScreen(t *testing.T) {
	p := NewPattern(70, 40)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	want := []Event{
		{Kind: EventResize, Width: 70, Height: 40},
		{Kind: EventRect, Rect: image.Rect(0, 0, 70, 40), Width: 70, Height: 40, Stride: 280},
	}
	if diff := cmp.Diff(want, drain(p), ignoreBuffer); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestPatternMousePaintsAndReportsRect(t *testing.T) {
	p := NewPattern(70, 40)
	_ = p.Start(context.Background())
	drain(p)

	p.SendMouse(10, 10, 0) // no button: nothing
	p.SendMouse(68, 10, 1) // clipped at the right edge

	evs := drain(p)
	want := []Event{{Kind: EventRect, Rect: image.Rect(68, 10, 70, 14), Width: 70, Height: 40, Stride: 280}}
	if diff := cmp.Diff(want, evs, ignoreBuffer); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if len(evs) == 1 {
		off := 11*evs[0].Stride + 69*4
		if diff := cmp.Diff([]byte{0, 0, 0, 0xff}, evs[0].Buffer[off:off+4]); diff != "" {
			t.Errorf("event buffer pixel (-want +got):\n%s", diff)
		}
	}
	if got := p.Framebuffer().RGBAAt(69, 11); got.R != 0 || got.G != 0 || got.B != 0 {
		t.Errorf("pixel not painted: %v", got)
	}

	if err := p.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := p.Framebuffer().RGBAAt(69, 11); got.B == 0 && got.R == 0 && got.G == 0 {
		t.Error("Reset kept the painted pixel")
	}
}

func TestPatternKeyBeeps(t *testing.T) {
	p := NewPattern(10, 10)
	p.SendKey(0x61, false)
	p.SendKey(0x61, true)
	evs := drain(p)
	if len(evs) != 1 || evs[0].Kind != EventAudio || len(evs[0].PCM) != beepSamples {
		t.Fatalf("events = %+v, want one audio frame", evs)
	}
}

func TestPatternMonitorAndStopped(t *testing.T) {
	p := NewPattern(32, 24)
	if err := p.Reset(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Reset before Start: err = %v", err)
	}
	_ = p.Start(context.Background())

	out, err := p.Monitor(context.Background(), "info screen")
	if err != nil || out != "32x24" {
		t.Errorf("Monitor(info screen) = %q, %v", out, err)
	}
	if _, err := p.Monitor(context.Background(), "quit"); err == nil {
		t.Error("Monitor accepted an unknown command")
	}
}
