package server

import (
	"context"
	"image"
	"time"

	"github.com/NicolasHaas/gocollab/pkg/protocol"
	"github.com/NicolasHaas/gocollab/pkg/rbac"
	"github.com/NicolasHaas/gocollab/pkg/screen"
	"github.com/NicolasHaas/gocollab/pkg/vm"
)

// seesHiddenScreen reports whether u keeps receiving frames while the
// screen is hidden.
func (c *Coordinator) seesHiddenScreen(u *User) bool {
	return rbac.IsStaff(u.Rank)
}

// frameRecipients returns the viewers that receive screen updates now.
func (c *Coordinator) frameRecipients() []*User {
	viewers := c.users.Viewers()
	if !c.screenHidden {
		return viewers
	}
	out := viewers[:0]
	for _, u := range viewers {
		if c.seesHiddenScreen(u) {
			out = append(out, u)
		}
	}
	return out
}

// broadcastRect delivers an encoded rectangle to every viewer.
func (c *Coordinator) broadcastRect(rect protocol.ScreenRect) {
	nowMillis := c.clock.Now().UnixMilli()
	recipients := c.frameRecipients()
	for _, u := range recipients {
		u.Sender.SendScreenUpdate(u.Conn, rect, nowMillis)
	}
	c.metrics.FramesSent.Add(int64(len(recipients)))
}

func (c *Coordinator) resize(width, height int) {
	c.width, c.height = width, height
	for _, u := range c.users.Viewers() {
		u.Sender.SendScreenResize(u.Conn, width, height)
	}
}

func (c *Coordinator) setThumbnail(data []byte) {
	c.thumbnail = data
}

// sendFullFrame encodes the whole screen off the coordinator goroutine and
// sends it to users that are still connected by then.
func (c *Coordinator) sendFullFrame(users []*User) {
	if c.machine == nil || len(users) == 0 {
		return
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	quality := c.cfg.Node.ScreenQuality
	c.async(func() func() {
		frame := c.machine.Framebuffer()
		data, err := screen.EncodeRect(frame, frame.Bounds(), quality)
		if err != nil {
			c.log.Error("encode full frame", "err", err)
			return nil
		}
		rect := protocol.ScreenRect{Width: frame.Bounds().Dx(), Height: frame.Bounds().Dy(), Data: data, Encoding: "jpeg"}
		return func() {
			nowMillis := c.clock.Now().UnixMilli()
			for _, id := range ids {
				if u := c.users.Get(id); u != nil && u.Connected {
					u.Sender.SendScreenUpdate(u.Conn, rect, nowMillis)
				}
			}
		}
	})
}

func (c *Coordinator) setScreenHidden(hidden bool) {
	if c.screenHidden == hidden {
		return
	}
	c.screenHidden = hidden
	if hidden {
		return
	}
	var unhidden []*User
	for _, u := range c.users.Viewers() {
		if !c.seesHiddenScreen(u) {
			unhidden = append(unhidden, u)
		}
	}
	c.sendFullFrame(unhidden)
}

// ScreenWorker turns machine events into encoded updates for the
// coordinator.
type ScreenWorker struct {
	coord   *Coordinator
	machine vm.Machine
	audio   *AudioPipeline
	quality int
	refresh time.Duration
}

// NewScreenWorker creates a worker. audio may be nil.
func NewScreenWorker(coord *Coordinator, machine vm.Machine, audio *AudioPipeline, cfg NodeConfig) *ScreenWorker {
	return &ScreenWorker{
		coord:   coord,
		machine: machine,
		audio:   audio,
		quality: cfg.ScreenQuality,
		refresh: cfg.ThumbnailRefresh,
	}
}

// Run consumes machine events until ctx is cancelled.
func (w *ScreenWorker) Run(ctx context.Context) {
	if w.refresh > 0 {
		go w.thumbnails(ctx)
	}
	events := w.machine.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handle(ev)
		}
	}
}

func (w *ScreenWorker) handle(ev vm.Event) {
	switch ev.Kind {
	case vm.EventRect:
		w.encodeRect(ev)
	case vm.EventResize:
		width, height := ev.Width, ev.Height
		w.coord.Post(func() { w.coord.resize(width, height) })
	case vm.EventAudio:
		if w.audio != nil {
			w.audio.Push(ev.PCM)
		}
	}
}

// eventFrame returns the frame an EventRect was taken from, falling back to
// the machine's current framebuffer.
func (w *ScreenWorker) eventFrame(ev vm.Event) *image.RGBA {
	if ev.Buffer == nil {
		return w.machine.Framebuffer()
	}
	frame, err := screen.FromBuffer(ev.Buffer, ev.Stride, ev.Width, ev.Height)
	if err != nil {
		w.coord.log.Warn("bad frame buffer in rect event", "err", err)
		return w.machine.Framebuffer()
	}
	return frame
}

func (w *ScreenWorker) encodeRect(ev vm.Event) {
	frame := w.eventFrame(ev)
	r := ev.Rect.Intersect(frame.Bounds())
	data, err := screen.EncodeRect(frame, r, w.quality)
	if err != nil {
		w.coord.log.Debug("skip rect", "rect", r, "err", err)
		return
	}
	rect := protocol.ScreenRect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy(), Data: data, Encoding: "jpeg"}
	w.coord.Post(func() { w.coord.broadcastRect(rect) })
}

func (w *ScreenWorker) thumbnails(ctx context.Context) {
	ticker := time.NewTicker(w.refresh)
	defer ticker.Stop()
	w.refreshThumbnail()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refreshThumbnail()
		}
	}
}

func (w *ScreenWorker) refreshThumbnail() {
	data, err := screen.EncodeThumbnail(w.machine.Framebuffer(), w.quality)
	if err != nil {
		w.coord.log.Error("encode thumbnail", "err", err)
		return
	}
	w.coord.Post(func() { w.coord.setThumbnail(data) })
}
