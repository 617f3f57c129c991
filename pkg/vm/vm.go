// Package vm defines the interface to the shared machine and an in-process
// test-pattern implementation.
package vm

import (
	"context"
	"errors"
	"image"
)

var ErrNotRunning = errors.New("vm: machine not running")

// EventKind identifies what a machine Event carries.
type EventKind int

const (
	EventRect EventKind = iota
	EventResize
	EventAudio
)

// Event is a notification from the machine. Rect is set for EventRect,
// Width and Height for EventResize and PCM (interleaved 48kHz stereo) for
// EventAudio.
//
// An EventRect may also carry the frame it was taken from as packed RGBA
// Buffer rows Stride bytes apart, with Width and Height giving the frame
// size. Consumers must not modify Buffer. Without a Buffer the consumer
// reads Framebuffer instead.
type Event struct {
	Kind   EventKind
	Rect   image.Rectangle
	Width  int
	Height int
	Buffer []byte
	Stride int
	PCM    []int16
}

// Machine is the shared remote machine. Input methods must not block.
type Machine interface {
	Start(ctx context.Context) error
	Stop() error
	Reset(ctx context.Context) error
	Reboot(ctx context.Context) error
	Monitor(ctx context.Context, command string) (string, error)

	SendKey(keysym int, down bool)
	SendMouse(x, y, mask int)

	Size() (width, height int)
	// Framebuffer returns a copy of the current screen.
	Framebuffer() *image.RGBA
	Events() <-chan Event
}
