// Package screen encodes framebuffer regions for delivery to clients.
package screen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const (
	ThumbnailWidth  = 400
	ThumbnailHeight = 300

	DefaultQuality = 65
)

var ErrEmptyRect = errors.New("screen: empty rectangle")

// FromBuffer wraps a packed RGBA buffer without copying it.
func FromBuffer(pix []byte, stride, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 || stride < 4*width || len(pix) < stride*(height-1)+4*width {
		return nil, fmt.Errorf("screen: buffer %d bytes too small for %dx%d stride %d", len(pix), width, height, stride)
	}
	return &image.RGBA{Pix: pix, Stride: stride, Rect: image.Rect(0, 0, width, height)}, nil
}

// EncodeRect JPEG-encodes the part of frame inside r. r is clipped to the
// frame bounds.
func EncodeRect(frame image.Image, r image.Rectangle, quality int) ([]byte, error) {
	r = r.Intersect(frame.Bounds())
	if r.Empty() {
		return nil, ErrEmptyRect
	}
	var src image.Image = frame
	if sub, ok := frame.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		src = sub.SubImage(r)
	} else {
		dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		draw.Draw(dst, dst.Bounds(), frame, r.Min, draw.Src)
		src = dst
	}
	return encodeJPEG(src, quality)
}

// EncodeThumbnail scales frame to ThumbnailWidth x ThumbnailHeight and
// JPEG-encodes it.
func EncodeThumbnail(frame image.Image, quality int) ([]byte, error) {
	if frame.Bounds().Empty() {
		return nil, ErrEmptyRect
	}
	dst := image.NewRGBA(image.Rect(0, 0, ThumbnailWidth, ThumbnailHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, frame.Bounds(), draw.Src, nil)
	return encodeJPEG(dst, quality)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("screen: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
