package screen

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	return img
}

func decodedSize(t *testing.T, data []byte) image.Point {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("jpeg.Decode: %v", err)
	}
	return img.Bounds().Size()
}

func TestEncodeRect(t *testing.T) {
	frame := testFrame(64, 48)

	tests := []struct {
		name string
		rect image.Rectangle
		want image.Point
	}{
		{"inner", image.Rect(8, 8, 24, 16), image.Pt(16, 8)},
		{"full", frame.Bounds(), image.Pt(64, 48)},
		{"clipped", image.Rect(60, 40, 100, 100), image.Pt(4, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeRect(frame, tt.rect, 80)
			if err != nil {
				t.Fatalf("EncodeRect: %v", err)
			}
			if diff := cmp.Diff(tt.want, decodedSize(t, data)); diff != "" {
				t.Errorf("size mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := EncodeRect(frame, image.Rect(100, 100, 120, 120), 80); !errors.Is(err, ErrEmptyRect) {
		t.Errorf("EncodeRect outside frame: err = %v, want ErrEmptyRect", err)
	}
}

func TestEncodeThumbnail(t *testing.T) {
	for _, size := range []image.Point{{1024, 768}, {100, 50}} {
		data, err := EncodeThumbnail(testFrame(size.X, size.Y), 0)
		if err != nil {
			t.Fatalf("EncodeThumbnail(%v): %v", size, err)
		}
		if diff := cmp.Diff(image.Pt(ThumbnailWidth, ThumbnailHeight), decodedSize(t, data)); diff != "" {
			t.Errorf("thumbnail of %v (-want +got):\n%s", size, diff)
		}
	}
}

func TestFromBuffer(t *testing.T) {
	pix := make([]byte, 4*10*5)
	img, err := FromBuffer(pix, 40, 10, 5)
	if err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	img.Set(1, 1, color.RGBA{R: 9, A: 255})
	if pix[40+4] != 9 {
		t.Error("FromBuffer copied the buffer")
	}
	if _, err := FromBuffer(pix[:10], 40, 10, 5); err == nil {
		t.Error("FromBuffer accepted a short buffer")
	}
}
