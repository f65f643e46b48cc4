package ioutils

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not JPEG: %v", err)
	}
	return img
}

func TestPrepareCover(t *testing.T) {
	tests := []struct {
		name          string
		w, h, maxSize int
		wantW, wantH  int
	}{
		{"landscape shrinks", 320, 180, 160, 160, 90},
		{"portrait shrinks", 100, 200, 50, 25, 50},
		{"small kept", 64, 48, 1280, 64, 48},
		{"no bound", 300, 200, 0, 300, 200},
	}
	svc := NewImageService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := svc.PrepareCover(context.Background(), pngImage(t, tt.w, tt.h), tt.maxSize)
			if err != nil {
				t.Fatalf("PrepareCover() error = %v", err)
			}
			b := decodeJPEG(t, out).Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPrepareCover_Errors(t *testing.T) {
	svc := NewImageService()
	if _, err := svc.PrepareCover(context.Background(), nil, 100); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("empty data error = %v", err)
	}
	if _, err := svc.PrepareCover(context.Background(), []byte("<html>"), 100); err == nil {
		t.Error("garbage decoded without error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.PrepareCover(ctx, pngImage(t, 4, 4), 100); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled error = %v", err)
	}
}

func TestFitWithin(t *testing.T) {
	if w, h := fitWithin(1500, 1000, 1000, 1000); w != 1000 || h != 666 {
		t.Errorf("fitWithin = %dx%d, want 1000x666", w, h)
	}
	if w, h := fitWithin(5000, 1, 100, 100); w != 100 || h != 1 {
		t.Errorf("fitWithin thin = %dx%d, want 100x1", w, h)
	}
}
