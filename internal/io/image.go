package ioutils

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif" // GIF decoder registration
	"image/jpeg"
	_ "image/png" // PNG decoder registration

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder registration
)

// ErrEmptyImage is returned when there are no bytes to decode.
var ErrEmptyImage = errors.New("empty image data")

// ImageService prepares cover art for storage next to a video and for
// embedding into extracted MP3 files.
//
// Covers arrive as JPEG, PNG or WebP. ImageService is used to:
//   - Resize images to fit maximum dimensions
//   - Convert images to JPEG format (for ID3 compatibility)
//
// Example usage:
//
//	svc := NewImageService()
//
//	cover := client.Fetch(ctx, desc.Content.CoverURL, nil)
//
//	// Fit within 1280x1280, re-encoded as JPEG
//	jpeg, _ := svc.PrepareCover(ctx, cover.Body, 1280)
type ImageService struct {
	// Quality is the JPEG encoding quality (1-100).
	Quality int
}

// NewImageService creates a new ImageService encoding JPEGs at quality 90.
func NewImageService() *ImageService {
	return &ImageService{Quality: 90}
}

// PrepareCover decodes data, bounds it to maxSize on both axes and returns it
// as JPEG. A maxSize of zero or less keeps the original dimensions.
//
// Example:
//
//	// A 1920x1080 cover becomes 1280x720
//	jpeg, err := svc.PrepareCover(ctx, webpData, 1280)
func (s *ImageService) PrepareCover(ctx context.Context, data []byte, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		return s.ConvertToJPEG(ctx, data)
	}
	return s.ResizeImage(ctx, data, maxSize, maxSize)
}

// ResizeImage resizes an image to fit within the specified maximum dimensions.
//
// The aspect ratio is preserved. Images already inside the bounds keep their
// size but are still re-encoded as JPEG. The Catmull-Rom algorithm is used
// for high-quality resizing.
//
// Example:
//
//	// Resize to fit within 1000x1000, maintaining aspect ratio
//	resized, err := svc.ResizeImage(ctx, imageData, 1000, 1000)
//	// A 1500x1000 image becomes 1000x666
//	// A 800x600 image remains 800x600 (but re-encoded)
func (s *ImageService) ResizeImage(ctx context.Context, data []byte, maxWidth, maxHeight int) ([]byte, error) {
	img, err := decode(ctx, data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), maxWidth, maxHeight)
	if width == bounds.Dx() && height == bounds.Dy() {
		return s.encode(img)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return s.encode(dst)
}

// ConvertToJPEG converts an image to JPEG format.
//
// If the input is already JPEG it is re-encoded, which may slightly change
// the file size but ensures consistent encoding.
func (s *ImageService) ConvertToJPEG(ctx context.Context, data []byte) ([]byte, error) {
	img, err := decode(ctx, data)
	if err != nil {
		return nil, err
	}
	return s.encode(img)
}

func (s *ImageService) encode(img image.Image) ([]byte, error) {
	quality := s.Quality
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// fitWithin scales width x height down to fit maxWidth x maxHeight.
func fitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}
	if maxWidth*height > maxHeight*width {
		// Height is the limiting factor
		return max(width*maxHeight/height, 1), maxHeight
	}
	// Width is the limiting factor
	return maxWidth, max(height*maxWidth/width, 1)
}
