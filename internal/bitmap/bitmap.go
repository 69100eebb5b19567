// Package bitmap turns image sources into decoded bitmaps and deduplicates
// decode work per source object.
package bitmap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder

	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder
	_ "golang.org/x/image/webp" // WebP decoder
)

// ErrUnsupportedSource is returned for sources the cache cannot decode.
var ErrUnsupportedSource = errors.New("unsupported image source")

// Source is anything that can be turned into a Bitmap.
type Source interface {
	// Describe returns a short human readable name for logs and
	// notifications.
	Describe() string
}

// Bitmap is an immutable decoded pixel buffer. Its bounds always start at the
// origin.
type Bitmap struct {
	rgba *image.RGBA
}

// New copies img into a new Bitmap.
func New(img image.Image) *Bitmap {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Bitmap{rgba: rgba}
}

// Width returns the bitmap width in pixels.
func (b *Bitmap) Width() int { return b.rgba.Rect.Dx() }

// Height returns the bitmap height in pixels.
func (b *Bitmap) Height() int { return b.rgba.Rect.Dy() }

// Size returns the bitmap dimensions.
func (b *Bitmap) Size() image.Point { return b.rgba.Rect.Size() }

// Image exposes the pixels for reading. Callers must not modify them.
func (b *Bitmap) Image() image.Image { return b.rgba }

// Describe implements Source.
func (b *Bitmap) Describe() string {
	if b == nil {
		return "nil bitmap"
	}
	return fmt.Sprintf("bitmap %dx%d", b.Width(), b.Height())
}

// Blob is encoded image data, such as a file or a fetched response body.
type Blob struct {
	Name      string
	MediaType string
	Data      []byte
}

// Describe implements Source.
func (b *Blob) Describe() string {
	if b == nil {
		return "nil blob"
	}
	if b.Name != "" {
		return b.Name
	}
	return "blob"
}

// Frame is an image that is already rasterised but not yet a Bitmap, for
// example a decoded clipboard image.
type Frame struct {
	Name  string
	Image image.Image
}

// Describe implements Source.
func (f *Frame) Describe() string {
	if f == nil {
		return "nil frame"
	}
	if f.Name != "" {
		return f.Name
	}
	return "frame"
}

// Decoder turns a source into a bitmap.
type Decoder func(ctx context.Context, src Source) (*Bitmap, error)

// Decode is the default Decoder.
func Decode(ctx context.Context, src Source) (*Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch s := src.(type) {
	case *Bitmap:
		return s, nil
	case *Blob:
		if len(s.Data) == 0 {
			return nil, fmt.Errorf("decode %s: empty data", s.Describe())
		}
		img, _, err := image.Decode(bytes.NewReader(s.Data))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.Describe(), err)
		}
		return New(img), nil
	case *Frame:
		if s.Image == nil {
			return nil, fmt.Errorf("decode %s: no image", s.Describe())
		}
		return New(s.Image), nil
	default:
		return nil, fmt.Errorf("decode %T: %w", src, ErrUnsupportedSource)
	}
}
