// Package imaging provides the greyscale, resampling and rotation primitives
// the tiling pipeline is built on.
package imaging

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// Extensions lists the recognized raster extensions, upper-cased, without the dot.
var Extensions = []string{"JPG", "JPEG", "PNG", "BMP", "TIFF"}

// IsImage reports whether name carries a recognized raster extension (case-insensitive).
func IsImage(name string) bool {
	ext := strings.ToUpper(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Backend is a source of the image operations the pipeline consumes.
type Backend interface {
	Name() string
	// Load decodes path into a single-channel image of the same dimensions.
	Load(path string) (*image.Gray, error)
	// Resize resamples img to exactly w×h, antialiased.
	Resize(img *image.Gray, w, h int) (*image.Gray, error)
	// Rotate turns img counter-clockwise by degrees about its center,
	// keeping the canvas size. Uncovered pixels are 0.
	Rotate(img *image.Gray, degrees float64) (*image.Gray, error)
}

// ToGray converts any image to an origin-anchored *image.Gray.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// Crop copies the square at (x, y) with side size out of img.
// The result is anchored at the origin.
func Crop(img *image.Gray, x, y, size int) *image.Gray {
	r := image.Rect(x, y, x+size, y+size).Add(img.Bounds().Min)
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Pixels flattens img row-major into a fresh slice.
func Pixels(img *image.Gray) []uint8 {
	b := img.Bounds()
	out := make([]uint8, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[off:off+b.Dx()]...)
	}
	return out
}

// SavePNG writes img to path, replacing any existing file.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
