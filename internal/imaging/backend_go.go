//go:build !gocv

package imaging

import (
	"fmt"
	"image"
	"math"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Default is the backend used by the pipeline.
var Default Backend = GoBackend{}

// GoBackend implements Backend with the pure-Go x/image packages.
type GoBackend struct{}

func (GoBackend) Name() string { return "x/image" }

func (GoBackend) Load(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return ToGray(img), nil
}

func (GoBackend) Resize(img *image.Gray, w, h int) (*image.Gray, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid resize target %dx%d", w, h)
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

func (GoBackend) Rotate(img *image.Gray, degrees float64) (*image.Gray, error) {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if degrees == 0 {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst, nil
	}

	rad := degrees * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2
	// Source-to-destination map; y grows downwards so +sin in the first row
	// turns the picture counter-clockwise on screen.
	ox := float64(b.Dx()) / 2
	oy := float64(b.Dy()) / 2
	s2d := f64.Aff3{
		cos, sin, ox - cos*cx - sin*cy,
		-sin, cos, oy + sin*cx - cos*cy,
	}
	draw.NearestNeighbor.Transform(dst, s2d, img, b, draw.Src, nil)
	return dst, nil
}
