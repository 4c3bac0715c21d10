// Package walk implements the deterministic sliding-window traversal used to
// cut candidate patches out of an image.
package walk

import (
	"math/rand"

	"github.com/andresmejia3/tiler/internal/types"
)

// Sizer yields the side length of the next window.
type Sizer interface {
	Next() int
}

// Fixed returns the same size for every window.
type Fixed int

func (f Fixed) Next() int { return int(f) }

// Random draws sizes uniformly from [0, Limit) out of a shared source.
// The source belongs to the worker, so consecutive images continue the
// same sequence instead of restarting it.
type Random struct {
	Rng   *rand.Rand
	Limit int
}

// NewRandom binds a worker-wide source to one image's short side.
func NewRandom(rng *rand.Rand, shortSide int) *Random {
	return &Random{Rng: rng, Limit: shortSide}
}

func (r *Random) Next() int {
	if r.Limit <= 0 {
		return 0
	}
	return r.Rng.Intn(r.Limit)
}

// Params describes one image to walk.
type Params struct {
	Source string
	Width  int
	Height int
	Stride int
	// Angle enables rotation augmentation when non-zero.
	Angle float64
}

// Walk visits every candidate window of an image, y-major and x-minor.
//
// Each axis steps by Stride from 0. The first step whose window would touch
// or cross the far edge is pulled back so that its far edge sits exactly on
// the boundary; the axis then stops, so the boundary-aligned window appears
// once. A row is the edge row when the size drawn at its start reaches the
// bottom; every window in it is bottom-aligned. In any other row a window
// whose own size reaches the bottom keeps the row's Y and is flagged as
// Overhang, so the bottom boundary is only ever touched by the edge row.
//
// Windows of size 0 and overhanging windows are still visited; callers
// decide what to do with them.
func Walk(p Params, sizer Sizer, visit func(types.Window) error) error {
	stride := max(p.Stride, 1)
	size := sizer.Next()
	counter := 0

	for y := 0; y < p.Height; y += stride {
		edgeRow := y+size >= p.Height

		for x := 0; x < p.Width; x += stride {
			s := size
			win := types.Window{X: x, Y: y, Size: s, Source: p.Source}

			switch {
			case edgeRow:
				win.Y = p.Height - s
			case y+s >= p.Height:
				win.Overhang = true
			}
			edgeCol := x+s >= p.Width
			if edgeCol {
				win.X = p.Width - s
			}

			win.Angle = rotation(p.Angle, counter, x, y, edgeCol)
			if err := visit(win); err != nil {
				return err
			}

			counter++
			size = sizer.Next()
			if edgeCol {
				break
			}
		}

		if edgeRow {
			break
		}
	}
	return nil
}

// rotation applies the 4-step alternation: interior windows on even counts
// rotate, +angle when the count is a multiple of 4 and -angle otherwise.
// The first row, the first column and the right-edge window never rotate.
func rotation(angle float64, counter, x, y int, edgeCol bool) float64 {
	if angle == 0 || x == 0 || y == 0 || edgeCol {
		return 0
	}
	switch counter % 4 {
	case 0:
		return angle
	case 2:
		return -angle
	default:
		return 0
	}
}
