// Package extract runs the per-chunk map step that turns images into patch rows.
package extract

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"image"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/andresmejia3/tiler/internal/imaging"
	"github.com/andresmejia3/tiler/internal/types"
	"github.com/andresmejia3/tiler/internal/walk"
	"gonum.org/v1/gonum/stat"
)

// Options carries the collaborators of a map step.
type Options struct {
	Backend imaging.Backend // defaults to imaging.Default
	Log     io.Writer       // per-image status lines; nil discards
	// OnImage is called after every finished image.
	OnImage func(types.ImageStats)
}

func (o Options) backend() imaging.Backend {
	if o.Backend == nil {
		return imaging.Default
	}
	return o.Backend
}

func (o Options) logf(format string, args ...any) {
	if o.Log != nil {
		fmt.Fprintf(o.Log, format, args...)
	}
}

func (o Options) done(st types.ImageStats) {
	if o.OnImage != nil {
		o.OnImage(st)
	}
}

// StdDev is the population standard deviation of the intensities.
func StdDev(px []uint8) float64 {
	if len(px) == 0 {
		return math.NaN()
	}
	xs := make([]float64, len(px))
	for i, p := range px {
		xs[i] = float64(p)
	}
	return math.Sqrt(stat.PopVariance(xs, nil))
}

// Patches walks every image of the chunk and appends the accepted windows to
// the chunk's patch table. Rows follow walk order, images follow listing order.
func Patches(ctx context.Context, chunk types.Chunk, cfg types.JobConfig, opts Options) (types.TaskResult, error) {
	res := types.TaskResult{Phase: types.PhasePatches, Chunk: chunk.Index}

	canonical := cfg.CanonicalSize()
	if canonical == 0 {
		return res, fmt.Errorf("%w: randomized window sizes need a downsample size", types.ErrSchemaMismatch)
	}

	path := filepath.Join(chunk.Dir, types.PatchTableName(chunk.Index))
	tw, err := newTableWriter(path)
	if err != nil {
		return res, err
	}
	defer tw.abort()

	// One source per worker invocation, shared by all of its images.
	rng := rand.New(rand.NewSource(cfg.Seed))
	t := &tiler{cfg: cfg, opts: opts, out: tw, chunkDir: chunk.Dir, canonical: canonical, rng: rng}

	for _, name := range chunk.Images {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		opts.logf("chunk %d: tiling %s ...\n", chunk.Index, name)
		st, err := t.image(name)
		st.Chunk = chunk.Index
		if err != nil {
			return res, fmt.Errorf("failed to tile %s: %w", name, err)
		}
		res.Images = append(res.Images, st)
		opts.done(st)
	}

	if err := tw.close(); err != nil {
		return res, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return res, nil
}

type tiler struct {
	cfg       types.JobConfig
	opts      Options
	out       *tableWriter
	chunkDir  string
	canonical int
	rng       *rand.Rand
}

func (t *tiler) image(name string) (types.ImageStats, error) {
	st := types.ImageStats{Name: name}
	backend := t.opts.backend()

	img, err := backend.Load(filepath.Join(t.chunkDir, name))
	if err != nil {
		return st, err
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	st.Width, st.Height = w, h
	d := t.cfg.Derive(w, h)

	var sizer walk.Sizer
	if t.cfg.Mode() == types.ModeFixed {
		if t.cfg.TileSize > d.ShortSide {
			t.opts.logf("⚠️  %s (%dx%d) is smaller than the %d px tile, skipping\n", name, w, h, t.cfg.TileSize)
			st.Skipped = true
			return st, nil
		}
		sizer = walk.Fixed(t.cfg.TileSize)
	} else {
		sizer = walk.NewRandom(t.rng, d.ShortSide)
	}

	// Rotated copies are built once per image and cropped per window.
	var plus, minus *image.Gray
	angle := 0.0
	if t.cfg.Rotates() {
		angle = t.cfg.RotationAngle
		if plus, err = backend.Rotate(img, angle); err != nil {
			return st, err
		}
		if minus, err = backend.Rotate(img, -angle); err != nil {
			return st, err
		}
	}

	params := walk.Params{Source: name, Width: w, Height: h, Stride: d.Stride, Angle: angle}
	err = walk.Walk(params, sizer, func(win types.Window) error {
		st.Windows++
		if win.Size == 0 || win.Overhang {
			st.Rejected++
			return nil
		}

		src := img
		switch {
		case win.Angle > 0:
			src = plus
		case win.Angle < 0:
			src = minus
		}
		tile := imaging.Crop(src, win.X, win.Y, win.Size)

		if !(StdDev(imaging.Pixels(tile)) > d.VarianceThreshold) {
			st.Rejected++
			return nil
		}

		if t.cfg.DownsampleSize > 0 {
			if tile, err = backend.Resize(tile, t.cfg.DownsampleSize, t.cfg.DownsampleSize); err != nil {
				return err
			}
		}

		rec := types.PatchRecord{
			Pixels: imaging.Pixels(tile),
			Source: name,
			X:      win.X,
			Y:      win.Y,
			Size:   win.Size,
			Angle:  win.Angle,
		}
		if len(rec.Pixels) != t.canonical*t.canonical {
			return fmt.Errorf("%w: window at (%d,%d) has %d pixels, run expects %d",
				types.ErrSchemaMismatch, win.X, win.Y, len(rec.Pixels), t.canonical*t.canonical)
		}

		if t.cfg.Debug {
			fname := fmt.Sprintf("patch.%s.%d.%d.%d.%s.png", name, win.X, win.Y, win.Size, types.FormatAngle(win.Angle))
			if err := imaging.SavePNG(filepath.Join(t.chunkDir, fname), tile); err != nil {
				return err
			}
		}

		if err := t.out.write(rec.Row()); err != nil {
			return err
		}
		st.Records++
		return nil
	})
	return st, err
}

// tableWriter is a buffered CSV file; abort releases it on error paths.
type tableWriter struct {
	f      *os.File
	buf    *bufio.Writer
	csv    *csv.Writer
	closed bool
}

func newTableWriter(path string) (*tableWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	buf := bufio.NewWriterSize(f, 64*1024)
	return &tableWriter{f: f, buf: buf, csv: csv.NewWriter(buf)}, nil
}

func (w *tableWriter) write(row []string) error {
	return w.csv.Write(row)
}

func (w *tableWriter) close() error {
	w.closed = true
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

func (w *tableWriter) abort() {
	if w.closed {
		return
	}
	w.f.Close()
}
