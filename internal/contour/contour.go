// Package contour exports whole images as (x, y, z, name) point clouds used
// as a background when plotting patches.
package contour

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/tiler/internal/imaging"
	"github.com/andresmejia3/tiler/internal/types"
)

// Options carries the collaborators of the export.
type Options struct {
	Backend imaging.Backend // defaults to imaging.Default
	Log     io.Writer
	OnImage func(types.ImageStats)
}

// Records converts img into one record per pixel, x varying fastest.
// Coordinates are 1-based with y counted from the bottom row, and the
// intensity is inverted.
func Records(img *image.Gray, name string) []types.ContourRecord {
	b := img.Bounds()
	out := make([]types.ContourRecord, 0, b.Dx()*b.Dy())
	each(img, name, func(r types.ContourRecord) error {
		out = append(out, r)
		return nil
	})
	return out
}

// each yields the records of img in the order Records returns them and stops
// at the first error from fn.
func each(img *image.Gray, name string, fn func(types.ContourRecord) error) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			v := img.GrayAt(b.Min.X+col, b.Min.Y+row).Y
			if err := fn(types.ContourRecord{X: col + 1, Y: h - row, Z: 255 - v, Source: name}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Export writes one contour table per image of the chunk.
func Export(ctx context.Context, chunk types.Chunk, opts Options) (types.TaskResult, error) {
	res := types.TaskResult{Phase: types.PhaseContour, Chunk: chunk.Index}
	backend := opts.Backend
	if backend == nil {
		backend = imaging.Default
	}

	for _, name := range chunk.Images {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if opts.Log != nil {
			fmt.Fprintf(opts.Log, "chunk %d: converting %s to csv ...\n", chunk.Index, name)
		}

		img, err := backend.Load(filepath.Join(chunk.Dir, name))
		if err != nil {
			return res, fmt.Errorf("failed to load %s: %w", name, err)
		}
		path := filepath.Join(chunk.Dir, types.ContourTableName(name))
		n, err := writeTable(path, img, name)
		if err != nil {
			return res, fmt.Errorf("failed to write %s: %w", path, err)
		}

		st := types.ImageStats{
			Name:    name,
			Chunk:   chunk.Index,
			Width:   img.Bounds().Dx(),
			Height:  img.Bounds().Dy(),
			Records: n,
		}
		res.Images = append(res.Images, st)
		if opts.OnImage != nil {
			opts.OnImage(st)
		}
	}
	return res, nil
}

// writeTable streams the records of img into path and returns how many rows
// it wrote.
func writeTable(path string, img *image.Gray, name string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	buf := bufio.NewWriterSize(f, 64*1024)
	w := csv.NewWriter(buf)
	n := 0
	err = each(img, name, func(r types.ContourRecord) error {
		n++
		return w.Write(r.Row())
	})
	if err != nil {
		f.Close()
		return n, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return n, err
	}
	if err := buf.Flush(); err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}
