package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/andresmejia3/tiler/internal/imaging"
	"github.com/andresmejia3/tiler/internal/types"
)

// Images resamples every whole image of the chunk to a DownsampleSize square
// and appends one row per image: pixels..., orig_name.
func Images(ctx context.Context, chunk types.Chunk, cfg types.JobConfig, opts Options) (types.TaskResult, error) {
	res := types.TaskResult{Phase: types.PhaseImages, Chunk: chunk.Index}
	if cfg.DownsampleSize <= 0 {
		return res, fmt.Errorf("%w: downsample size must be > 0", types.ErrInvalidConfig)
	}
	size := cfg.DownsampleSize
	backend := opts.backend()

	path := filepath.Join(chunk.Dir, types.ImageTableName(chunk.Index))
	tw, err := newTableWriter(path)
	if err != nil {
		return res, err
	}
	defer tw.abort()

	for _, name := range chunk.Images {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		opts.logf("chunk %d: downsampling %s ...\n", chunk.Index, name)

		img, err := backend.Load(filepath.Join(chunk.Dir, name))
		if err != nil {
			return res, fmt.Errorf("failed to load %s: %w", name, err)
		}
		st := types.ImageStats{Name: name, Chunk: chunk.Index, Width: img.Bounds().Dx(), Height: img.Bounds().Dy(), Windows: 1}

		tile, err := backend.Resize(img, size, size)
		if err != nil {
			return res, fmt.Errorf("failed to resize %s: %w", name, err)
		}
		if cfg.Debug {
			if err := imaging.SavePNG(filepath.Join(chunk.Dir, "tile."+name+".png"), tile); err != nil {
				return res, err
			}
		}

		px := imaging.Pixels(tile)
		row := make([]string, 0, len(px)+1)
		for _, p := range px {
			row = append(row, strconv.Itoa(int(p)))
		}
		if err := tw.write(append(row, name)); err != nil {
			return res, err
		}
		st.Records = 1
		res.Images = append(res.Images, st)
		opts.done(st)
	}

	if err := tw.close(); err != nil {
		return res, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return res, nil
}
