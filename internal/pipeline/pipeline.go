// Package pipeline drives a whole run: partition, fan-out rounds with a hard
// barrier between them, reduce and cleanup.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/andresmejia3/tiler/internal/partition"
	"github.com/andresmejia3/tiler/internal/reduce"
	"github.com/andresmejia3/tiler/internal/types"
	"github.com/andresmejia3/tiler/internal/worker"
)

// Options carries the collaborators of a run.
type Options struct {
	Runner worker.Runner // defaults to worker.Inline
	Log    io.Writer     // round-level status lines; nil discards

	// OnRound is called before every fan-out round with the number of images
	// it will process. The returned callback, if any, receives every finished
	// image of that round. Calls to it are serialized.
	OnRound func(phase types.Phase, images int) func(types.ImageStats)
}

func (o Options) runner() worker.Runner {
	if o.Runner == nil {
		return worker.Inline{}
	}
	return o.Runner
}

func (o Options) logf(format string, args ...any) {
	if o.Log != nil {
		fmt.Fprintf(o.Log, format, args...)
	}
}

// Summary describes a finished run.
type Summary struct {
	Chunks   []types.Chunk
	Rounds   map[types.Phase][]types.TaskResult
	Started  time.Time
	Finished time.Time
}

// Images returns the per-image stats of a round in chunk order.
func (s Summary) Images(phase types.Phase) []types.ImageStats {
	var out []types.ImageStats
	for _, r := range s.Rounds[phase] {
		out = append(out, r.Images...)
	}
	return out
}

// Records sums the rows a round wrote.
func (s Summary) Records(phase types.Phase) int {
	n := 0
	for _, r := range s.Rounds[phase] {
		n += r.Records()
	}
	return n
}

// Round runs one task per chunk concurrently and waits for all of them.
// The first failure cancels the others and is returned; results are ordered
// by chunk index.
func Round(ctx context.Context, chunks []types.Chunk, r worker.Runner, phase types.Phase, cfg types.JobConfig, onImage func(types.ImageStats)) ([]types.TaskResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	report := func(st types.ImageStats) {
		if onImage == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onImage(st)
	}

	results := make([]types.TaskResult, len(chunks))
	errChan := make(chan error, len(chunks))
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk types.Chunk) {
			defer wg.Done()
			task := types.Task{Phase: phase, Chunk: chunk.Index, Config: cfg}
			res, err := r.Run(ctx, task, chunk, report)
			if err != nil {
				errChan <- fmt.Errorf("chunk %d: %w", chunk.Index, err)
				cancel()
				return
			}
			results[i] = res
		}(i, chunk)
	}

	wg.Wait()
	close(errChan)

	// The first error sent is the cause; later ones are cancellations.
	if err, ok := <-errChan; ok {
		return nil, err
	}
	return results, nil
}

func countImages(chunks []types.Chunk) int {
	n := 0
	for _, c := range chunks {
		n += len(c.Images)
	}
	return n
}

func (o Options) round(ctx context.Context, chunks []types.Chunk, phase types.Phase, cfg types.JobConfig) ([]types.TaskResult, error) {
	var onImage func(types.ImageStats)
	if o.OnRound != nil {
		onImage = o.OnRound(phase, countImages(chunks))
	}
	return Round(ctx, chunks, o.runner(), phase, cfg, onImage)
}

// Tile builds patches.csv and originals.csv under cfg.OutputDir.
func Tile(ctx context.Context, cfg types.JobConfig, opts Options) (Summary, error) {
	sum := Summary{Started: time.Now(), Rounds: map[types.Phase][]types.TaskResult{}}
	if err := cfg.Validate(); err != nil {
		return sum, err
	}

	chunks, err := partition.Partition(cfg.InputDir, cfg.OutputDir, cfg.Workers)
	if err != nil {
		return sum, err
	}
	sum.Chunks = chunks
	opts.logf("📂 Partitioned %d images into %d chunks (%s mode, %dpx patches)\n",
		countImages(chunks), len(chunks), cfg.Mode(), cfg.CanonicalSize())

	res, err := opts.round(ctx, chunks, types.PhaseContour, cfg)
	if err != nil {
		return sum, fmt.Errorf("contour round failed: %w", err)
	}
	sum.Rounds[types.PhaseContour] = res
	if err := reduce.JoinContours(cfg.OutputDir, cfg.Workers); err != nil {
		return sum, fmt.Errorf("failed to join contours: %w", err)
	}

	res, err = opts.round(ctx, chunks, types.PhasePatches, cfg)
	if err != nil {
		return sum, fmt.Errorf("patch round failed: %w", err)
	}
	sum.Rounds[types.PhasePatches] = res
	if err := reduce.JoinPatches(cfg.OutputDir, cfg.Workers, cfg.CanonicalSize()); err != nil {
		return sum, fmt.Errorf("failed to join patches: %w", err)
	}

	if err := finish(cfg, opts); err != nil {
		return sum, err
	}
	sum.Finished = time.Now()
	return sum, nil
}

// Downsample builds images.csv under cfg.OutputDir.
func Downsample(ctx context.Context, cfg types.JobConfig, opts Options) (Summary, error) {
	sum := Summary{Started: time.Now(), Rounds: map[types.Phase][]types.TaskResult{}}
	if err := cfg.ValidateDownsample(); err != nil {
		return sum, err
	}

	chunks, err := partition.Partition(cfg.InputDir, cfg.OutputDir, cfg.Workers)
	if err != nil {
		return sum, err
	}
	sum.Chunks = chunks
	opts.logf("📂 Partitioned %d images into %d chunks\n", countImages(chunks), len(chunks))

	res, err := opts.round(ctx, chunks, types.PhaseImages, cfg)
	if err != nil {
		return sum, fmt.Errorf("downsample round failed: %w", err)
	}
	sum.Rounds[types.PhaseImages] = res
	if err := reduce.JoinImages(cfg.OutputDir, cfg.Workers, cfg.DownsampleSize); err != nil {
		return sum, fmt.Errorf("failed to join images: %w", err)
	}

	if err := finish(cfg, opts); err != nil {
		return sum, err
	}
	sum.Finished = time.Now()
	return sum, nil
}

func finish(cfg types.JobConfig, opts Options) error {
	if cfg.KeepChunks() {
		opts.logf("📌 Keeping chunk directories under %s\n", cfg.OutputDir)
		return nil
	}
	return reduce.Cleanup(cfg.OutputDir, cfg.Workers)
}
