package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/tiler/internal/manifest"
	"github.com/andresmejia3/tiler/internal/pipeline"
	"github.com/andresmejia3/tiler/internal/types"
	"github.com/andresmejia3/tiler/internal/utils"
	"github.com/andresmejia3/tiler/internal/worker"
	"github.com/schollz/progressbar/v3"
)

const (
	isolationProcess   = "process"
	isolationGoroutine = "goroutine"
)

var roundLabels = map[types.Phase]string{
	types.PhaseContour: "🗺️  Exporting contours",
	types.PhasePatches: "✂️  Cutting patches",
	types.PhaseImages:  "🔻 Downsampling",
}

// newRunner picks how workers are isolated. Goroutine workers only log
// per-image lines in debug mode so they don't fight the progress bar.
func newRunner(isolation string, debug bool) (worker.Runner, error) {
	switch isolation {
	case isolationProcess:
		return worker.Self()
	case isolationGoroutine:
		r := worker.Inline{}
		if debug {
			r.Log = os.Stderr
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown isolation %q", types.ErrInvalidConfig, isolation)
	}
}

// progressRound draws one bar per fan-out round, counting finished images.
func progressRound(phase types.Phase, images int) func(types.ImageStats) {
	bar := progressbar.NewOptions(images,
		progressbar.OptionSetDescription(roundLabels[phase]),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
	return func(types.ImageStats) {
		bar.Add(1)
	}
}

// recordRun writes the run into the output directory's manifest and, when
// configured, into the catalog.
func recordRun(ctx context.Context, command, runID string, cfg types.JobConfig, sum pipeline.Summary, images []types.ImageStats) error {
	run := types.RunSummary{
		ID:       runID,
		Command:  command,
		Config:   cfg,
		Started:  sum.Started,
		Finished: sum.Finished,
	}
	run.Summarize(images)

	m, err := manifest.Open(manifest.Path(cfg.OutputDir))
	if err != nil {
		utils.ShowError("Failed to open run manifest", err, nil)
		return err
	}
	defer m.Close()
	if err := m.Record(run, images); err != nil {
		utils.ShowError("Failed to write run manifest", err, nil)
		return err
	}

	if DB == nil {
		return nil
	}
	if err := DB.RecordRun(ctx, run, images); err != nil {
		utils.ShowError("Failed to catalog run", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "🗄️  Catalogued run %s\n", runID[:12])
	return nil
}

// reportRunError prints the error box, with the worker's captured stderr when
// a worker process died.
func reportRunError(title string, err error) {
	var crash *worker.CrashError
	if errors.As(err, &crash) {
		utils.ShowError(title, err, crash.Cmd)
		return
	}
	utils.ShowError(title, err, nil)
}
