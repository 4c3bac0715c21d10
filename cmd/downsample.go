package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/tiler/internal/pipeline"
	"github.com/andresmejia3/tiler/internal/types"
	"github.com/andresmejia3/tiler/internal/utils"
	"github.com/spf13/cobra"
)

var downsampleOpts Options

var downsampleCmd = &cobra.Command{
	Use:         "downsample",
	Short:       "Resample every whole image to a small square and collect them in images.csv",
	Annotations: map[string]string{usesCatalog: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runDownsample(cmd, downsampleOpts)
	},
}

func init() {
	addCommonFlags(downsampleCmd, &downsampleOpts)
	downsampleCmd.Flags().IntVarP(&downsampleOpts.DownsampleSize, "downsample-size", "d", types.DefaultDownsampleSize, "Side of the resampled square")
	rootCmd.AddCommand(downsampleCmd)
}

func runDownsample(cmd *cobra.Command, opts Options) error {
	cfg, err := validateDownsampleFlags(&opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	runner, err := newRunner(opts.Isolation, opts.Debug)
	if err != nil {
		utils.ShowError("Worker startup failed", err, nil)
		return err
	}

	runID, err := runIdentity(cfg)
	if err != nil {
		utils.ShowError("Failed to read input directory", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "🧩 Run ID: %s\n", runID[:12])

	sum, err := pipeline.Downsample(ctx, cfg, pipeline.Options{
		Runner:  runner,
		Log:     os.Stderr,
		OnRound: progressRound,
	})
	if err != nil {
		reportRunError("Downsampling failed", err)
		return err
	}

	images := sum.Images(types.PhaseImages)
	if err := recordRun(ctx, "downsample", runID, cfg, sum, images); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n🏁 Downsampling Complete. Wrote %d images at %dx%d to %s\n",
		len(images), cfg.DownsampleSize, cfg.DownsampleSize, cfg.OutputDir)
	return nil
}

func validateDownsampleFlags(opts *Options) (types.JobConfig, error) {
	if err := validateCommonFlags(opts); err != nil {
		return types.JobConfig{}, err
	}
	cfg := types.JobConfig{
		Workers:               opts.Workers,
		InputDir:              opts.InputDir,
		OutputDir:             opts.OutputDir,
		Debug:                 opts.Debug,
		DownsampleSize:        opts.DownsampleSize,
		PreserveIntermediates: opts.Keep,
	}
	if err := cfg.ValidateDownsample(); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return cfg, err
	}
	return cfg, nil
}
