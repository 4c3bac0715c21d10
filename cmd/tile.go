package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/tiler/internal/imaging"
	"github.com/andresmejia3/tiler/internal/partition"
	"github.com/andresmejia3/tiler/internal/pipeline"
	"github.com/andresmejia3/tiler/internal/types"
	"github.com/andresmejia3/tiler/internal/utils"
	"github.com/spf13/cobra"
)

var tileOpts Options

var tileCmd = &cobra.Command{
	Use:         "tile",
	Short:       "Cut every image of a directory into patches with parallel workers",
	Annotations: map[string]string{usesCatalog: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runTile(cmd, tileOpts)
	},
}

func init() {
	addCommonFlags(tileCmd, &tileOpts)
	tileCmd.Flags().IntVarP(&tileOpts.TileSize, "tile-size", "t", 0, "Fixed patch side in pixels (0 picks a random size per window)")
	tileCmd.Flags().IntVarP(&tileOpts.DownsampleSize, "downsample-size", "d", types.DefaultDownsampleSize, "Resample every patch to this side (0 keeps native size)")
	tileCmd.Flags().IntVarP(&tileOpts.StrideLength, "stride", "s", 0, "Distance between window origins (default: tile/2, or short side/20 in random mode)")
	tileCmd.Flags().Float64VarP(&tileOpts.VarianceThreshold, "variance", "v", 0, "Drop patches whose intensity std-dev is not above this (default: tile/10, or short side/60)")
	tileCmd.Flags().Float64VarP(&tileOpts.RotationAngle, "angle", "a", types.DefaultRotationAngle, "Rotation augmentation in degrees for random mode (0 disables)")
	tileCmd.Flags().Int64Var(&tileOpts.Seed, "seed", types.DefaultSeed, "Seed for random window sizes")
	rootCmd.AddCommand(tileCmd)
}

// addCommonFlags registers the flags shared by tile and downsample.
func addCommonFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().IntVarP(&opts.Workers, "workers", "p", types.DefaultWorkers, "Number of parallel workers")
	cmd.Flags().StringVarP(&opts.InputDir, "input", "i", "", "Directory of source images")
	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "", "Directory for the dataset and chunk working directories")
	cmd.Flags().BoolVarP(&opts.Debug, "debug", "g", false, "Save every accepted patch as PNG and keep chunk directories")
	cmd.Flags().BoolVar(&opts.Keep, "keep", false, "Keep chunk directories after the run")
	cmd.Flags().StringVar(&opts.Isolation, "isolation", isolationProcess, "Worker isolation: process or goroutine")

	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
}

// runTile orchestrates partition, the contour and patch rounds, and run bookkeeping.
func runTile(cmd *cobra.Command, opts Options) error {
	cfg, err := validateTileFlags(&opts, cmd.Flags().Changed("variance"))
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
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d %s workers (%s mode, %s backend)...\n", cfg.Workers, opts.Isolation, cfg.Mode(), imaging.Default.Name())

	sum, err := pipeline.Tile(ctx, cfg, pipeline.Options{
		Runner:  runner,
		Log:     os.Stderr,
		OnRound: progressRound,
	})
	if err != nil {
		reportRunError("Tiling failed", err)
		return err
	}

	images := sum.Images(types.PhasePatches)
	warnSkipped(images, cfg.TileSize)
	if err := recordRun(ctx, "tile", runID, cfg, sum, images); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n🏁 Tiling Complete. Wrote %d patches from %d images to %s\n",
		sum.Records(types.PhasePatches), len(images), cfg.OutputDir)
	return nil
}

// validateTileFlags turns the parsed flags into an immutable JobConfig.
// varianceSet reports whether --variance was given explicitly.
func validateTileFlags(opts *Options, varianceSet bool) (types.JobConfig, error) {
	if err := validateCommonFlags(opts); err != nil {
		return types.JobConfig{}, err
	}

	cfg := types.JobConfig{
		Workers:               opts.Workers,
		InputDir:              opts.InputDir,
		OutputDir:             opts.OutputDir,
		Debug:                 opts.Debug,
		TileSize:              opts.TileSize,
		DownsampleSize:        opts.DownsampleSize,
		StrideLength:          opts.StrideLength,
		RotationAngle:         opts.RotationAngle,
		Seed:                  opts.Seed,
		PreserveIntermediates: opts.Keep,
	}
	if varianceSet {
		v := opts.VarianceThreshold
		cfg.VarianceThreshold = &v
	}

	if err := cfg.Validate(); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return cfg, err
	}
	return cfg, nil
}

func validateCommonFlags(opts *Options) error {
	info, err := os.Stat(opts.InputDir)
	if err != nil {
		if os.IsNotExist(err) {
			utils.ShowError("Input directory does not exist", err, nil)
			return err
		}
		utils.ShowError("Unable to access input directory", err, nil)
		return err
	}
	if !info.IsDir() {
		err := fmt.Errorf("%w: %s is not a directory", types.ErrInvalidConfig, opts.InputDir)
		utils.ShowError("Input path is a file, expected a directory of images", err, nil)
		return err
	}

	if opts.Isolation != isolationProcess && opts.Isolation != isolationGoroutine {
		err := fmt.Errorf("%w: invalid isolation '%s'. Must be '%s' or '%s'",
			types.ErrInvalidConfig, opts.Isolation, isolationProcess, isolationGoroutine)
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	return nil
}

func runIdentity(cfg types.JobConfig) (string, error) {
	names, err := partition.ListImages(cfg.InputDir)
	if err != nil {
		return "", err
	}
	return utils.GenerateRunID(cfg.InputDir, names, cfg)
}

func warnSkipped(images []types.ImageStats, tile int) {
	for _, im := range images {
		if im.Skipped {
			fmt.Fprintf(os.Stderr, "⚠️  %s (%dx%d) is smaller than the %d px tile and was skipped\n", im.Name, im.Width, im.Height, tile)
		}
	}
}
