package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/tiler/internal/manifest"
	"github.com/andresmejia3/tiler/internal/types"
	"github.com/spf13/cobra"
)

var inspectRun string

var inspectCmd = &cobra.Command{
	Use:   "inspect <output_dir>",
	Short: "Show the latest run recorded in an output directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runInspect(cmd.OutOrStdout(), args[0], inspectRun)
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectRun, "run", "", "Run ID to show instead of the latest")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(out io.Writer, dir, runID string) error {
	path := manifest.Path(dir)
	// bbolt would happily create an empty manifest; don't.
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no run manifest in %s: %w", dir, err)
	}
	m, err := manifest.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer m.Close()

	var run types.RunSummary
	if runID == "" {
		run, err = m.Latest()
	} else {
		run, err = m.Run(runID)
	}
	if err != nil {
		return err
	}
	images, err := m.Images(run.ID)
	if err != nil {
		return err
	}

	printRun(out, run)
	fmt.Fprintln(out)

	return printImages(out, images)
}

// printImages renders the per-image stats of a run as a table.
func printImages(out io.Writer, images []types.ImageStats) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tCHUNK\tSIZE\tWINDOWS\tREJECTED\tRECORDS")
	fmt.Fprintln(w, "-----\t-----\t----\t-------\t--------\t-------")
	for _, im := range images {
		size := fmt.Sprintf("%dx%d", im.Width, im.Height)
		if im.Skipped {
			size += " (skipped)"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%d\n", im.Name, im.Chunk, size, im.Windows, im.Rejected, im.Records)
	}
	return w.Flush()
}

func printRun(out io.Writer, run types.RunSummary) {
	cfg := run.Config
	fmt.Fprintf(out, "Run:      %s (%s)\n", run.ID, run.Command)
	fmt.Fprintf(out, "Input:    %s\n", cfg.InputDir)
	fmt.Fprintf(out, "Finished: %s (took %s)\n", run.Finished.Local().Format("2006-01-02 15:04:05"), run.Finished.Sub(run.Started).Round(time.Millisecond))
	if run.Command == "tile" {
		fmt.Fprintf(out, "Mode:     %s, %d px patches, %d workers\n", cfg.Mode(), cfg.CanonicalSize(), cfg.Workers)
	} else {
		fmt.Fprintf(out, "Size:     %d px, %d workers\n", cfg.DownsampleSize, cfg.Workers)
	}
	fmt.Fprintf(out, "Totals:   %d images, %d windows, %d rejected, %d records\n", run.Images, run.Windows, run.Rejected, run.Records)
}
