package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/tiler/internal/types"
	"github.com/spf13/cobra"
)

var errNoCatalog = errors.New("no run catalog configured: pass --db or set POSTGRES_HOST")

var runsRun string

var runsCmd = &cobra.Command{
	Use:         "runs",
	Short:       "List all runs in the catalog",
	Long:        "List all runs in the catalog, or the per-image stats of one run with --run.",
	Annotations: map[string]string{usesCatalog: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if DB == nil {
			return errNoCatalog
		}

		runs, err := DB.ListRuns(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		out := cmd.OutOrStdout()
		if runsRun != "" {
			run, err := findRun(runs, runsRun)
			if err != nil {
				return err
			}
			images, err := DB.RunImages(cmd.Context(), run.ID)
			if err != nil {
				return fmt.Errorf("failed to load images of run %s: %w", run.ID, err)
			}
			printRun(out, run)
			fmt.Fprintln(out)
			return printImages(out, images)
		}

		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs found in catalog.")
			return nil
		}
		return printRuns(out, runs)
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsRun, "run", "", "Show the per-image stats of this run (a unique ID prefix is enough)")
	rootCmd.AddCommand(runsCmd)
}

func printRuns(out io.Writer, runs []types.RunSummary) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMMAND\tIMAGES\tRECORDS\tOUTPUT\tFINISHED")
	fmt.Fprintln(w, "--\t-------\t------\t-------\t------\t--------")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", r.ID[:min(12, len(r.ID))], r.Command, r.Images, r.Records,
			r.Config.OutputDir, r.Finished.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// findRun resolves id against the catalog, accepting the shortened IDs the
// listing prints as long as they are unambiguous.
func findRun(runs []types.RunSummary, id string) (types.RunSummary, error) {
	var match []types.RunSummary
	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
		if strings.HasPrefix(r.ID, id) {
			match = append(match, r)
		}
	}
	switch len(match) {
	case 0:
		return types.RunSummary{}, fmt.Errorf("run %s not found in catalog", id)
	case 1:
		return match[0], nil
	default:
		return types.RunSummary{}, fmt.Errorf("run ID %s is ambiguous (%d matches)", id, len(match))
	}
}
