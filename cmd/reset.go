package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/tiler/internal/manifest"
	"github.com/andresmejia3/tiler/internal/types"
	"github.com/andresmejia3/tiler/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB     bool
	resetChunks string
	resetYes    bool
)

var resetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Reset state (catalog tables, stale chunk directories and manifest)",
	Long:        "Clears catalog tables with --db and/or leftovers of earlier runs under an output directory with --chunks.",
	Annotations: map[string]string{usesCatalog: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if !resetDB && resetChunks == "" {
			return fmt.Errorf("nothing to reset: pass --db and/or --chunks <output_dir>")
		}

		reader := bufio.NewReader(cmd.InOrStdin())

		if resetDB {
			if DB == nil {
				return errNoCatalog
			}
			if resetYes || confirm(reader, "⚠️  Are you sure you want to DROP all catalog tables?") {
				fmt.Println("🗑️  Clearing Catalog...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		if resetChunks != "" {
			targets, err := staleArtifacts(resetChunks)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				fmt.Printf("Nothing to clear under %s.\n", resetChunks)
			} else if resetYes || confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete %d chunk directories and the manifest under %s?", len(targets), resetChunks)) {
				fmt.Println("🗑️  Clearing Chunk Directories...")
				for _, path := range targets {
					removeDir(path)
				}
			}
		}

		fmt.Println("✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Drop the catalog tables")
	resetCmd.Flags().StringVar(&resetChunks, "chunks", "", "Output directory whose chunk directories and manifest should be removed")
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

// staleArtifacts lists the chunk directories and manifest under dir.
func staleArtifacts(dir string) ([]string, error) {
	targets, err := filepath.Glob(filepath.Join(dir, types.ChunkDirPrefix+"*"))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(manifest.Path(dir)); err == nil {
		targets = append(targets, manifest.Path(dir))
	}
	return targets, nil
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
