package cmd

import (
	"os"

	"github.com/andresmejia3/tiler/internal/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Serve map tasks from stdin, reporting on fd 3",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// The parent passes the write end of its side channel as the first extra file.
		data := os.NewFile(3, "data")
		defer data.Close()
		return worker.Serve(cmd.Context(), os.Stdin, data, worker.Inline{Log: os.Stderr})
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
