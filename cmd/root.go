package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/tiler/internal/store"
	"github.com/spf13/cobra"
)

// Options holds shared configuration for the tile and downsample commands
type Options struct {
	Workers           int
	InputDir          string
	OutputDir         string
	Debug             bool
	TileSize          int
	DownsampleSize    int
	StrideLength      int
	VarianceThreshold float64
	RotationAngle     float64
	Seed              int64
	Keep              bool
	Isolation         string
}

var (
	// DB is the optional run catalog shared by subcommands. It stays nil when
	// no connection string is configured.
	DB *store.Store
	// dbURL is the connection string
	dbURL string
)

// Version is the application version.
const Version = "0.1.0"

// usesCatalog marks commands that connect to the run catalog when one is configured.
const usesCatalog = "catalog"

var rootCmd = &cobra.Command{
	Use:           "tiler",
	Short:         "Parallel image patch extraction for dataset building",
	Version:       Version, // This enables the --version flag
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[usesCatalog] == "" {
			return nil
		}
		url := catalogURL()
		if url == "" {
			return nil
		}

		var err error
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
			DB = nil
		}
	},
}

// catalogURL returns the --db flag, or a connection string built from the
// POSTGRES_* environment, or "" when neither is set.
func catalogURL() string {
	if dbURL != "" {
		return dbURL
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the run catalog (default: built from POSTGRES_* env, disabled if unset)")
}
