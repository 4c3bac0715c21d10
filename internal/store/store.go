package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/andresmejia3/tiler/internal/types"
	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL run catalog.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the catalog tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			input_dir TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			config JSONB NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			images INT NOT NULL,
			windows INT NOT NULL,
			rejected INT NOT NULL,
			records INT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS run_images (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			chunk INT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			windows INT NOT NULL,
			rejected INT NOT NULL,
			records INT NOT NULL,
			skipped BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS run_images_run_id_idx ON run_images (run_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// RecordRun registers a run and its per-image stats. Recording the same run
// id again replaces the earlier record.
func (s *Store) RecordRun(ctx context.Context, run types.RunSummary, images []types.ImageStats) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Clean up old data to ensure idempotency (prevent duplicate rows on re-run)
	if _, err := tx.Exec(ctx, "DELETE FROM run_images WHERE run_id = $1", run.ID); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (id, command, input_dir, output_dir, config, started_at, finished_at, images, windows, rejected, records)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			command = EXCLUDED.command,
			input_dir = EXCLUDED.input_dir,
			output_dir = EXCLUDED.output_dir,
			config = EXCLUDED.config,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			images = EXCLUDED.images,
			windows = EXCLUDED.windows,
			rejected = EXCLUDED.rejected,
			records = EXCLUDED.records
	`, run.ID, run.Command, run.Config.InputDir, run.Config.OutputDir, string(cfg),
		run.Started, run.Finished, run.Images, run.Windows, run.Rejected, run.Records)
	if err != nil {
		return err
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"run_images"},
		[]string{"run_id", "name", "chunk", "width", "height", "windows", "rejected", "records", "skipped"},
		pgx.CopyFromSlice(len(images), func(i int) ([]any, error) {
			im := images[i]
			return []any{run.ID, im.Name, im.Chunk, im.Width, im.Height, im.Windows, im.Rejected, im.Records, im.Skipped}, nil
		}),
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListRuns returns every catalogued run, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]types.RunSummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, command, config::text, started_at, finished_at, images, windows, rejected, records
		FROM runs ORDER BY finished_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []types.RunSummary
	for rows.Next() {
		var r types.RunSummary
		var cfg string
		if err := rows.Scan(&r.ID, &r.Command, &cfg, &r.Started, &r.Finished, &r.Images, &r.Windows, &r.Rejected, &r.Records); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cfg), &r.Config); err != nil {
			return nil, fmt.Errorf("run %s has a malformed config: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunImages returns the per-image stats of a run in chunk order.
func (s *Store) RunImages(ctx context.Context, runID string) ([]types.ImageStats, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT name, chunk, width, height, windows, rejected, records, skipped
		FROM run_images WHERE run_id = $1 ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ImageStats
	for rows.Next() {
		var im types.ImageStats
		if err := rows.Scan(&im.Name, &im.Chunk, &im.Width, &im.Height, &im.Windows, &im.Rejected, &im.Records, &im.Skipped); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS run_images CASCADE;
		DROP TABLE IF EXISTS runs CASCADE;
	`)
	return err
}
