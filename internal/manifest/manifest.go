// Package manifest keeps a bbolt log of the runs written into an output directory.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/andresmejia3/tiler/internal/types"
	"go.etcd.io/bbolt"
)

// FileName is the manifest database inside an output directory.
const FileName = "manifest.db"

var (
	bucketRuns   = []byte("runs")
	bucketImages = []byte("images")
)

// ErrNoRuns is returned when the manifest holds no run yet.
var ErrNoRuns = errors.New("no runs recorded")

// Path is the manifest location for outDir.
func Path(outDir string) string {
	return filepath.Join(outDir, FileName)
}

type Manifest struct {
	db *bbolt.DB
}

// Open opens or creates the manifest at path.
func Open(path string) (*Manifest, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRuns); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketImages); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Manifest{db: db}, nil
}

// imageKey keeps a run's images together and in the order they were saved.
func imageKey(runID string, i int) []byte {
	return []byte(fmt.Sprintf("%s/%08d", runID, i))
}

// Record stores a run and its per-image stats, replacing any previous record
// of the same run.
func (m *Manifest) Record(run types.RunSummary, images []types.ImageStats) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketRuns).Put([]byte(run.ID), data); err != nil {
			return err
		}

		b := tx.Bucket(bucketImages)
		prefix := []byte(run.ID + "/")
		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		for i, im := range images {
			data, err := json.Marshal(im)
			if err != nil {
				return err
			}
			if err := b.Put(imageKey(run.ID, i), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Run returns the stored summary of a run.
func (m *Manifest) Run(id string) (types.RunSummary, error) {
	var run types.RunSummary
	err := m.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run not found: %s", id)
		}
		return json.Unmarshal(data, &run)
	})
	return run, err
}

// Latest returns the run that finished last.
func (m *Manifest) Latest() (types.RunSummary, error) {
	var latest types.RunSummary
	found := false
	err := m.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var run types.RunSummary
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if !found || run.Finished.After(latest.Finished) {
				latest, found = run, true
			}
			return nil
		})
	})
	if err != nil {
		return latest, err
	}
	if !found {
		return latest, ErrNoRuns
	}
	return latest, nil
}

// Images returns the per-image stats of a run in the order they were recorded.
func (m *Manifest) Images(runID string) ([]types.ImageStats, error) {
	var out []types.ImageStats
	err := m.db.View(func(tx *bbolt.Tx) error {
		prefix := []byte(runID + "/")
		c := tx.Bucket(bucketImages).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var im types.ImageStats
			if err := json.Unmarshal(v, &im); err != nil {
				return err
			}
			out = append(out, im)
		}
		return nil
	})
	return out, err
}

func (m *Manifest) Close() error {
	return m.db.Close()
}
