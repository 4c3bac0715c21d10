package manifest

import (
	"errors"
	"testing"
	"time"

	"github.com/andresmejia3/tiler/internal/types"
)

func openTemp(t *testing.T) *Manifest {
	t.Helper()
	m, err := Open(Path(t.TempDir()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestRecordAndRead(t *testing.T) {
	m := openTemp(t)

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	run := types.RunSummary{ID: "abc", Command: "tile", Config: types.JobConfig{TileSize: 10}, Started: start, Finished: start.Add(time.Minute)}
	images := []types.ImageStats{
		{Name: "b.png", Chunk: 0, Windows: 9, Rejected: 8, Records: 1},
		{Name: "a.png", Chunk: 1, Windows: 9, Rejected: 9},
	}
	run.Summarize(images)
	if err := m.Record(run, images); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := m.Run("abc")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.Config.TileSize != 10 || got.Records != 1 || got.Rejected != 17 || !got.Finished.Equal(run.Finished) {
		t.Errorf("Run() = %+v", got)
	}

	stats, err := m.Images("abc")
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(stats) != 2 || stats[0].Name != "b.png" || stats[1].Name != "a.png" {
		t.Errorf("Images() = %+v, want b.png then a.png", stats)
	}
}

func TestRecordReplacesImages(t *testing.T) {
	m := openTemp(t)
	run := types.RunSummary{ID: "abc"}
	m.Record(run, []types.ImageStats{{Name: "1"}, {Name: "2"}, {Name: "3"}})
	if err := m.Record(run, []types.ImageStats{{Name: "only"}}); err != nil {
		t.Fatal(err)
	}
	// A neighbouring run must not be touched.
	m.Record(types.RunSummary{ID: "abcd"}, []types.ImageStats{{Name: "other"}})

	stats, _ := m.Images("abc")
	if len(stats) != 1 || stats[0].Name != "only" {
		t.Errorf("Images() = %+v, want [only]", stats)
	}
}

func TestLatest(t *testing.T) {
	m := openTemp(t)
	if _, err := m.Latest(); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("Latest() on empty manifest = %v, want ErrNoRuns", err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"zzz", "aaa", "mmm"} {
		m.Record(types.RunSummary{ID: id, Finished: base.Add(time.Duration([]int{1, 3, 2}[i]) * time.Hour)}, nil)
	}
	latest, err := m.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != "aaa" {
		t.Errorf("Latest() = %s, want aaa", latest.ID)
	}
}

func TestRunNotFound(t *testing.T) {
	if _, err := openTemp(t).Run("missing"); err == nil {
		t.Error("Run() of unknown id succeeded")
	}
}
