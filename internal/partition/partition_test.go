package partition

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/andresmejia3/tiler/internal/types"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(n), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestAssign(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	got := Assign(names, 2)
	want := [][]string{{"a", "c", "e"}, {"b", "d"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Assign() = %v, want %v", got, want)
	}
}

func TestAssignCompleteAndBalanced(t *testing.T) {
	for n := 0; n < 30; n++ {
		names := make([]string, n)
		for i := range names {
			names[i] = string(rune('A' + i))
		}
		for workers := 1; workers <= 7; workers++ {
			chunks := Assign(names, workers)
			seen := map[string]int{}
			minLen, maxLen := n, 0
			for _, c := range chunks {
				minLen = min(minLen, len(c))
				maxLen = max(maxLen, len(c))
				for _, name := range c {
					seen[name]++
				}
			}
			if len(seen) != n {
				t.Fatalf("n=%d workers=%d: %d distinct images assigned", n, workers, len(seen))
			}
			for name, count := range seen {
				if count != 1 {
					t.Fatalf("n=%d workers=%d: %s assigned %d times", n, workers, name, count)
				}
			}
			if maxLen-minLen > 1 {
				t.Fatalf("n=%d workers=%d: chunk sizes differ by %d", n, workers, maxLen-minLen)
			}
		}
	}
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.PNG", "a.jpg", "notes.txt", "c.tiff", "d.Bmp", "e.jpeg")
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := ListImages(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.jpg", "b.PNG", "c.tiff", "d.Bmp", "e.jpeg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListImages() = %v, want %v", got, want)
	}
}

func TestPartition(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	touch(t, in, "1.png", "2.png", "3.png", "4.png", "5.png")

	// Stale state from an earlier run must not survive.
	stale := types.ChunkDir(out, 1)
	if err := os.MkdirAll(stale, 0755); err != nil {
		t.Fatal(err)
	}
	touch(t, stale, "old.png")

	chunks, err := Partition(in, out, 2)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if want := []string{"1.png", "3.png", "5.png"}; !reflect.DeepEqual(chunks[0].Images, want) {
		t.Errorf("chunk 0 = %v, want %v", chunks[0].Images, want)
	}
	if want := []string{"2.png", "4.png"}; !reflect.DeepEqual(chunks[1].Images, want) {
		t.Errorf("chunk 1 = %v, want %v", chunks[1].Images, want)
	}

	for _, c := range chunks {
		loaded, err := Load(out, c.Index)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(loaded.Images, c.Images) {
			t.Errorf("chunk %d on disk = %v, want %v", c.Index, loaded.Images, c.Images)
		}
	}

	data, err := os.ReadFile(filepath.Join(chunks[1].Dir, "4.png"))
	if err != nil || string(data) != "4.png" {
		t.Errorf("copied content = %q, %v", data, err)
	}
}

func TestPartitionNoImages(t *testing.T) {
	in := t.TempDir()
	touch(t, in, "readme.md")
	if _, err := Partition(in, t.TempDir(), 2); !errors.Is(err, types.ErrNoImages) {
		t.Errorf("Partition() error = %v, want ErrNoImages", err)
	}
}

func TestPartitionMissingInput(t *testing.T) {
	if _, err := Partition(filepath.Join(t.TempDir(), "missing"), t.TempDir(), 2); err == nil {
		t.Error("Partition() on missing input succeeded")
	}
}
