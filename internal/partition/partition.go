// Package partition splits an input directory of images into per-worker chunks.
package partition

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/tiler/internal/imaging"
	"github.com/andresmejia3/tiler/internal/types"
)

// ListImages returns the recognized images in dir in listing order.
// Sub-directories are ignored.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !imaging.IsImage(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Assign deals names round-robin: the i-th name goes to chunk i mod workers.
func Assign(names []string, workers int) [][]string {
	out := make([][]string, workers)
	for i, name := range names {
		out[i%workers] = append(out[i%workers], name)
	}
	return out
}

// Partition recreates workers empty chunk directories under outDir and copies
// every image of inDir into the chunk it is assigned to.
// Any filesystem error aborts the whole partition.
func Partition(inDir, outDir string, workers int) ([]types.Chunk, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: worker count must be >= 1, got %d", types.ErrInvalidConfig, workers)
	}
	names, err := ListImages(inDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", inDir, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNoImages, inDir)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	chunks := make([]types.Chunk, workers)
	for i, assigned := range Assign(names, workers) {
		dir := types.ChunkDir(outDir, i)
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", dir, err)
		}
		if err := os.Mkdir(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		chunks[i] = types.Chunk{Index: i, Dir: dir, Images: assigned}
	}

	// Copy in listing order so a failure points at the first bad file.
	for i, name := range names {
		dst := filepath.Join(chunks[i%workers].Dir, name)
		if err := copyFile(filepath.Join(inDir, name), dst); err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", name, err)
		}
	}
	return chunks, nil
}

// Load rebuilds a chunk description from its working directory.
func Load(outDir string, index int) (types.Chunk, error) {
	dir := types.ChunkDir(outDir, index)
	names, err := ListImages(dir)
	if err != nil {
		return types.Chunk{}, fmt.Errorf("failed to list chunk %d: %w", index, err)
	}
	return types.Chunk{Index: index, Dir: dir, Images: names}, nil
}

// copyFile copies src to dst, replacing dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
