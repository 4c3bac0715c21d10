// Package reduce joins the chunk-local tables into the final dataset files.
package reduce

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/andresmejia3/tiler/internal/partition"
	"github.com/andresmejia3/tiler/internal/types"
)

// Final dataset file names under the output directory.
const (
	PatchesFile   = "patches.csv"
	OriginalsFile = "originals.csv"
	ImagesFile    = "images.csv"
)

// PixelColumns names the flattened pixels of a size×size square.
func PixelColumns(size int) []string {
	cols := make([]string, 0, size*size)
	for j := 0; j < size*size; j++ {
		cols = append(cols, "pixel_"+strconv.Itoa(j))
	}
	return cols
}

// PatchHeader is pixel_0..pixel_{size²-1}, orig_name, x, y, size, angle.
func PatchHeader(size int) []string {
	return append(PixelColumns(size), "orig_name", "x", "y", "size", "angle")
}

// ContourHeader is x, y, z, orig_name.
func ContourHeader() []string {
	return []string{"x", "y", "z", "orig_name"}
}

// ImageHeader is pixel_0..pixel_{size²-1}, orig_name.
func ImageHeader(size int) []string {
	return append(PixelColumns(size), "orig_name")
}

// JoinPatches writes outDir/patches.csv from every chunk's patch table.
func JoinPatches(outDir string, workers, size int) error {
	return join(filepath.Join(outDir, PatchesFile), PatchHeader(size), workers, func(i int) ([]string, error) {
		return []string{filepath.Join(types.ChunkDir(outDir, i), types.PatchTableName(i))}, nil
	})
}

// JoinImages writes outDir/images.csv from every chunk's whole-image table.
func JoinImages(outDir string, workers, size int) error {
	return join(filepath.Join(outDir, ImagesFile), ImageHeader(size), workers, func(i int) ([]string, error) {
		return []string{filepath.Join(types.ChunkDir(outDir, i), types.ImageTableName(i))}, nil
	})
}

// JoinContours writes outDir/originals.csv from every contour table, chunk by
// chunk and in listing order within a chunk. A table whose image is missing
// from the chunk is an error.
func JoinContours(outDir string, workers int) error {
	return join(filepath.Join(outDir, OriginalsFile), ContourHeader(), workers, func(i int) ([]string, error) {
		dir := types.ChunkDir(outDir, i)
		names, err := partition.ListImages(dir)
		if err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}

		tables := make(map[string]bool)
		for _, e := range entries {
			if !e.IsDir() && types.IsContourTable(e.Name()) {
				tables[e.Name()] = true
			}
		}

		paths := make([]string, 0, len(names))
		for _, name := range names {
			table := types.ContourTableName(name)
			delete(tables, table)
			paths = append(paths, filepath.Join(dir, table))
		}
		for table := range tables {
			return nil, fmt.Errorf("chunk %d: contour table %s has no matching image", i, table)
		}
		return paths, nil
	})
}

// Cleanup deletes every chunk working directory.
func Cleanup(outDir string, workers int) error {
	for i := 0; i < workers; i++ {
		if err := os.RemoveAll(types.ChunkDir(outDir, i)); err != nil {
			return fmt.Errorf("failed to remove chunk %d: %w", i, err)
		}
	}
	return nil
}

// join writes header to dst and appends the sources of chunks 0..workers-1
// byte-for-byte, without parsing them.
func join(dst string, header []string, workers int, sources func(i int) ([]string, error)) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	out := bufio.NewWriterSize(f, 256*1024)

	fail := func(err error) error {
		f.Close()
		return err
	}

	hw := csv.NewWriter(out)
	if err := hw.Write(header); err != nil {
		return fail(err)
	}
	hw.Flush()
	if err := hw.Error(); err != nil {
		return fail(err)
	}

	for i := 0; i < workers; i++ {
		paths, err := sources(i)
		if err != nil {
			return fail(fmt.Errorf("failed to list chunk %d: %w", i, err))
		}
		for _, p := range paths {
			if err := appendFile(out, p); err != nil {
				return fail(fmt.Errorf("failed to append %s: %w", p, err))
			}
		}
	}

	if err := out.Flush(); err != nil {
		return fail(err)
	}
	return f.Close()
}

func appendFile(w io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}
