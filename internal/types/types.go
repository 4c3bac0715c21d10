package types

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidConfig is returned when a JobConfig cannot describe a valid run.
	ErrInvalidConfig = errors.New("invalid job configuration")
	// ErrSchemaMismatch is returned when a run would mix patch vectors of different lengths.
	ErrSchemaMismatch = errors.New("patch vector length mismatch")
	// ErrNoImages is returned when the input directory holds no recognized images.
	ErrNoImages = errors.New("no recognized images in input directory")
)

// Phase names one fan-out round of the pipeline.
type Phase string

const (
	PhaseContour Phase = "contour"
	PhasePatches Phase = "patches"
	PhaseImages  Phase = "images"
)

// ChunkDirPrefix is the name prefix of every chunk working directory.
const ChunkDirPrefix = "_chunk_dir"

// Chunk is a disjoint subset of source images owned by exactly one worker.
type Chunk struct {
	Index  int
	Dir    string
	Images []string // base names, in listing order
}

// ChunkDir returns the working directory of chunk i under outDir.
func ChunkDir(outDir string, i int) string {
	return filepath.Join(outDir, ChunkDirPrefix+strconv.Itoa(i))
}

// Window is a candidate square region of a source image.
type Window struct {
	X, Y   int
	Size   int
	Angle  float64
	Source string
	// Overhang marks a window outside the edge row that would cross the
	// bottom boundary. It is never cropped.
	Overhang bool
}

// PatchRecord is one accepted window, flattened row-major.
type PatchRecord struct {
	Pixels []uint8
	Source string
	X, Y   int
	Size   int
	Angle  float64
}

// Row renders the record as a CSV row: pixels..., orig_name, x, y, size, angle.
func (r PatchRecord) Row() []string {
	row := make([]string, 0, len(r.Pixels)+5)
	for _, p := range r.Pixels {
		row = append(row, strconv.Itoa(int(p)))
	}
	return append(row,
		r.Source,
		strconv.Itoa(r.X),
		strconv.Itoa(r.Y),
		strconv.Itoa(r.Size),
		FormatAngle(r.Angle),
	)
}

// ContourRecord is a single pixel of a source image in bottom-up coordinates.
type ContourRecord struct {
	X, Y   int
	Z      uint8 // 255 - raw intensity
	Source string
}

// Row renders the record as a CSV row: x, y, z, orig_name.
func (r ContourRecord) Row() []string {
	return []string{strconv.Itoa(r.X), strconv.Itoa(r.Y), strconv.Itoa(int(r.Z)), r.Source}
}

// FormatAngle prints rotation angles without trailing zeros ("10", "-7.5", "0").
func FormatAngle(a float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64)
}

// Task is the unit of work handed to a worker: one phase over one chunk.
type Task struct {
	Phase  Phase     `json:"phase"`
	Chunk  int       `json:"chunk"`
	Config JobConfig `json:"config"`
}

// ImageStats summarizes what a worker did with a single source image.
type ImageStats struct {
	Name     string `json:"name"`
	Chunk    int    `json:"chunk"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Windows  int    `json:"windows"`  // candidate windows walked
	Rejected int    `json:"rejected"` // windows dropped by the variance filter
	Records  int    `json:"records"`  // rows written
	Skipped  bool   `json:"skipped,omitempty"`
}

// TaskResult is what a worker reports back after finishing a Task.
type TaskResult struct {
	Phase  Phase        `json:"phase"`
	Chunk  int          `json:"chunk"`
	Images []ImageStats `json:"images"`
}

// Records sums the rows written across all images of the result.
func (r TaskResult) Records() int {
	n := 0
	for _, im := range r.Images {
		n += im.Records
	}
	return n
}

// Intermediate table naming inside a chunk directory.
const (
	contourTablePrefix = "orig."
	tableSuffix        = ".csv"
)

// PatchTableName is the chunk-local patch table of chunk i.
func PatchTableName(i int) string { return "patches" + strconv.Itoa(i) + tableSuffix }

// ImageTableName is the chunk-local whole-image table of chunk i.
func ImageTableName(i int) string { return "images" + strconv.Itoa(i) + tableSuffix }

// ContourTableName is the contour table written for one source image.
func ContourTableName(image string) string { return contourTablePrefix + image + tableSuffix }

// IsContourTable reports whether name follows the contour table convention.
func IsContourTable(name string) bool {
	return strings.HasPrefix(name, contourTablePrefix) && strings.HasSuffix(name, tableSuffix)
}

// RunSummary is the record kept for every finished run.
type RunSummary struct {
	ID       string    `json:"id"`
	Command  string    `json:"command"`
	Config   JobConfig `json:"config"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Images   int       `json:"images"`
	Windows  int       `json:"windows"`
	Rejected int       `json:"rejected"`
	Records  int       `json:"records"`
}

// Summarize totals the per-image stats into s.
func (s *RunSummary) Summarize(images []ImageStats) {
	s.Images, s.Windows, s.Rejected, s.Records = len(images), 0, 0, 0
	for _, im := range images {
		s.Windows += im.Windows
		s.Rejected += im.Rejected
		s.Records += im.Records
	}
}
