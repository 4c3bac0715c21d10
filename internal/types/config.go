package types

import "fmt"

// Defaults carried over from the original tiling scripts.
const (
	DefaultWorkers        = 2
	DefaultDownsampleSize = 25
	DefaultRotationAngle  = 10
	DefaultSeed           = 1234

	tilesPerShortSide = 20
)

// Mode selects how window sizes are chosen during the stride walk.
type Mode int

const (
	// ModeFixed uses TileSize for every window.
	ModeFixed Mode = iota
	// ModeRandom draws every window size from [0, short side).
	ModeRandom
)

func (m Mode) String() string {
	if m == ModeRandom {
		return "random"
	}
	return "fixed"
}

// JobConfig is the immutable description of one run.
// Zero values of the optional integers mean "unset".
type JobConfig struct {
	Workers               int      `json:"workers"`
	InputDir              string   `json:"input_dir"`
	OutputDir             string   `json:"output_dir"`
	Debug                 bool     `json:"debug"`
	TileSize              int      `json:"tile_size,omitempty"`
	DownsampleSize        int      `json:"downsample_size,omitempty"`
	StrideLength          int      `json:"stride_length,omitempty"`
	VarianceThreshold     *float64 `json:"variance_threshold,omitempty"`
	RotationAngle         float64  `json:"rotation_angle,omitempty"`
	Seed                  int64    `json:"seed"`
	PreserveIntermediates bool     `json:"preserve_intermediates"`
}

// Mode reports fixed-size tiling when a tile size is configured.
func (c JobConfig) Mode() Mode {
	if c.TileSize > 0 {
		return ModeFixed
	}
	return ModeRandom
}

// CanonicalSize is the side length shared by every persisted patch.
// It is 0 when no single size can be guaranteed.
func (c JobConfig) CanonicalSize() int {
	if c.DownsampleSize > 0 {
		return c.DownsampleSize
	}
	if c.Mode() == ModeFixed {
		return c.TileSize
	}
	return 0
}

// KeepChunks reports whether chunk working directories survive the run.
func (c JobConfig) KeepChunks() bool {
	return c.PreserveIntermediates || c.Debug
}

// Rotates reports whether rotation augmentation is active.
func (c JobConfig) Rotates() bool {
	return c.Mode() == ModeRandom && c.RotationAngle != 0
}

// Validate checks the configuration for the patch pipeline.
func (c JobConfig) Validate() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.TileSize < 0 {
		return fmt.Errorf("%w: tile size must be >= 0, got %d", ErrInvalidConfig, c.TileSize)
	}
	if c.StrideLength < 0 {
		return fmt.Errorf("%w: stride length must be >= 0, got %d", ErrInvalidConfig, c.StrideLength)
	}
	if c.VarianceThreshold != nil && *c.VarianceThreshold < 0 {
		return fmt.Errorf("%w: variance threshold must be >= 0, got %v", ErrInvalidConfig, *c.VarianceThreshold)
	}
	if c.CanonicalSize() == 0 {
		return fmt.Errorf("%w: randomized window sizes need a downsample size", ErrSchemaMismatch)
	}
	return nil
}

// ValidateDownsample checks the configuration for the whole-image pipeline.
func (c JobConfig) ValidateDownsample() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.DownsampleSize <= 0 {
		return fmt.Errorf("%w: downsample size must be > 0, got %d", ErrInvalidConfig, c.DownsampleSize)
	}
	return nil
}

func (c JobConfig) validateCommon() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: worker count must be >= 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.InputDir == "" {
		return fmt.Errorf("%w: input directory is required", ErrInvalidConfig)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidConfig)
	}
	if c.DownsampleSize < 0 {
		return fmt.Errorf("%w: downsample size must be >= 0, got %d", ErrInvalidConfig, c.DownsampleSize)
	}
	return nil
}

// Derived holds the per-image values computed from a JobConfig.
type Derived struct {
	ShortSide         int
	Stride            int
	VarianceThreshold float64
}

// Derive computes stride and variance threshold for a w×h image.
// Nothing here is stored back into the config; every image starts fresh.
func (c JobConfig) Derive(w, h int) Derived {
	short := min(w, h)
	d := Derived{ShortSide: short}

	switch c.Mode() {
	case ModeFixed:
		d.Stride = c.StrideLength
		if d.Stride == 0 {
			d.Stride = c.TileSize / 2
		}
		if bound := short - c.TileSize; bound < d.Stride {
			d.Stride = bound
		}
		d.VarianceThreshold = float64(c.TileSize / 10)
	default:
		d.Stride = c.StrideLength
		if d.Stride == 0 {
			d.Stride = short / tilesPerShortSide
		}
		d.VarianceThreshold = float64(short / 60)
	}

	if d.Stride < 1 {
		d.Stride = 1
	}
	if c.VarianceThreshold != nil {
		d.VarianceThreshold = *c.VarianceThreshold
	}
	return d
}
