package types

import (
	"fmt"
	"path/filepath"
)

// DefaultIndexSuffix is appended to every indexed path.
const DefaultIndexSuffix = ".zip"

// RunConfig is the validated configuration of a single run. It is shared by
// all jobs and must not be modified once the run starts.
type RunConfig struct {
	InputRoot  string
	OutputRoot string

	MaxSizeMB float64 // objects larger than this are dropped
	Workers   int     // size of the worker pool
	Reversed  bool    // walk project directories last to first

	ScratchDir        string
	ScratchMultiplier float64

	ExtraExcludeSuffixes []string
	MaxAttempts          int // attempts per job within one run, 1 disables retry
	IndexSuffix          string
}

// Validate checks the configuration for values no run can work with.
func (c *RunConfig) Validate() error {
	if c.InputRoot == "" {
		return fmt.Errorf("%w: input root is required", ErrInvalidConfig)
	}
	if c.OutputRoot == "" {
		return fmt.Errorf("%w: output root is required", ErrInvalidConfig)
	}
	if filepath.Clean(c.InputRoot) == filepath.Clean(c.OutputRoot) {
		return fmt.Errorf("%w: input and output roots must differ", ErrInvalidConfig)
	}
	if c.MaxSizeMB <= 0 {
		return fmt.Errorf("%w: max size must be > 0, got %v", ErrInvalidConfig, c.MaxSizeMB)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be > 0, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.ScratchMultiplier < 0 {
		return fmt.Errorf("%w: scratch multiplier must be >= 0, got %v", ErrInvalidConfig, c.ScratchMultiplier)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be >= 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.IndexSuffix == "" {
		return fmt.Errorf("%w: index suffix is required", ErrInvalidConfig)
	}
	return nil
}

// ScratchBytes is the free space an external engine run needs in the
// scratch directory.
func (c *RunConfig) ScratchBytes() uint64 {
	return uint64(c.ScratchMultiplier * c.MaxSizeMB * float64(1<<20) * float64(c.Workers))
}
