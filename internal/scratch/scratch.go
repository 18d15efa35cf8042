// Package scratch provisions the working space indexing engines write to.
package scratch

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/dshills/objindex/pkg/types"
)

// Space describes a provisioned scratch directory.
type Space struct {
	Dir       string
	FreeBytes uint64
	Required  uint64
}

// String formats the space for logs.
func (s Space) String() string {
	return fmt.Sprintf("%s (%s free, %s required)", s.Dir,
		humanize.IBytes(s.FreeBytes), humanize.IBytes(s.Required))
}

// Provision creates dir and verifies that at least requiredBytes are free on
// its filesystem. Every failure wraps types.ErrScratchUnavailable.
func Provision(dir string, requiredBytes uint64) (*Space, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: no scratch directory configured", types.ErrScratchUnavailable)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrScratchUnavailable, err)
	}

	// MkdirAll succeeds on a read-only existing directory.
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("%w: directory not writable: %v", types.ErrScratchUnavailable, err)
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	free, err := FreeBytes(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrScratchUnavailable, err)
	}

	space := &Space{Dir: dir, FreeBytes: free, Required: requiredBytes}
	if free < requiredBytes {
		return nil, fmt.Errorf("%w: %s", types.ErrScratchUnavailable, space)
	}
	return space, nil
}

// FreeBytes returns the bytes available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
