package types

import (
	"errors"
	"fmt"
)

// Run-level errors. Any of these aborts a run before a job is planned.
var (
	ErrInputRootMissing   = errors.New("input root does not exist")
	ErrScratchUnavailable = errors.New("scratch space unavailable")
	ErrInvalidConfig      = errors.New("invalid run configuration")
)

// PathMappingError is returned when an object path does not lie under the
// resolved input root and therefore has no indexed path.
type PathMappingError struct {
	Path string
	Root string
}

func (e *PathMappingError) Error() string {
	return fmt.Sprintf("path %q is not under input root %q", e.Path, e.Root)
}
