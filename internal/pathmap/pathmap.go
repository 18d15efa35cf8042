// Package pathmap derives indexed archive paths from object paths by
// mirroring the input tree under the output root.
package pathmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/objindex/pkg/types"
)

// Mapper rebases object paths from the input root onto the output root.
type Mapper struct {
	inputRoot  string // canonical
	givenInput string // absolute, as specified
	outputRoot string // canonical
	suffix     string
}

// New canonicalizes both roots. The input root must exist; the output root
// may not exist yet.
func New(inputRoot, outputRoot, suffix string) (*Mapper, error) {
	if suffix == "" {
		suffix = types.DefaultIndexSuffix
	}

	givenInput, err := filepath.Abs(inputRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve input root: %w", err)
	}
	in, err := filepath.EvalSymlinks(givenInput)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrInputRootMissing, inputRoot)
		}
		return nil, fmt.Errorf("failed to resolve input root: %w", err)
	}

	out, err := canonical(outputRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output root: %w", err)
	}

	return &Mapper{
		inputRoot:  in,
		givenInput: givenInput,
		outputRoot: out,
		suffix:     suffix,
	}, nil
}

// InputRoot returns the canonical input root.
func (m *Mapper) InputRoot() string { return m.inputRoot }

// OutputRoot returns the canonical output root.
func (m *Mapper) OutputRoot() string { return m.outputRoot }

// Map returns the indexed path for objectPath.
func (m *Mapper) Map(objectPath string) (string, error) {
	p, err := filepath.Abs(objectPath)
	if err != nil {
		return "", &types.PathMappingError{Path: objectPath, Root: m.inputRoot}
	}

	rel, ok := relUnder(m.inputRoot, p)
	if !ok {
		rel, ok = relUnder(m.givenInput, p)
	}
	if !ok {
		return "", &types.PathMappingError{Path: objectPath, Root: m.inputRoot}
	}

	return filepath.Join(m.outputRoot, rel) + m.suffix, nil
}

// relUnder returns p relative to root when p is strictly below root.
func relUnder(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// canonical resolves symlinks in the deepest existing ancestor of path and
// re-appends the components that do not exist yet.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	var missing []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{resolved}, missing...)
			return filepath.Join(parts...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
}
