// Package scanner walks the object tree and yields the files eligible for
// indexing.
//
// The tree has a fixed shape: the input root holds project directories and
// each project directory holds artifact files. Sidecar files left behind by
// disassemblers, OS metadata files and objects above the size limit are never
// yielded.
package scanner

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/pkg/types"
)

// SidecarSuffixes are byproducts of earlier tooling (disassembler databases,
// name tables, listings), never primary artifacts.
var SidecarSuffixes = []string{".id0", ".id1", ".id2", ".nam", ".i64", ".til", ".asm"}

// metadataNames are OS generated files found in artifact drops.
var metadataNames = map[string]bool{
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
}

const bytesPerMB = 1 << 20

// Candidate is a file that passed every filter.
type Candidate struct {
	Path      string
	Project   string
	SizeBytes int64
}

// Stats counts what one pass over the tree saw.
type Stats struct {
	Projects  int64
	Seen      int64
	Excluded  int64
	Oversized int64
}

// Filter yields candidate objects under a root directory.
type Filter struct {
	root      string
	maxSizeMB float64
	reversed  bool
	suffixes  []string
	logger    *logging.Logger

	projects  atomic.Int64
	seen      atomic.Int64
	excluded  atomic.Int64
	oversized atomic.Int64
}

// New creates a Filter for cfg. Root is cfg.InputRoot.
func New(cfg *types.RunConfig, logger *logging.Logger) *Filter {
	if logger == nil {
		logger = logging.NewNop()
	}
	suffixes := slices.Clone(SidecarSuffixes)
	for _, s := range cfg.ExtraExcludeSuffixes {
		if s != "" {
			suffixes = append(suffixes, s)
		}
	}
	return &Filter{
		root:      cfg.InputRoot,
		maxSizeMB: cfg.MaxSizeMB,
		reversed:  cfg.Reversed,
		suffixes:  suffixes,
		logger:    logger,
	}
}

// Check verifies the input root exists and is a directory.
func (f *Filter) Check() error {
	info, err := os.Stat(f.root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", types.ErrInputRootMissing, f.root)
		}
		return fmt.Errorf("failed to stat input root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", types.ErrInputRootMissing, f.root)
	}
	return nil
}

// Stats returns the counters of the most recent pass.
func (f *Filter) Stats() Stats {
	return Stats{
		Projects:  f.projects.Load(),
		Seen:      f.seen.Load(),
		Excluded:  f.excluded.Load(),
		Oversized: f.oversized.Load(),
	}
}

// Projects returns the project directories in traversal order.
func (f *Filter) Projects() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list input root: %w", err)
	}

	projects := make([]string, 0, len(entries))
	for _, e := range entries {
		if isDir(f.root, e) {
			projects = append(projects, filepath.Join(f.root, e.Name()))
		}
	}
	// os.ReadDir sorts by name.
	if f.reversed {
		slices.Reverse(projects)
	}
	return projects, nil
}

// Candidates returns a lazy sequence over eligible files. Each range over the
// sequence walks the tree again and resets Stats. Unreadable directories and
// files are logged and skipped.
func (f *Filter) Candidates(ctx context.Context) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		f.projects.Store(0)
		f.seen.Store(0)
		f.excluded.Store(0)
		f.oversized.Store(0)

		projects, err := f.Projects()
		if err != nil {
			f.logger.Error(ctx, "failed to list projects", zap.String("root", f.root), zap.Error(err))
			return
		}
		f.logger.Info(ctx, "listed project directories", zap.Int("projects", len(projects)))

		for _, project := range projects {
			if ctx.Err() != nil {
				return
			}
			f.projects.Add(1)
			if !f.walkProject(ctx, project, yield) {
				return
			}
		}
	}
}

// walkProject yields the candidates directly inside one project directory.
// It returns false when the consumer stopped.
func (f *Filter) walkProject(ctx context.Context, project string, yield func(Candidate) bool) bool {
	entries, err := os.ReadDir(project)
	if err != nil {
		f.logger.Warn(ctx, "failed to list project", zap.String("project", project), zap.Error(err))
		return true
	}

	name := filepath.Base(project)
	for _, e := range entries {
		if ctx.Err() != nil {
			return false
		}
		if e.IsDir() {
			continue
		}
		f.seen.Add(1)

		path := filepath.Join(project, e.Name())
		if !f.Eligible(path) {
			f.excluded.Add(1)
			f.logger.Trace(ctx, "excluded", zap.String("file", path))
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			f.logger.Warn(ctx, "failed to stat object", zap.String("file", path), zap.Error(err))
			continue
		}
		if !info.Mode().IsRegular() {
			f.excluded.Add(1)
			continue
		}

		sizeMB := float64(info.Size()) / bytesPerMB
		if sizeMB > f.maxSizeMB {
			f.oversized.Add(1)
			f.logger.Warn(ctx, "dropping oversized object",
				zap.String("file", e.Name()),
				zap.String("path", path),
				zap.Float64("size_mb", sizeMB),
				zap.String("size", humanize.IBytes(uint64(info.Size()))),
				zap.Float64("max_size_mb", f.maxSizeMB))
			continue
		}

		if !yield(Candidate{Path: path, Project: name, SizeBytes: info.Size()}) {
			return false
		}
	}
	return true
}

// Eligible applies the name based filters: sidecar suffixes, configured
// suffixes and OS metadata files.
func (f *Filter) Eligible(path string) bool {
	base := filepath.Base(path)
	if metadataNames[base] || strings.HasPrefix(base, "._") {
		return false
	}
	lower := strings.ToLower(base)
	for _, s := range f.suffixes {
		if strings.HasSuffix(lower, strings.ToLower(s)) {
			return false
		}
	}
	return true
}

// isDir follows symlinks so linked project directories are walked.
func isDir(root string, e os.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(root, e.Name()))
	return err == nil && info.IsDir()
}
