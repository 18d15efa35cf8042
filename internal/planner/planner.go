// Package planner turns the candidate stream into the list of jobs a run
// must execute.
package planner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/objindex/internal/fingerprint"
	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/internal/pathmap"
	"github.com/dshills/objindex/internal/scanner"
	"github.com/dshills/objindex/pkg/types"
)

// Stats summarizes one planning pass.
type Stats struct {
	Projects   int
	Candidates int // objects that passed the filter
	Oversized  int
	Excluded   int
	UpToDate   int // candidates whose archive is already valid
	Unmappable int
	Planned    int
}

// Plan is the materialized work of a run, in traversal order.
type Plan struct {
	Jobs  []types.Job
	Stats Stats
}

// Planner combines the candidate filter, path mapper and fingerprint oracle.
type Planner struct {
	cfg         *types.RunConfig
	filter      *scanner.Filter
	mapper      *pathmap.Mapper
	oracle      *fingerprint.Oracle
	fingerprint fingerprint.Func
	logger      *logging.Logger
}

// New creates a Planner. fp must be the same function the indexer embeds.
func New(cfg *types.RunConfig, filter *scanner.Filter, mapper *pathmap.Mapper, fp fingerprint.Func, logger *logging.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{
		cfg:         cfg,
		filter:      filter,
		mapper:      mapper,
		oracle:      fingerprint.NewOracle(logger),
		fingerprint: fp,
		logger:      logger,
	}
}

// Plan walks the input tree once and returns every candidate whose archive
// is missing or stale. Unmappable candidates are logged and skipped.
func (p *Planner) Plan(ctx context.Context) (*Plan, error) {
	if err := p.filter.Check(); err != nil {
		return nil, err
	}

	plan := &Plan{Jobs: make([]types.Job, 0)}
	for c := range p.filter.Candidates(ctx) {
		plan.Stats.Candidates++

		indexed, err := p.mapper.Map(c.Path)
		if err != nil {
			var pmErr *types.PathMappingError
			if !errors.As(err, &pmErr) {
				return nil, fmt.Errorf("failed to map %s: %w", c.Path, err)
			}
			plan.Stats.Unmappable++
			p.logger.Warn(ctx, "skipping unmappable object", zap.String("file", c.Path), zap.Error(err))
			continue
		}

		if p.oracle.IsIndexed(c.Path, indexed, p.fingerprint) {
			plan.Stats.UpToDate++
			continue
		}

		plan.Jobs = append(plan.Jobs, types.Job{
			ObjectPath:  c.Path,
			IndexedPath: indexed,
			Config:      p.cfg,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs := p.filter.Stats()
	plan.Stats.Projects = int(fs.Projects)
	plan.Stats.Oversized = int(fs.Oversized)
	plan.Stats.Excluded = int(fs.Excluded)
	plan.Stats.Planned = len(plan.Jobs)

	p.logger.Info(ctx, "planning complete",
		zap.Int("projects", plan.Stats.Projects),
		zap.Int("candidates", plan.Stats.Candidates),
		zap.Int("planned", plan.Stats.Planned),
		zap.Int("up_to_date", plan.Stats.UpToDate),
		zap.Int("oversized", plan.Stats.Oversized),
		zap.Int("unmappable", plan.Stats.Unmappable))

	return plan, nil
}
