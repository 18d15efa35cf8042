package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/objindex/internal/executor"
	"github.com/dshills/objindex/internal/fingerprint"
	"github.com/dshills/objindex/internal/indexer"
	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/internal/metrics"
	"github.com/dshills/objindex/internal/pathmap"
	"github.com/dshills/objindex/internal/planner"
	"github.com/dshills/objindex/internal/scanner"
	"github.com/dshills/objindex/internal/scratch"
	"github.com/dshills/objindex/internal/storage"
	"github.com/dshills/objindex/pkg/types"
)

// ErrRunInProgress is returned when a run is already active in this process.
var ErrRunInProgress = errors.New("a run is already in progress")

// Options configures a Runner. Ledger and Metrics are optional.
type Options struct {
	Engine          []string // external engine argv, empty for the built-in indexer
	Ledger          storage.Storage
	Metrics         *metrics.Metrics
	MetricsTextfile string
	Logger          *logging.Logger
}

// Hooks observe a run. All are optional. OnProgress and OnResult are called
// from a single goroutine.
type Hooks struct {
	OnPlan     func(*planner.Plan)
	OnDispatch func(types.Job)
	OnProgress func(executor.Progress)
	OnResult   func(executor.JobResult)
}

// Summary describes a finished run.
type Summary struct {
	RunID        string
	LogicVersion string
	Plan         planner.Stats
	Completed    int
	Failed       int
	Undispatched int
	Failures     []executor.JobResult
	Status       storage.RunStatus
	Duration     time.Duration
}

// Runner executes runs. Ledger, metrics and the run lock are shared across
// runs.
type Runner struct {
	engine   []string
	ledger   storage.Storage
	metrics  *metrics.Metrics
	textfile string
	logger   *logging.Logger
	lock     RunLock
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		engine:   opts.Engine,
		ledger:   opts.Ledger,
		metrics:  opts.Metrics,
		textfile: opts.MetricsTextfile,
		logger:   logger,
	}
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	return r.lock.Held()
}

// session holds the per-run collaborators built by prepare.
type session struct {
	cfg          *types.RunConfig
	logicVersion string
	planner      *planner.Planner
	indexer      indexer.Indexer
}

// prepare checks preconditions and wires the components of one run.
func (r *Runner) prepare(ctx context.Context, cfg *types.RunConfig) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Only an external engine consumes scratch space.
	var required uint64
	if len(r.engine) > 0 {
		required = cfg.ScratchBytes()
	}
	space, err := scratch.Provision(cfg.ScratchDir, required)
	if err != nil {
		r.logger.Error(ctx, "scratch provisioning failed",
			zap.String("scratch_dir", cfg.ScratchDir), zap.Error(err))
		return nil, err
	}
	r.logger.Debug(ctx, "scratch ready", zap.Stringer("scratch", space))

	if err := os.MkdirAll(cfg.OutputRoot, 0755); err != nil {
		r.logger.Error(ctx, "failed to create output root",
			zap.String("output_root", cfg.OutputRoot), zap.Error(err))
		return nil, fmt.Errorf("failed to create output root: %w", err)
	}

	filter := scanner.New(cfg, r.logger)
	if err := filter.Check(); err != nil {
		return nil, r.inputRootError(ctx, cfg, err)
	}
	mapper, err := pathmap.New(cfg.InputRoot, cfg.OutputRoot, cfg.IndexSuffix)
	if err != nil {
		return nil, r.inputRootError(ctx, cfg, err)
	}

	version, err := indexer.LogicVersion(r.engine)
	if err != nil {
		return nil, err
	}
	hasher, err := fingerprint.NewHasher(version, fingerprint.DefaultCacheSize)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:          cfg,
		logicVersion: version,
		planner:      planner.New(cfg, filter, mapper, hasher.Fingerprint, r.logger),
		indexer:      indexer.New(r.engine, hasher.Fingerprint, r.logger),
	}, nil
}

func (r *Runner) inputRootError(ctx context.Context, cfg *types.RunConfig, err error) error {
	if errors.Is(err, types.ErrInputRootMissing) {
		r.logger.Error(ctx, "input root missing", zap.String("input_root", cfg.InputRoot), zap.Error(err))
	}
	return err
}

// Plan checks preconditions and plans without indexing anything.
func (r *Runner) Plan(ctx context.Context, cfg *types.RunConfig) (*planner.Plan, error) {
	s, err := r.prepare(ctx, cfg)
	if err != nil {
		return nil, err
	}
	plan, err := s.planner.Plan(ctx)
	if err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.RecordPlan(plan.Stats.Candidates, plan.Stats.Planned, plan.Stats.UpToDate, plan.Stats.Oversized)
	}
	return plan, nil
}

// Run performs one full run. Job failures are reported in the Summary, not
// as an error. A cancelled context stops dispatch and returns the partial
// Summary together with the context error.
func (r *Runner) Run(ctx context.Context, cfg *types.RunConfig, hooks Hooks) (*Summary, error) {
	if !r.lock.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer r.lock.Release()

	start := time.Now()
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	run := &storage.Run{
		ID:         runID,
		InputRoot:  cfg.InputRoot,
		OutputRoot: cfg.OutputRoot,
		StartedAt:  start.UTC(),
		Status:     storage.RunRunning,
	}
	summary := &Summary{RunID: runID, Status: storage.RunRunning}

	s, err := r.prepare(ctx, cfg)
	if err != nil {
		r.recordAbort(ctx, run, err)
		return nil, err
	}
	run.LogicVersion = s.logicVersion
	summary.LogicVersion = s.logicVersion
	r.createRun(ctx, run)

	r.logger.Info(ctx, "run started",
		zap.String("input_root", cfg.InputRoot),
		zap.String("output_root", cfg.OutputRoot),
		zap.Int("workers", cfg.Workers),
		zap.Bool("reversed", cfg.Reversed),
		zap.String("logic_version", s.logicVersion))

	plan, err := s.planner.Plan(ctx)
	if err != nil {
		r.finishRun(ctx, run, storage.RunAborted, err)
		return nil, err
	}
	summary.Plan = plan.Stats
	run.Candidates = plan.Stats.Candidates
	run.Planned = plan.Stats.Planned
	if r.metrics != nil {
		r.metrics.RecordPlan(plan.Stats.Candidates, plan.Stats.Planned, plan.Stats.UpToDate, plan.Stats.Oversized)
	}
	r.recordPlanned(ctx, runID, plan.Jobs)
	if hooks.OnPlan != nil {
		hooks.OnPlan(plan)
	}

	states := newJobStates(plan.Jobs)
	exec := executor.New(s.indexer, executor.Options{
		Workers:    cfg.Workers,
		Retry:      executor.DefaultRetryConfig(cfg.MaxAttempts),
		OnDispatch: func(j types.Job) {
			r.recordDispatch(ctx, runID, states, j)
			if hooks.OnDispatch != nil {
				hooks.OnDispatch(j)
			}
		},
		OnProgress: hooks.OnProgress,
		OnResult: func(jr executor.JobResult) {
			r.recordResult(ctx, runID, states, jr)
			if hooks.OnResult != nil {
				hooks.OnResult(jr)
			}
		},
	}, r.logger)
	result := exec.Execute(ctx, plan.Jobs)

	summary.Completed = result.Completed
	summary.Failed = result.Failed
	summary.Undispatched = result.Undispatched
	summary.Failures = result.Failures
	summary.Duration = time.Since(start)
	run.Completed = result.Completed
	run.Failed = result.Failed

	status := storage.RunCompleted
	var runErr error
	switch {
	case ctx.Err() != nil:
		status = storage.RunAborted
		runErr = ctx.Err()
	case result.Failed > 0:
		status = storage.RunPartial
	}
	summary.Status = status
	r.finishRun(ctx, run, status, runErr)

	if r.metrics != nil {
		r.metrics.RecordRun(summary.Duration)
		if r.textfile != "" {
			if err := r.metrics.WriteTextfile(r.textfile); err != nil {
				r.logger.Warn(ctx, "failed to write metrics", zap.String("path", r.textfile), zap.Error(err))
			}
		}
	}

	r.logger.Info(ctx, "run complete",
		zap.String("status", string(status)),
		zap.Int("candidates", plan.Stats.Candidates),
		zap.Int("up_to_date", plan.Stats.UpToDate),
		zap.Int("planned", plan.Stats.Planned),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Int("undispatched", result.Undispatched),
		zap.Duration("duration", summary.Duration))

	return summary, runErr
}
