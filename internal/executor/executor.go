// Package executor runs planned jobs on a bounded worker pool.
//
// Jobs are dispatched one at a time in plan order. A failing job never stops
// the batch; it is logged where it failed and reported in the Result. When
// the context is cancelled dispatch stops, jobs already running finish (or
// observe the cancellation themselves) and the remaining jobs are left for
// the next run.
//
// Progress is reported by a single goroutine reading a results channel
// sized to the batch, so a finished worker never waits on the reporter and
// the OnProgress and OnResult callbacks never run concurrently.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/objindex/internal/indexer"
	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/pkg/types"
)

// Progress is a snapshot after one more job finished.
type Progress struct {
	Done   int
	Total  int
	Failed int
}

// JobResult is the outcome of one dispatched job.
type JobResult struct {
	Job      types.Job
	State    types.JobState // completed or failed
	Attempts int
	Err      error
	Duration time.Duration
}

// Result summarizes one Execute call.
type Result struct {
	Completed    int
	Failed       int
	Undispatched int // left planned because the run was cancelled
	Failures     []JobResult
	Duration     time.Duration
}

// Options configures an Executor. Callbacks are optional.
type Options struct {
	Workers    int
	Retry      RetryConfig
	OnDispatch func(types.Job)
	OnProgress func(Progress)
	OnResult   func(JobResult)
}

// Executor drives an Indexer over a batch of jobs.
type Executor struct {
	indexer indexer.Indexer
	opts    Options
	logger  *logging.Logger
}

// New creates an Executor. Workers below one are treated as one.
func New(idx indexer.Indexer, opts Options, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	return &Executor{indexer: idx, opts: opts, logger: logger}
}

// Execute runs jobs and returns once every dispatched job has finished.
func (e *Executor) Execute(ctx context.Context, jobs []types.Job) *Result {
	start := time.Now()
	result := &Result{Failures: make([]JobResult, 0)}
	if len(jobs) == 0 {
		return result
	}

	results := make(chan JobResult, len(jobs))
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		e.report(results, len(jobs), result)
	}()

	// A job is dispatched only once it holds a worker slot, so a cancel
	// leaves every queued job undispatched.
	var g errgroup.Group
	slots := make(chan struct{}, e.opts.Workers)

	dispatched := 0
dispatch:
	for _, job := range jobs {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		if ctx.Err() != nil {
			<-slots
			break
		}
		if e.opts.OnDispatch != nil {
			e.opts.OnDispatch(job)
		}
		dispatched++
		g.Go(func() error {
			defer func() { <-slots }()
			results <- e.runJob(ctx, job)
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	<-reporterDone

	result.Undispatched = len(jobs) - dispatched
	result.Duration = time.Since(start)
	if result.Undispatched > 0 {
		e.logger.Warn(ctx, "dispatch stopped early",
			zap.Int("undispatched", result.Undispatched), zap.Error(ctx.Err()))
	}
	return result
}

// report is the only reader of results and the only writer of result.
func (e *Executor) report(results <-chan JobResult, total int, result *Result) {
	done := 0
	for r := range results {
		done++
		if r.State == types.JobCompleted {
			result.Completed++
		} else {
			result.Failed++
			result.Failures = append(result.Failures, r)
		}

		if e.opts.OnResult != nil {
			e.opts.OnResult(r)
		}
		if e.opts.OnProgress != nil {
			e.opts.OnProgress(Progress{Done: done, Total: total, Failed: result.Failed})
		}
	}
}

// runJob runs one job with retries. A panicking indexer fails the job.
func (e *Executor) runJob(ctx context.Context, job types.Job) JobResult {
	start := time.Now()
	if err := job.Validate(); err != nil {
		e.logger.Error(ctx, "invalid job", zap.String("file", job.ObjectPath), zap.Error(err))
		return JobResult{Job: job, State: types.JobFailed, Err: err, Duration: time.Since(start)}
	}
	attempts, err := retryWithBackoff(ctx, e.opts.Retry, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("indexer panicked: %v", r)
			}
		}()
		return e.indexer.IndexObject(ctx, job)
	})

	r := JobResult{
		Job:      job,
		State:    types.JobCompleted,
		Attempts: attempts,
		Duration: time.Since(start),
	}
	if err != nil {
		r.State = types.JobFailed
		r.Err = err
		e.logger.Error(ctx, "indexing failed",
			zap.String("file", job.ObjectPath),
			zap.String("indexed", job.IndexedPath),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return r
	}

	e.logger.Debug(ctx, "indexed",
		zap.String("file", job.ObjectPath),
		zap.Duration("duration", r.Duration))
	return r
}
