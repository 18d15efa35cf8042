package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/objindex/internal/executor"
	"github.com/dshills/objindex/internal/storage"
	"github.com/dshills/objindex/pkg/types"
)

// Ledger write failures are logged and never fail a run.

func (r *Runner) createRun(ctx context.Context, run *storage.Run) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.CreateRun(ctx, run); err != nil {
		r.logger.Warn(ctx, "ledger: failed to record run", zap.Error(err))
	}
}

func (r *Runner) finishRun(ctx context.Context, run *storage.Run, status storage.RunStatus, runErr error) {
	if r.ledger == nil {
		return
	}
	run.Status = status
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// Recorded even when ctx is cancelled.
	if err := r.ledger.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn(ctx, "ledger: failed to finish run", zap.Error(err))
	}
}

// recordAbort records a run that failed its preconditions.
func (r *Runner) recordAbort(ctx context.Context, run *storage.Run, runErr error) {
	r.createRun(ctx, run)
	r.finishRun(ctx, run, storage.RunAborted, runErr)
}

// recordPlanned inserts every planned job in one transaction.
func (r *Runner) recordPlanned(ctx context.Context, runID string, jobs []types.Job) {
	if r.ledger == nil || len(jobs) == 0 {
		return
	}

	tx, err := r.ledger.BeginTx(ctx)
	if err != nil {
		r.logger.Warn(ctx, "ledger: failed to begin transaction", zap.Error(err))
		return
	}
	defer func() { _ = tx.Rollback() }()

	for _, job := range jobs {
		if err := tx.UpsertJob(ctx, storage.NewJobRecord(runID, job)); err != nil {
			r.logger.Warn(ctx, "ledger: failed to record planned jobs", zap.Error(err))
			return
		}
	}
	if err := tx.Commit(); err != nil {
		r.logger.Warn(ctx, "ledger: failed to commit planned jobs", zap.Error(err))
	}
}

// jobStates tracks the state of every job of one run. Dispatch and results
// are reported from different goroutines.
type jobStates struct {
	mu     sync.Mutex
	states map[string]types.JobState
}

func newJobStates(jobs []types.Job) *jobStates {
	js := &jobStates{states: make(map[string]types.JobState, len(jobs))}
	for _, j := range jobs {
		js.states[j.ObjectPath] = types.JobPlanned
	}
	return js
}

// advance moves the job at path to next if the transition is legal.
func (js *jobStates) advance(path string, next types.JobState) (types.JobState, bool) {
	js.mu.Lock()
	defer js.mu.Unlock()
	cur, ok := js.states[path]
	if !ok || !cur.CanTransition(next) {
		return cur, false
	}
	js.states[path] = next
	return cur, true
}

// transition advances the job and reports whether its ledger row may be
// written.
func (r *Runner) transition(ctx context.Context, js *jobStates, job types.Job, next types.JobState) bool {
	if from, ok := js.advance(job.ObjectPath, next); !ok {
		r.logger.Warn(ctx, "ledger: illegal job transition",
			zap.String("file", job.ObjectPath),
			zap.String("from", string(from)),
			zap.String("to", string(next)))
		return false
	}
	return true
}

// recordDispatch marks a job dispatched before it starts.
func (r *Runner) recordDispatch(ctx context.Context, runID string, js *jobStates, job types.Job) {
	if !r.transition(ctx, js, job, types.JobDispatched) || r.ledger == nil {
		return
	}
	rec := storage.NewJobRecord(runID, job)
	rec.State = types.JobDispatched
	if err := r.ledger.UpsertJob(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn(ctx, "ledger: failed to record job", zap.String("file", job.ObjectPath), zap.Error(err))
	}
}

func (r *Runner) recordResult(ctx context.Context, runID string, js *jobStates, jr executor.JobResult) {
	if r.metrics != nil {
		r.metrics.RecordJob(jr.State == types.JobFailed, jr.Duration)
	}
	if !r.transition(ctx, js, jr.Job, jr.State) || r.ledger == nil {
		return
	}

	rec := storage.NewJobRecord(runID, jr.Job)
	rec.State = jr.State
	rec.Attempts = jr.Attempts
	rec.DurationMs = jr.Duration.Milliseconds()
	if jr.Err != nil {
		rec.Error = jr.Err.Error()
	}
	if err := r.ledger.UpsertJob(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn(ctx, "ledger: failed to record job", zap.String("file", jr.Job.ObjectPath), zap.Error(err))
	}
}
