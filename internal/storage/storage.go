package storage

import (
	"context"
	"time"

	"github.com/dshills/objindex/pkg/types"
)

// Storage is the run ledger.
type Storage interface {
	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// Job operations
	UpsertJob(ctx context.Context, job *JobRecord) error
	ListJobs(ctx context.Context, runID string, state types.JobState) ([]*JobRecord, error)
	CountJobs(ctx context.Context, runID string) (map[types.JobState]int, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed" // every dispatched job succeeded
	RunPartial   RunStatus = "partial"   // finished with failed jobs
	RunAborted   RunStatus = "aborted"   // cancelled or fatal error
)

// Run is one execution of the pipeline.
type Run struct {
	ID           string
	InputRoot    string
	OutputRoot   string
	LogicVersion string
	StartedAt    time.Time
	FinishedAt   time.Time // zero while running
	Candidates   int
	Planned      int
	Completed    int
	Failed       int
	Status       RunStatus
	Error        string
}

// Duration returns the wall time of a finished run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// JobRecord is the ledger row for one job of one run.
type JobRecord struct {
	ID          int64
	RunID       string
	ObjectPath  string
	IndexedPath string
	State       types.JobState
	Attempts    int
	Error       string
	DurationMs  int64
	UpdatedAt   time.Time
}

// NewJobRecord returns the planned record for job.
func NewJobRecord(runID string, job types.Job) *JobRecord {
	return &JobRecord{
		RunID:       runID,
		ObjectPath:  job.ObjectPath,
		IndexedPath: job.IndexedPath,
		State:       types.JobPlanned,
	}
}
