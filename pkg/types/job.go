package types

import "fmt"

// Fingerprint is a hex encoded digest over an object's content and the
// indexing logic version.
type Fingerprint string

// String returns the fingerprint as stored inside archives.
func (f Fingerprint) String() string {
	return string(f)
}

// JobState is the lifecycle state of a Job within one run.
type JobState string

const (
	JobPlanned    JobState = "planned"
	JobDispatched JobState = "dispatched"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Terminal reports whether no further transition is possible in this run.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s JobState) CanTransition(next JobState) bool {
	switch s {
	case JobPlanned:
		return next == JobDispatched
	case JobDispatched:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// Job is one object destined for one indexing invocation.
type Job struct {
	ObjectPath  string
	IndexedPath string
	Config      *RunConfig // shared, read-only
}

// Validate checks that the job is dispatchable.
func (j Job) Validate() error {
	if j.ObjectPath == "" {
		return fmt.Errorf("%w: job has no object path", ErrInvalidConfig)
	}
	if j.IndexedPath == "" {
		return fmt.Errorf("%w: job %s has no indexed path", ErrInvalidConfig, j.ObjectPath)
	}
	if j.Config == nil {
		return fmt.Errorf("%w: job %s has no run configuration", ErrInvalidConfig, j.ObjectPath)
	}
	return nil
}
