// Package types provides shared type definitions for objindex.
//
// The types here cross component boundaries: the planner produces Jobs, the
// executor dispatches them and the indexing collaborator consumes them.
//
// # Core Types
//
// Job is one unit of planned work, an object destined for one indexing call:
//
//	job := types.Job{
//	    ObjectPath:  "/data/objects/proj1/a.bin",
//	    IndexedPath: "/data/indexed/proj1/a.bin.zip",
//	    Config:      runCfg,
//	}
//
// RunConfig is the validated, read-only configuration shared by every job of
// a run. Components receive it at construction and never mutate it.
//
// Fingerprint binds an object's content to the version of the indexing logic
// that produced its archive:
//
//	fp := types.Fingerprint("9f86d081884c7d65...")
//	if fp == recorded {
//	    // archive is current, nothing to do
//	}
//
// # Job Lifecycle
//
// A job moves through planned, dispatched and then completed or failed. There
// is no way back to planned within a run; a failed job is planned again by
// the next run because its archive still fails the fingerprint check.
package types
