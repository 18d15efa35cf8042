// Package pipeline runs the incremental indexing pipeline end to end.
//
// A run checks its preconditions, plans, executes and records:
//
//  1. Provision the scratch directory and verify free space
//  2. Create the output root and resolve both roots
//  3. Plan: filter candidates, map paths, skip objects whose archive
//     already carries a matching fingerprint
//  4. Execute the plan on the bounded worker pool
//  5. Record the run in the ledger and write metrics
//
// Failing preconditions abort the run before anything is planned. Failing
// jobs do not abort it; they are reported and, because their archives are
// missing or stale, planned again by the next run.
//
// # Usage
//
//	runner := pipeline.NewRunner(pipeline.Options{
//	    Ledger:  ledger,
//	    Metrics: metrics.New(),
//	    Logger:  logger,
//	})
//	summary, err := runner.Run(ctx, runCfg, pipeline.Hooks{
//	    OnProgress: func(p executor.Progress) { bar.Set(p.Done) },
//	})
//
// Runner is safe for concurrent use; concurrent calls to Run fail with
// ErrRunInProgress instead of waiting.
package pipeline
