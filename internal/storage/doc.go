// Package storage provides the SQLite run ledger.
//
// The ledger records the history of runs: when each run started and
// finished, what it planned and how every dispatched job ended. It is
// history only. Whether an object needs indexing is always decided by the
// fingerprint embedded in its archive, never by the ledger, so deleting the
// database loses nothing but history.
//
// # Database Schema
//
// Tables:
//   - runs: one row per run (roots, totals, status, logic version)
//   - jobs: one row per planned object per run, unique on (run_id, object_path)
//   - schema_version: applied migrations
//
// # Basic Usage
//
//	ledger, err := storage.NewSQLiteStorage("~/.objindex/ledger.db")
//	if err != nil {
//	    return err
//	}
//	defer ledger.Close()
//
//	run := &storage.Run{InputRoot: in, OutputRoot: out}
//	if err := ledger.CreateRun(ctx, run); err != nil {
//	    return err
//	}
//
// # Transactions
//
// Planned jobs are recorded in one transaction:
//
//	tx, err := ledger.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	for _, job := range plan.Jobs {
//	    if err := tx.UpsertJob(ctx, storage.NewJobRecord(run.ID, job)); err != nil {
//	        return err
//	    }
//	}
//	return tx.Commit()
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags sqlite_cgo switches to github.com/mattn/go-sqlite3.
package storage
