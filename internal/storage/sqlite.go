package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/objindex/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// DefaultListLimit bounds ListRuns when no limit is given.
const DefaultListLimit = 20

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL lets status read while a run is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens (creating if needed) the ledger at dbPath and
// applies pending migrations. ":memory:" opens a private in-memory ledger.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// Run operations

const runColumns = `id, input_root, output_root, logic_version, started_at, finished_at,
	candidates, planned, completed, failed, status, error`

func createRun(ctx context.Context, q querier, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO runs (id, input_root, output_root, logic_version, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.InputRoot, run.OutputRoot, run.LogicVersion, run.StartedAt, string(run.Status))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %s: %w", run.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func finishRun(ctx context.Context, q querier, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}

	res, err := q.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, candidates = ?, planned = ?, completed = ?, failed = ?, status = ?, error = ?
		WHERE id = ?
	`, run.FinishedAt, run.Candidates, run.Planned, run.Completed, run.Failed,
		string(run.Status), nullString(run.Error), run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var (
		run      Run
		finished sql.NullTime
		status   string
		errText  sql.NullString
	)
	err := row.Scan(&run.ID, &run.InputRoot, &run.OutputRoot, &run.LogicVersion, &run.StartedAt, &finished,
		&run.Candidates, &run.Planned, &run.Completed, &run.Failed, &status, &errText)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	run.Status = RunStatus(status)
	run.Error = errText.String
	return &run, nil
}

func getRun(ctx context.Context, q querier, id string) (*Run, error) {
	row := q.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func listRuns(ctx context.Context, q querier, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := q.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Job operations

func upsertJob(ctx context.Context, q querier, job *JobRecord) error {
	if job.State == "" {
		job.State = types.JobPlanned
	}
	job.UpdatedAt = time.Now().UTC()

	err := q.QueryRowContext(ctx, `
		INSERT INTO jobs (run_id, object_path, indexed_path, state, attempts, error, duration_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, object_path) DO UPDATE SET
			indexed_path = excluded.indexed_path,
			state = excluded.state,
			attempts = excluded.attempts,
			error = excluded.error,
			duration_ms = excluded.duration_ms,
			updated_at = excluded.updated_at
		RETURNING id
	`, job.RunID, job.ObjectPath, job.IndexedPath, string(job.State), job.Attempts,
		nullString(job.Error), job.DurationMs, job.UpdatedAt).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert job %s: %w", job.ObjectPath, err)
	}
	return nil
}

func listJobs(ctx context.Context, q querier, runID string, state types.JobState) ([]*JobRecord, error) {
	query := `SELECT id, run_id, object_path, indexed_path, state, attempts, error, duration_ms, updated_at
		FROM jobs WHERE run_id = ?`
	args := []any{runID}
	if state != "" {
		query += " AND state = ?"
		args = append(args, string(state))
	}
	query += " ORDER BY id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*JobRecord, 0)
	for rows.Next() {
		var (
			j       JobRecord
			st      string
			errText sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.RunID, &j.ObjectPath, &j.IndexedPath, &st, &j.Attempts,
			&errText, &j.DurationMs, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		j.State = types.JobState(st)
		j.Error = errText.String
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func countJobs(ctx context.Context, q querier, runID string) (map[types.JobState]int, error) {
	rows, err := q.QueryContext(ctx, "SELECT state, COUNT(*) FROM jobs WHERE run_id = ? GROUP BY state", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.JobState]int)
	for rows.Next() {
		var (
			st string
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[types.JobState(st)] = n
	}
	return counts, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// SQLiteStorage delegates to the shared implementations with the DB.

func (s *SQLiteStorage) CreateRun(ctx context.Context, run *Run) error {
	return createRun(ctx, s.db, run)
}

func (s *SQLiteStorage) FinishRun(ctx context.Context, run *Run) error {
	return finishRun(ctx, s.db, run)
}

func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*Run, error) {
	return getRun(ctx, s.db, id)
}

func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	return listRuns(ctx, s.db, limit)
}

func (s *SQLiteStorage) UpsertJob(ctx context.Context, job *JobRecord) error {
	return upsertJob(ctx, s.db, job)
}

func (s *SQLiteStorage) ListJobs(ctx context.Context, runID string, state types.JobState) ([]*JobRecord, error) {
	return listJobs(ctx, s.db, runID, state)
}

func (s *SQLiteStorage) CountJobs(ctx context.Context, runID string) (map[types.JobState]int, error) {
	return countJobs(ctx, s.db, runID)
}

// sqliteTx delegates to the shared implementations with the transaction.

func (t *sqliteTx) CreateRun(ctx context.Context, run *Run) error {
	return createRun(ctx, t.tx, run)
}

func (t *sqliteTx) FinishRun(ctx context.Context, run *Run) error {
	return finishRun(ctx, t.tx, run)
}

func (t *sqliteTx) GetRun(ctx context.Context, id string) (*Run, error) {
	return getRun(ctx, t.tx, id)
}

func (t *sqliteTx) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	return listRuns(ctx, t.tx, limit)
}

func (t *sqliteTx) UpsertJob(ctx context.Context, job *JobRecord) error {
	return upsertJob(ctx, t.tx, job)
}

func (t *sqliteTx) ListJobs(ctx context.Context, runID string, state types.JobState) ([]*JobRecord, error) {
	return listJobs(ctx, t.tx, runID, state)
}

func (t *sqliteTx) CountJobs(ctx context.Context, runID string) (map[types.JobState]int, error) {
	return countJobs(ctx, t.tx, runID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
