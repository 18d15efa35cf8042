package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/objindex/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func createTestRun(t *testing.T, s Storage) *Run {
	t.Helper()
	run := &Run{InputRoot: "/in", OutputRoot: "/out", LogicVersion: "archive/1"}
	require.NoError(t, s.CreateRun(context.Background(), run))
	return run
}

func TestNewSQLiteStorage_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	run := createTestRun(t, s)
	require.NoError(t, s.Close())

	// reopen applies no migrations twice and keeps data
	s, err = NewSQLiteStorage(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}

func TestCreateRun(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	run := createTestRun(t, storage)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, RunRunning, run.Status)
	assert.False(t, run.StartedAt.IsZero())

	got, err := storage.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "/in", got.InputRoot)
	assert.Equal(t, "/out", got.OutputRoot)
	assert.Equal(t, "archive/1", got.LogicVersion)
	assert.Equal(t, RunRunning, got.Status)
	assert.True(t, got.FinishedAt.IsZero())
	assert.Zero(t, got.Duration())

	// duplicate id
	err = storage.CreateRun(ctx, &Run{ID: run.ID, InputRoot: "/x", OutputRoot: "/y"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetRun_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	_, err := storage.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishRun(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	run := createTestRun(t, storage)

	run.Candidates = 10
	run.Planned = 4
	run.Completed = 3
	run.Failed = 1
	run.Status = RunPartial
	run.Error = "1 job failed"
	require.NoError(t, storage.FinishRun(ctx, run))

	got, err := storage.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Candidates)
	assert.Equal(t, 4, got.Planned)
	assert.Equal(t, 3, got.Completed)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, RunPartial, got.Status)
	assert.Equal(t, "1 job failed", got.Error)
	assert.False(t, got.FinishedAt.IsZero())
	assert.GreaterOrEqual(t, got.Duration(), time.Duration(0))

	err = storage.FinishRun(ctx, &Run{ID: "missing", Status: RunAborted})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		run := &Run{InputRoot: "/in", OutputRoot: "/out", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, storage.CreateRun(ctx, run))
		ids = append(ids, run.ID)
	}

	runs, err := storage.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[4], runs[0].ID, "newest first")
	assert.Equal(t, ids[2], runs[2].ID)

	all, err := storage.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestUpsertJob(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	run := createTestRun(t, storage)

	job := NewJobRecord(run.ID, types.Job{ObjectPath: "/in/p/a.bin", IndexedPath: "/out/p/a.bin.zip"})
	require.NoError(t, storage.UpsertJob(ctx, job))
	assert.Greater(t, job.ID, int64(0))
	firstID := job.ID

	job.State = types.JobFailed
	job.Attempts = 2
	job.Error = "engine crashed"
	job.DurationMs = 1500
	require.NoError(t, storage.UpsertJob(ctx, job))
	assert.Equal(t, firstID, job.ID, "upsert keeps the row")

	jobs, err := storage.ListJobs(ctx, run.ID, "")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.JobFailed, jobs[0].State)
	assert.Equal(t, 2, jobs[0].Attempts)
	assert.Equal(t, "engine crashed", jobs[0].Error)
	assert.Equal(t, int64(1500), jobs[0].DurationMs)
	assert.Equal(t, "/out/p/a.bin.zip", jobs[0].IndexedPath)

	// unknown run violates the foreign key
	err = storage.UpsertJob(ctx, &JobRecord{RunID: "missing", ObjectPath: "/x", IndexedPath: "/y"})
	assert.Error(t, err)
}

func TestListJobs_ByState(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	run := createTestRun(t, storage)
	other := createTestRun(t, storage)

	states := []types.JobState{types.JobCompleted, types.JobFailed, types.JobCompleted, types.JobPlanned}
	for i, st := range states {
		require.NoError(t, storage.UpsertJob(ctx, &JobRecord{
			RunID:       run.ID,
			ObjectPath:  filepath.Join("/in/p", string(rune('a'+i))),
			IndexedPath: "/out",
			State:       st,
		}))
	}
	require.NoError(t, storage.UpsertJob(ctx, &JobRecord{RunID: other.ID, ObjectPath: "/in/p/a", IndexedPath: "/out"}))

	completed, err := storage.ListJobs(ctx, run.ID, types.JobCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	failed, err := storage.ListJobs(ctx, run.ID, types.JobFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "/in/p/b", failed[0].ObjectPath)

	counts, err := storage.CountJobs(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[types.JobState]int{
		types.JobCompleted: 2,
		types.JobFailed:    1,
		types.JobPlanned:   1,
	}, counts)

	none, err := storage.ListJobs(ctx, "missing", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransaction(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	run := createTestRun(t, storage)

	t.Run("commit", func(t *testing.T) {
		tx, err := storage.BeginTx(ctx)
		require.NoError(t, err)
		for _, p := range []string{"/in/p/1", "/in/p/2"} {
			require.NoError(t, tx.UpsertJob(ctx, &JobRecord{RunID: run.ID, ObjectPath: p, IndexedPath: p + ".zip"}))
		}
		require.NoError(t, tx.Commit())

		jobs, err := storage.ListJobs(ctx, run.ID, types.JobPlanned)
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})

	t.Run("rollback", func(t *testing.T) {
		tx, err := storage.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.UpsertJob(ctx, &JobRecord{RunID: run.ID, ObjectPath: "/in/p/3", IndexedPath: "/x"}))
		require.NoError(t, tx.Rollback())

		jobs, err := storage.ListJobs(ctx, run.ID, "")
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})

	t.Run("nested", func(t *testing.T) {
		tx, err := storage.BeginTx(ctx)
		require.NoError(t, err)
		defer tx.Rollback()
		_, err = tx.BeginTx(ctx)
		assert.Error(t, err)
	})
}
