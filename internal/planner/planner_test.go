package planner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/objindex/internal/fingerprint"
	"github.com/dshills/objindex/internal/indexer"
	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/internal/pathmap"
	"github.com/dshills/objindex/internal/scanner"
	"github.com/dshills/objindex/pkg/types"
)

func createTestFile(t testing.TB, dir, name string, content []byte) string {
	t.Helper()

	filePath := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
	require.NoError(t, os.WriteFile(filePath, content, 0644))
	return filePath
}

type fixture struct {
	cfg     *types.RunConfig
	hasher  *fingerprint.Hasher
	mapper  *pathmap.Mapper
	logger  *logging.TestLogger
	planner *Planner
}

func newFixture(t testing.TB, reversed bool) *fixture {
	t.Helper()

	base := t.TempDir()
	cfg := &types.RunConfig{
		InputRoot:   filepath.Join(base, "in"),
		OutputRoot:  filepath.Join(base, "out"),
		MaxSizeMB:   1,
		Workers:     2,
		Reversed:    reversed,
		MaxAttempts: 1,
		IndexSuffix: types.DefaultIndexSuffix,
	}
	require.NoError(t, os.MkdirAll(cfg.InputRoot, 0755))

	mapper, err := pathmap.New(cfg.InputRoot, cfg.OutputRoot, cfg.IndexSuffix)
	require.NoError(t, err)
	hasher, err := fingerprint.NewHasher(indexer.ArchiveLogicVersion, 64)
	require.NoError(t, err)

	logger := logging.NewTestLogger()
	filter := scanner.New(cfg, logger.Logger)
	return &fixture{
		cfg:     cfg,
		hasher:  hasher,
		mapper:  mapper,
		logger:  logger,
		planner: New(cfg, filter, mapper, hasher.Fingerprint, logger.Logger),
	}
}

func objectPaths(jobs []types.Job) []string {
	paths := make([]string, len(jobs))
	for i, j := range jobs {
		paths[i] = j.ObjectPath
	}
	return paths
}

func TestPlan_Scenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	a := createTestFile(t, f.cfg.InputRoot, "proj1/a.bin", []byte("a"))
	createTestFile(t, f.cfg.InputRoot, "proj1/a.bin.id0", []byte("sidecar"))
	b := createTestFile(t, f.cfg.InputRoot, "proj2/b.bin", []byte("b"))

	plan, err := f.planner.Plan(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{a, b}, objectPaths(plan.Jobs))
	assert.Equal(t, filepath.Join(f.mapper.OutputRoot(), "proj1", "a.bin.zip"), plan.Jobs[0].IndexedPath)
	assert.Equal(t, filepath.Join(f.mapper.OutputRoot(), "proj2", "b.bin.zip"), plan.Jobs[1].IndexedPath)
	for _, j := range plan.Jobs {
		assert.Same(t, f.cfg, j.Config)
		assert.NoError(t, j.Validate())
	}

	assert.Equal(t, Stats{Projects: 2, Candidates: 2, Excluded: 1, Planned: 2}, plan.Stats)

	f.logger.AssertLogged(t, zapcore.InfoLevel, "planning complete")
	entries := f.logger.FilterMessage("planning complete").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 2, entries[0].ContextMap()["candidates"])
	assert.EqualValues(t, 2, entries[0].ContextMap()["planned"])
}

func TestPlan_SkipsValidArchives(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	a := createTestFile(t, f.cfg.InputRoot, "proj1/a.bin", []byte("a"))
	b := createTestFile(t, f.cfg.InputRoot, "proj2/b.bin", []byte("b"))

	aOut, err := f.mapper.Map(a)
	require.NoError(t, err)
	idx := indexer.NewArchiveIndexer(f.hasher.Fingerprint, nil)
	require.NoError(t, idx.IndexObject(ctx, types.Job{ObjectPath: a, IndexedPath: aOut, Config: f.cfg}))

	plan, err := f.planner.Plan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, objectPaths(plan.Jobs))
	assert.Equal(t, 1, plan.Stats.UpToDate)
	assert.Equal(t, 2, plan.Stats.Candidates)

	t.Run("content change replans", func(t *testing.T) {
		require.NoError(t, os.WriteFile(a, []byte("changed"), 0644))

		plan, err := f.planner.Plan(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{a, b}, objectPaths(plan.Jobs))
	})
}

func TestPlan_Oversized(t *testing.T) {
	f := newFixture(t, false)
	createTestFile(t, f.cfg.InputRoot, "proj1/big.bin", make([]byte, 2<<20))
	small := createTestFile(t, f.cfg.InputRoot, "proj1/small.bin", []byte("s"))

	plan, err := f.planner.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{small}, objectPaths(plan.Jobs))
	assert.Equal(t, 1, plan.Stats.Oversized)
	f.logger.AssertLogged(t, zapcore.WarnLevel, "dropping oversized object")
}

func TestPlan_ReversedIsPermutation(t *testing.T) {
	ctx := context.Background()
	fwd := newFixture(t, false)
	createTestFile(t, fwd.cfg.InputRoot, "p1/x.bin", []byte("x"))
	createTestFile(t, fwd.cfg.InputRoot, "p2/y.bin", []byte("y"))
	createTestFile(t, fwd.cfg.InputRoot, "p3/z.bin", []byte("z"))

	rev := newFixture(t, true)
	rev.cfg.InputRoot = fwd.cfg.InputRoot
	mapper, err := pathmap.New(fwd.cfg.InputRoot, rev.cfg.OutputRoot, types.DefaultIndexSuffix)
	require.NoError(t, err)
	rev.planner = New(rev.cfg, scanner.New(rev.cfg, nil), mapper, rev.hasher.Fingerprint, nil)

	p1, err := fwd.planner.Plan(ctx)
	require.NoError(t, err)
	p2, err := rev.planner.Plan(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, objectPaths(p1.Jobs), objectPaths(p2.Jobs))
	assert.Equal(t, filepath.Join(fwd.cfg.InputRoot, "p3", "z.bin"), p2.Jobs[0].ObjectPath)
}

func TestPlan_MissingRoot(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, os.RemoveAll(f.cfg.InputRoot))

	_, err := f.planner.Plan(context.Background())
	assert.ErrorIs(t, err, types.ErrInputRootMissing)
}

func TestPlan_Cancelled(t *testing.T) {
	f := newFixture(t, false)
	createTestFile(t, f.cfg.InputRoot, "proj1/a.bin", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.planner.Plan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlan_EmptyRoot(t *testing.T) {
	f := newFixture(t, false)

	plan, err := f.planner.Plan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Jobs)
	assert.Equal(t, Stats{}, plan.Stats)
}
