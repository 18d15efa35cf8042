package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/objindex/internal/config"
	"github.com/dshills/objindex/internal/storage"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	registerFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestFlagOverrides(t *testing.T) {
	t.Run("unset flags produce no overrides", func(t *testing.T) {
		overrides, err := flagOverrides(newFlagSet(t))
		require.NoError(t, err)
		assert.Empty(t, overrides)
	})

	t.Run("set flags map onto config keys", func(t *testing.T) {
		fs := newFlagSet(t,
			"--input", "/in",
			"-o", "/out",
			"--max-size-mb", "64",
			"-j", "3",
			"--reversed",
			"--exclude", ".dbg,.map",
			"--engine", "sh", "--engine", "-c", "--engine", "true",
			"--scratch-dir", "/scratch",
			"--log-level", "debug",
		)
		overrides, err := flagOverrides(fs)
		require.NoError(t, err)

		assert.Equal(t, map[string]any{
			"input_root":       "/in",
			"output_root":      "/out",
			"max_size_mb":      64.0,
			"workers":          3,
			"reversed":         true,
			"exclude_suffixes": []string{".dbg", ".map"},
			"engine":           []string{"sh", "-c", "true"},
			"scratch.dir":      "/scratch",
			"log.level":        "debug",
		}, overrides)
	})

	t.Run("ledger off", func(t *testing.T) {
		overrides, err := flagOverrides(newFlagSet(t, "--ledger", "off"))
		require.NoError(t, err)
		assert.Equal(t, "", overrides["ledger.path"])
	})

	t.Run("config flag is not a key", func(t *testing.T) {
		overrides, err := flagOverrides(newFlagSet(t, "--config", "/etc/objindex.yaml"))
		require.NoError(t, err)
		assert.Empty(t, overrides)
	})
}

func TestFlagKeysAreRegistered(t *testing.T) {
	fs := newFlagSet(t)
	for name := range flagKeys {
		assert.NotNil(t, fs.Lookup(name), "flag --%s", name)
	}
}

func TestFlagOverridesLoad(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("workers: 7\nmax_size_mb: 10\n"), 0644))

	fs := newFlagSet(t, "--config", cfgFile, "--workers", "2", "--ledger", "off")
	overrides, err := flagOverrides(fs)
	require.NoError(t, err)

	cfg, err := config.Load(cfgFile, overrides)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 10.0, cfg.MaxSizeMB)
	assert.Empty(t, cfg.Ledger.Path)
}

func TestFlagUsage(t *testing.T) {
	fs := newFlagSet(t)
	usage := fs.Lookup("reversed").Usage
	assert.Contains(t, usage, "projects")
	assert.NotContains(t, usage, "files")
}

func TestPlanHelp(t *testing.T) {
	assert.Contains(t, planCmd.Long, "create the output root")
	assert.NotContains(t, planCmd.Long, "Nothing is written to the output tree")
}

func TestFormatRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &storage.Run{
		ID:         "0123456789abcdef",
		InputRoot:  "/in",
		OutputRoot: "/out",
		StartedAt:  now.Add(-3 * time.Hour),
		FinishedAt: now.Add(-3*time.Hour + 90*time.Second),
		Planned:    1500,
		Completed:  1499,
		Failed:     1,
		Status:     storage.RunPartial,
	}

	line := formatRun(run, now)
	assert.Contains(t, line, "01234567 ")
	assert.Contains(t, line, "3 hours ago")
	assert.Contains(t, line, "(1m30s)")
	assert.Contains(t, line, "planned 1,500, indexed 1,499, failed 1")

	run.FinishedAt = time.Time{}
	assert.Contains(t, formatRun(run, now), "(running)")
}
