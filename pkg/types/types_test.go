package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRunConfig() *RunConfig {
	return &RunConfig{
		InputRoot:         "/data/objects",
		OutputRoot:        "/data/indexed",
		MaxSizeMB:         500,
		Workers:           4,
		ScratchMultiplier: 2,
		MaxAttempts:       1,
		IndexSuffix:       DefaultIndexSuffix,
	}
}

func TestJobStateTransitions(t *testing.T) {
	tests := []struct {
		from, to JobState
		legal    bool
	}{
		{JobPlanned, JobDispatched, true},
		{JobPlanned, JobCompleted, false},
		{JobDispatched, JobCompleted, true},
		{JobDispatched, JobFailed, true},
		{JobDispatched, JobPlanned, false},
		{JobFailed, JobPlanned, false},
		{JobCompleted, JobDispatched, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.legal, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.False(t, JobDispatched.Terminal())
}

func TestJobValidate(t *testing.T) {
	cfg := validRunConfig()

	require.NoError(t, Job{ObjectPath: "/a", IndexedPath: "/b.zip", Config: cfg}.Validate())

	err := Job{IndexedPath: "/b.zip", Config: cfg}.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = Job{ObjectPath: "/a", Config: cfg}.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = Job{ObjectPath: "/a", IndexedPath: "/b.zip"}.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunConfigValidate(t *testing.T) {
	require.NoError(t, validRunConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"missing input", func(c *RunConfig) { c.InputRoot = "" }},
		{"missing output", func(c *RunConfig) { c.OutputRoot = "" }},
		{"same roots", func(c *RunConfig) { c.OutputRoot = c.InputRoot + "/" }},
		{"zero size", func(c *RunConfig) { c.MaxSizeMB = 0 }},
		{"zero workers", func(c *RunConfig) { c.Workers = 0 }},
		{"negative multiplier", func(c *RunConfig) { c.ScratchMultiplier = -1 }},
		{"zero attempts", func(c *RunConfig) { c.MaxAttempts = 0 }},
		{"no suffix", func(c *RunConfig) { c.IndexSuffix = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validRunConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestRunConfigScratchBytes(t *testing.T) {
	cfg := validRunConfig()
	cfg.MaxSizeMB = 10
	cfg.Workers = 3
	cfg.ScratchMultiplier = 2

	assert.Equal(t, uint64(60<<20), cfg.ScratchBytes())

	cfg.ScratchMultiplier = 0
	assert.Zero(t, cfg.ScratchBytes())
}

func TestPathMappingError(t *testing.T) {
	var err error = &PathMappingError{Path: "/elsewhere/x", Root: "/data/objects"}

	var pmErr *PathMappingError
	require.True(t, errors.As(err, &pmErr))
	assert.Equal(t, "/elsewhere/x", pmErr.Path)
	assert.Contains(t, err.Error(), "/data/objects")
}
