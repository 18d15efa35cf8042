package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/objindex/internal/config"
	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/internal/pipeline"
	"github.com/dshills/objindex/internal/storage"
	"github.com/dshills/objindex/pkg/types"
)

type testEnv struct {
	server *Server
	input  string
	output string
}

func setupServer(t *testing.T, withLedger bool) *testEnv {
	t.Helper()
	base := t.TempDir()
	input := filepath.Join(base, "in")
	output := filepath.Join(base, "out")
	for _, name := range []string{"proj1/a.bin", "proj2/b.bin"} {
		path := filepath.Join(input, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("object "+name), 0644))
	}

	cfg := &config.Config{
		MaxSizeMB:       1,
		Workers:         2,
		ExcludeSuffixes: []string{".elf"},
		MaxAttempts:     1,
		IndexSuffix:     types.DefaultIndexSuffix,
		Scratch:         config.ScratchConfig{Dir: filepath.Join(base, "scratch"), Multiplier: 1},
		Log:             *logging.NewDefaultConfig(),
	}

	var ledger storage.Storage
	if withLedger {
		s, err := storage.NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		ledger = s
	}

	runner := pipeline.NewRunner(pipeline.Options{Ledger: ledger})
	server, err := NewServer(cfg, runner, ledger, nil, "1.2.3")
	require.NoError(t, err)
	return &testEnv{server: server, input: input, output: output}
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

// resultJSON decodes the text content of a tool result.
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	var text string
	switch c := result.Content[0].(type) {
	case mcp.TextContent:
		text = c.Text
	case *mcp.TextContent:
		text = c.Text
	default:
		t.Fatalf("unexpected content type %T", c)
	}

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil, nil, nil, "")
	assert.Error(t, err)

	env := setupServer(t, false)
	assert.NotNil(t, env.server.mcp)
	assert.Nil(t, env.server.ledger)
	assert.Equal(t, "1.2.3", env.server.version)

	t.Run("default version", func(t *testing.T) {
		s, err := NewServer(env.server.config, env.server.runner, nil, nil, "")
		require.NoError(t, err)
		assert.Equal(t, DefaultVersion, s.version)
	})
}

func TestHandlePlanIndex(t *testing.T) {
	ctx := context.Background()
	env := setupServer(t, false)

	result, err := env.server.handlePlanIndex(ctx, callRequest(map[string]interface{}{
		"input_root":  env.input,
		"output_root": env.output,
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.EqualValues(t, 2, out["candidates"])
	assert.EqualValues(t, 2, out["planned"])
	assert.EqualValues(t, 0, out["up_to_date"])
	assert.Len(t, out["pending"], 2)
}

func TestHandleRunIndex(t *testing.T) {
	ctx := context.Background()
	env := setupServer(t, true)
	args := map[string]interface{}{
		"input_root":  env.input,
		"output_root": env.output,
		"workers":     float64(1),
	}

	result, err := env.server.handleRunIndex(ctx, callRequest(args))
	require.NoError(t, err)
	out := resultJSON(t, result)
	assert.Equal(t, string(storage.RunCompleted), out["status"])
	assert.EqualValues(t, 2, out["completed"])
	assert.EqualValues(t, 0, out["failed"])
	assert.NotEmpty(t, out["run_id"])
	assert.FileExists(t, filepath.Join(env.output, "proj1", "a.bin"+types.DefaultIndexSuffix))

	t.Run("second run is a no-op", func(t *testing.T) {
		result, err := env.server.handleRunIndex(ctx, callRequest(args))
		require.NoError(t, err)
		out := resultJSON(t, result)
		assert.EqualValues(t, 0, out["planned"])
		assert.EqualValues(t, 2, out["up_to_date"])
	})

	t.Run("status lists runs", func(t *testing.T) {
		result, err := env.server.handleIndexStatus(ctx, callRequest(map[string]interface{}{"limit": float64(5)}))
		require.NoError(t, err)
		out := resultJSON(t, result)
		assert.Equal(t, false, out["running"])
		runs, ok := out["runs"].([]interface{})
		require.True(t, ok)
		require.Len(t, runs, 2)
		latest := runs[0].(map[string]interface{})
		assert.Equal(t, string(storage.RunCompleted), latest["status"])
		assert.Equal(t, env.input, latest["input_root"])
	})
}

func TestHandleRunIndex_InvalidParams(t *testing.T) {
	ctx := context.Background()
	env := setupServer(t, false)

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{
			name: "missing input root",
			args: map[string]interface{}{"output_root": env.output},
			code: ErrorCodeInvalidParams,
		},
		{
			name: "relative output root",
			args: map[string]interface{}{"input_root": env.input, "output_root": "out"},
			code: ErrorCodeInvalidParams,
		},
		{
			name: "input root not found",
			args: map[string]interface{}{"input_root": filepath.Join(env.input, "nope"), "output_root": env.output},
			code: ErrorCodeInputNotFound,
		},
		{
			name: "bad workers",
			args: map[string]interface{}{"input_root": env.input, "output_root": env.output, "workers": float64(-2)},
			code: ErrorCodeInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.server.handleRunIndex(ctx, callRequest(tt.args))
			requireMCPError(t, err, tt.code)
		})
	}

	_, err := env.server.handleRunIndex(ctx, mcp.CallToolRequest{})
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleIndexStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("ledger disabled", func(t *testing.T) {
		env := setupServer(t, false)
		_, err := env.server.handleIndexStatus(ctx, callRequest(nil))
		requireMCPError(t, err, ErrorCodeLedgerDisabled)
	})

	t.Run("limit out of range", func(t *testing.T) {
		env := setupServer(t, true)
		_, err := env.server.handleIndexStatus(ctx, callRequest(map[string]interface{}{"limit": float64(500)}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})

	t.Run("empty history", func(t *testing.T) {
		env := setupServer(t, true)
		result, err := env.server.handleIndexStatus(ctx, callRequest(nil))
		require.NoError(t, err)
		out := resultJSON(t, result)
		assert.Empty(t, out["runs"])
	})
}

func TestRunError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{pipeline.ErrRunInProgress, ErrorCodeIndexingInProgress},
		{fmt.Errorf("check: %w", types.ErrInputRootMissing), ErrorCodeInputNotFound},
		{fmt.Errorf("check: %w", types.ErrScratchUnavailable), ErrorCodeScratchUnavailable},
		{fmt.Errorf("check: %w", types.ErrInvalidConfig), ErrorCodeInvalidParams},
		{errors.New("boom"), ErrorCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			requireMCPError(t, runError("failed", tt.err), tt.code)
		})
	}
}

func TestGetIntDefault(t *testing.T) {
	args := map[string]interface{}{"a": float64(3), "b": 4, "c": "five"}
	assert.Equal(t, 3, getIntDefault(args, "a", 0))
	assert.Equal(t, 4, getIntDefault(args, "b", 0))
	assert.Equal(t, 7, getIntDefault(args, "c", 7))
	assert.Equal(t, 9, getIntDefault(nil, "d", 9))
}
