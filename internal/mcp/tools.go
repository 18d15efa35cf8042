package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/objindex/internal/pipeline"
	"github.com/dshills/objindex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeInputNotFound      = -32001 // Input root does not exist
	ErrorCodeIndexingInProgress = -32002 // Another run is already active
	ErrorCodeScratchUnavailable = -32003 // Scratch directory unusable
	ErrorCodeLedgerDisabled     = -32004 // Server runs without a ledger
)

// maxReportedFailures bounds the failures included in a response.
const maxReportedFailures = 20

// handlePlanIndex handles the plan_index tool invocation
func (s *Server) handlePlanIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	cfg, err := s.runConfig(args)
	if err != nil {
		return nil, err
	}

	plan, err := s.runner.Plan(ctx, cfg)
	if err != nil {
		return nil, runError("planning failed", err)
	}

	pending := make([]string, 0, min(len(plan.Jobs), maxReportedFailures))
	for _, j := range plan.Jobs {
		if len(pending) == maxReportedFailures {
			break
		}
		pending = append(pending, j.ObjectPath)
	}

	response := map[string]interface{}{
		"projects":   plan.Stats.Projects,
		"candidates": plan.Stats.Candidates,
		"oversized":  plan.Stats.Oversized,
		"excluded":   plan.Stats.Excluded,
		"up_to_date": plan.Stats.UpToDate,
		"unmappable": plan.Stats.Unmappable,
		"planned":    plan.Stats.Planned,
		"pending":    pending,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRunIndex handles the run_index tool invocation
func (s *Server) handleRunIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	if s.runner.Running() {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}

	cfg, err := s.runConfig(args)
	if err != nil {
		return nil, err
	}
	if workers := getIntDefault(args, "workers", 0); workers != 0 {
		if workers < 1 {
			return nil, newMCPError(ErrorCodeInvalidParams, "workers must be at least 1", map[string]interface{}{
				"param": "workers",
				"value": workers,
			})
		}
		cfg.Workers = workers
	}

	summary, err := s.runner.Run(ctx, cfg, pipeline.Hooks{})
	if err != nil && summary == nil {
		return nil, runError("indexing failed", err)
	}

	failures := make([]map[string]interface{}, 0)
	for _, f := range summary.Failures {
		if len(failures) == maxReportedFailures {
			break
		}
		failures = append(failures, map[string]interface{}{
			"object":   f.Job.ObjectPath,
			"attempts": f.Attempts,
			"error":    errString(f.Err),
		})
	}

	response := map[string]interface{}{
		"run_id":       summary.RunID,
		"status":       string(summary.Status),
		"candidates":   summary.Plan.Candidates,
		"up_to_date":   summary.Plan.UpToDate,
		"oversized":    summary.Plan.Oversized,
		"planned":      summary.Plan.Planned,
		"completed":    summary.Completed,
		"failed":       summary.Failed,
		"undispatched": summary.Undispatched,
		"failures":     failures,
		"duration_ms":  summary.Duration.Milliseconds(),
	}
	if err != nil {
		response["error"] = err.Error()
	}
	if summary.Failed > len(failures) {
		response["failure_count"] = summary.Failed
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexStatus handles the index_status tool invocation
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if s.ledger == nil {
		return nil, newMCPError(ErrorCodeLedgerDisabled, "run ledger is disabled", nil)
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	runs, err := s.ledger.ListRuns(ctx, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list runs", map[string]interface{}{
			"error": err.Error(),
		})
	}

	items := make([]map[string]interface{}, 0, len(runs))
	for _, run := range runs {
		item := map[string]interface{}{
			"run_id":        run.ID,
			"status":        string(run.Status),
			"input_root":    run.InputRoot,
			"output_root":   run.OutputRoot,
			"logic_version": run.LogicVersion,
			"started_at":    run.StartedAt.Format(time.RFC3339),
			"candidates":    run.Candidates,
			"planned":       run.Planned,
			"completed":     run.Completed,
			"failed":        run.Failed,
		}
		if !run.FinishedAt.IsZero() {
			item["finished_at"] = run.FinishedAt.Format(time.RFC3339)
			item["duration_ms"] = run.Duration().Milliseconds()
		}
		if run.Error != "" {
			item["error"] = run.Error
		}
		if run.Failed > 0 {
			failed, err := s.ledger.ListJobs(ctx, run.ID, types.JobFailed)
			if err != nil {
				s.logger.Warn(ctx, "failed to list failed jobs", zap.String("run_id", run.ID), zap.Error(err))
			} else {
				objects := make([]string, 0, len(failed))
				for _, j := range failed {
					objects = append(objects, j.ObjectPath)
				}
				item["failed_objects"] = objects
			}
		}
		items = append(items, item)
	}

	response := map[string]interface{}{
		"running": s.runner.Running(),
		"runs":    items,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// runConfig builds the run configuration for a tool call from the server
// configuration and the call's roots.
func (s *Server) runConfig(args map[string]interface{}) (*types.RunConfig, error) {
	input, err := requirePath(args, "input_root")
	if err != nil {
		return nil, err
	}
	output, err := requirePath(args, "output_root")
	if err != nil {
		return nil, err
	}
	if err := validateInputRoot(input); err != nil {
		return nil, newMCPError(ErrorCodeInputNotFound, "invalid input_root", map[string]interface{}{
			"param":  "input_root",
			"reason": err.Error(),
		})
	}

	c := *s.config
	c.InputRoot = input
	c.OutputRoot = output
	c.Reversed = getBoolDefault(args, "reversed", s.config.Reversed)

	cfg, err := c.RunConfig()
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid run configuration", map[string]interface{}{
			"reason": err.Error(),
		})
	}
	return cfg, nil
}

// runError maps pipeline errors onto MCP errors.
func runError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	case errors.Is(err, types.ErrInputRootMissing):
		return newMCPError(ErrorCodeInputNotFound, message, data)
	case errors.Is(err, types.ErrScratchUnavailable):
		return newMCPError(ErrorCodeScratchUnavailable, message, data)
	case errors.Is(err, types.ErrInvalidConfig):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func requirePath(args map[string]interface{}, key string) (string, error) {
	path, ok := args[key].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	if !filepath.IsAbs(path) {
		return "", newMCPError(ErrorCodeInvalidParams, key+" must be absolute", map[string]interface{}{
			"param":  key,
			"reason": ErrPathNotAbsolute.Error(),
		})
	}
	return filepath.Clean(path), nil
}

// validateInputRoot checks that path is a readable directory
func validateInputRoot(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
