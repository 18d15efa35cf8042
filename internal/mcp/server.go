package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/objindex/internal/config"
	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/internal/pipeline"
	"github.com/dshills/objindex/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "objindex"
	// DefaultVersion is reported when the binary carries no version
	DefaultVersion = "dev"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	runner  *pipeline.Runner
	ledger  storage.Storage // nil when disabled
	config  *config.Config
	logger  *logging.Logger
	version string
}

// NewServer creates a new MCP server reporting version to clients. cfg
// supplies every run setting the tool arguments do not.
func NewServer(cfg *config.Config, runner *pipeline.Runner, ledger storage.Storage, logger *logging.Logger, version string) (*Server, error) {
	if cfg == nil || runner == nil {
		return nil, fmt.Errorf("config and runner are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if version == "" {
		version = DefaultVersion
	}

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, version),
		runner:  runner,
		ledger:  ledger,
		config:  cfg,
		logger:  logger.Named("mcp"),
		version: version,
	}
	s.registerTools()
	return s, nil
}

// Serve serves MCP on stdio and blocks until the client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info(ctx, "mcp server started", zap.String("version", s.version))
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(planIndexTool(), s.handlePlanIndex)
	s.mcp.AddTool(runIndexTool(), s.handleRunIndex)
	s.mcp.AddTool(indexStatusTool(), s.handleIndexStatus)
}
