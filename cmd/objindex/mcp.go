package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/objindex/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the indexing tools over MCP on stdio",
	Long: `Serve plan_index, run_index and index_status to an MCP client over
stdio. Logs go to stderr; stdout carries the protocol.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Flags())
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := mcp.NewServer(a.config, a.runner, a.ledger, a.logger, version)
	if err != nil {
		return err
	}
	return server.Serve(cmd.Context())
}
