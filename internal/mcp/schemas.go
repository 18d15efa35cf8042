package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func rootProperties() map[string]interface{} {
	return map[string]interface{}{
		"input_root": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the directory of project directories to index",
		},
		"output_root": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path where index archives are written, mirroring the input layout",
		},
		"reversed": map[string]interface{}{
			"type":        "boolean",
			"description": "Walk project directories in reverse lexical order",
			"default":     false,
		},
	}
}

// planIndexTool returns the tool definition for plan_index
func planIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "plan_index",
		Description: "Report which objects under an input root need (re)indexing without indexing anything",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: rootProperties(),
			Required:   []string{"input_root", "output_root"},
		},
	}
}

// runIndexTool returns the tool definition for run_index
func runIndexTool() mcp.Tool {
	props := rootProperties()
	props["workers"] = map[string]interface{}{
		"type":        "integer",
		"description": "Number of concurrent indexing jobs (defaults to the server configuration)",
		"minimum":     1,
	}
	return mcp.Tool{
		Name:        "run_index",
		Description: "Index every object under an input root whose archive is missing or stale",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"input_root", "output_root"},
		},
	}
}

// indexStatusTool returns the tool definition for index_status
func indexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_status",
		Description: "List recent indexing runs and the objects that failed in them",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of runs to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
		},
	}
}
