// Package mcp implements the Model Context Protocol (MCP) server for objindex.
//
// The server exposes three tools:
//   - plan_index: dry run, report what a run would index
//   - run_index: run the pipeline for an input/output root pair
//   - index_status: recent runs and their failures from the ledger
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started by the mcp command and reads requests from stdin.
// Logs go to stderr so stdout carries only protocol messages.
//
//	objindex mcp --ledger ~/.objindex/ledger.db
//
// # Tool: run_index
//
//	Request:
//	{
//	  "name": "run_index",
//	  "arguments": {
//	    "input_root": "/data/dumps",
//	    "output_root": "/data/indexed",
//	    "reversed": false,
//	    "workers": 8
//	  }
//	}
//
//	Response:
//	{
//	  "run_id": "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
//	  "status": "partial",
//	  "candidates": 1200,
//	  "up_to_date": 1180,
//	  "planned": 20,
//	  "completed": 19,
//	  "failed": 1,
//	  "failures": [{"object": "/data/dumps/p/a.bin", "error": "engine failed: exit status 1"}],
//	  "duration_ms": 81234
//	}
//
// Only one run may be active per server. A second run_index while one is in
// progress fails with ErrorCodeIndexingInProgress.
//
// # Error Codes
//
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Input root not found
//   - -32002: Indexing in progress
//   - -32003: Scratch space unavailable
//   - -32004: Ledger disabled
package mcp
