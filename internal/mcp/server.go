// Package mcp serves the analysis engine to editors and agents over the
// Model Context Protocol.
package mcp

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/erlscope/erlscope/internal/debug"
	"github.com/erlscope/erlscope/internal/engine"
	"github.com/erlscope/erlscope/internal/search"
	"github.com/erlscope/erlscope/internal/version"
)

// Server wires the engine's snapshot operations into MCP tools.
type Server struct {
	eng    *engine.Engine
	scorer *search.Scorer
	server *mcp.Server
}

// NewServer builds the MCP server over an already loaded engine.
func NewServer(eng *engine.Engine, scorer *search.Scorer) *Server {
	s := &Server{
		eng:    eng,
		scorer: scorer,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "erlscope",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Start serves over stdio until the context ends.
func (s *Server) Start(ctx context.Context) error {
	debug.SetMCPMode(true)
	debug.Logf("starting MCP server over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// positionSchema is shared by every position-based tool.
func positionSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"path": {
				Type:        "string",
				Description: "Workspace-relative file path",
			},
			"line": {
				Type:        "integer",
				Description: "1-based line number",
			},
			"column": {
				Type:        "integer",
				Description: "1-based column number",
			},
		},
		Required: []string{"path", "line", "column"},
	}
}

// registerTools registers all MCP tools with the server
func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "goto_definition",
		Description: "Resolve the symbol at a position to its definition site. Works across modules, includes, imports, macros, records and clause-local variables.",
		InputSchema: positionSchema(),
	}, s.handleGotoDefinition)

	s.server.AddTool(&mcp.Tool{
		Name:        "find_references",
		Description: "List every confirmed reference to the symbol at a position. Each candidate site is re-resolved, so same-named symbols in other modules are excluded.",
		InputSchema: positionSchema(),
	}, s.handleFindReferences)

	s.server.AddTool(&mcp.Tool{
		Name:        "hover",
		Description: "Short description of the definition under a position: signature, export status, record fields.",
		InputSchema: positionSchema(),
	}, s.handleHover)

	s.server.AddTool(&mcp.Tool{
		Name:        "diagnostics",
		Description: "Run all analysis passes over one file: syntax errors, unresolved names, module/filename mismatches, unused functions.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {
					Type:        "string",
					Description: "Workspace-relative file path",
				},
			},
			Required: []string{"path"},
		},
	}, s.handleDiagnostics)

	s.server.AddTool(&mcp.Tool{
		Name:        "workspace_symbols",
		Description: "Fuzzy search over every definition in the workspace. Matches snake_case fragments, stems and typos.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Search text",
				},
				"max": {
					Type:        "integer",
					Description: "Maximum results (default 50)",
				},
			},
			Required: []string{"query"},
		},
	}, s.handleWorkspaceSymbols)

	s.server.AddTool(&mcp.Tool{
		Name:        "status",
		Description: "Engine status: file count, cache counters, build version.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleStatus)
}
