package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/erlscope/erlscope/internal/engine"
	"github.com/erlscope/erlscope/internal/types"
	"github.com/erlscope/erlscope/internal/version"
)

// PositionParams locates a cursor in the workspace.
type PositionParams struct {
	Path   string `json:"path"`
	Line   uint32 `json:"line"`
	Column uint32 `json:"column"`
}

// FileParams names one file.
type FileParams struct {
	Path string `json:"path"`
}

// SymbolsParams is the workspace search input.
type SymbolsParams struct {
	Query string `json:"query"`
	Max   int    `json:"max"`
}

// locationOut is a resolved location rendered for the wire.
type locationOut struct {
	Path   string `json:"path"`
	Line   uint32 `json:"line"`
	Column uint32 `json:"column"`
}

// resolvePosition maps protocol coordinates onto a file id and byte offset
// within a snapshot.
func (s *Server) resolvePosition(snap *engine.Snapshot, p PositionParams) (types.FileID, uint32, error) {
	fc := snap.FileByPath(p.Path)
	if fc == nil {
		return types.InvalidFileID, 0, fmt.Errorf("file not open: %s", p.Path)
	}
	return fc.FileID, fc.Offset(types.LineCol{Line: p.Line, Column: p.Column}), nil
}

// renderLocation converts a byte location back to path/line/column.
func (s *Server) renderLocation(snap *engine.Snapshot, loc types.Location) locationOut {
	fc := snap.File(loc.FileID)
	if fc == nil {
		return locationOut{}
	}
	lc := fc.LineCol(loc.Range.Start)
	return locationOut{Path: fc.Path, Line: lc.Line, Column: lc.Column}
}

func (s *Server) handleGotoDefinition(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p PositionParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("goto_definition", fmt.Errorf("invalid parameters: %w", err))
	}
	snap := s.eng.Snapshot(ctx)
	defer snap.Release()

	fid, off, err := s.resolvePosition(snap, p)
	if err != nil {
		return createErrorResponse("goto_definition", err)
	}
	loc, err := snap.GotoDefinition(fid, off)
	if err != nil {
		return createErrorResponse("goto_definition", err)
	}
	if loc == nil {
		return createJSONResponse(map[string]interface{}{"found": false})
	}
	return createJSONResponse(map[string]interface{}{
		"found":    true,
		"location": s.renderLocation(snap, *loc),
	})
}

func (s *Server) handleFindReferences(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p PositionParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("find_references", fmt.Errorf("invalid parameters: %w", err))
	}
	snap := s.eng.Snapshot(ctx)
	defer snap.Release()

	fid, off, err := s.resolvePosition(snap, p)
	if err != nil {
		return createErrorResponse("find_references", err)
	}
	refs, err := snap.FindReferences(fid, off)
	if err != nil {
		return createErrorResponse("find_references", err)
	}
	out := make([]locationOut, 0, len(refs))
	for _, r := range refs {
		out = append(out, s.renderLocation(snap, r))
	}
	return createJSONResponse(map[string]interface{}{
		"count":      len(out),
		"references": out,
	})
}

func (s *Server) handleHover(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p PositionParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("hover", fmt.Errorf("invalid parameters: %w", err))
	}
	snap := s.eng.Snapshot(ctx)
	defer snap.Release()

	fid, off, err := s.resolvePosition(snap, p)
	if err != nil {
		return createErrorResponse("hover", err)
	}
	text, err := snap.Hover(fid, off)
	if err != nil {
		return createErrorResponse("hover", err)
	}
	return createJSONResponse(map[string]interface{}{"text": text})
}

func (s *Server) handleDiagnostics(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p FileParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("diagnostics", fmt.Errorf("invalid parameters: %w", err))
	}
	snap := s.eng.Snapshot(ctx)
	defer snap.Release()

	fc := snap.FileByPath(p.Path)
	if fc == nil {
		return createErrorResponse("diagnostics", fmt.Errorf("file not open: %s", p.Path))
	}
	diags, err := snap.Diagnostics(fc.FileID)
	if err != nil {
		return createErrorResponse("diagnostics", err)
	}

	type diagOut struct {
		Pass     string      `json:"pass"`
		Severity string      `json:"severity"`
		Message  string      `json:"message"`
		Location locationOut `json:"location"`
		Related  string      `json:"related,omitempty"`
	}
	out := make([]diagOut, 0, len(diags))
	for _, d := range diags {
		out = append(out, diagOut{
			Pass:     d.Pass,
			Severity: d.Severity.String(),
			Message:  d.Message,
			Location: s.renderLocation(snap, d.Location),
			Related:  d.Related,
		})
	}
	return createJSONResponse(map[string]interface{}{
		"path":        p.Path,
		"count":       len(out),
		"diagnostics": out,
	})
}

func (s *Server) handleWorkspaceSymbols(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p SymbolsParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("workspace_symbols", fmt.Errorf("invalid parameters: %w", err))
	}
	snap := s.eng.Snapshot(ctx)
	defer snap.Release()

	syms, err := snap.WorkspaceSymbols()
	if err != nil {
		return createErrorResponse("workspace_symbols", err)
	}
	matches := s.scorer.Rank(p.Query, syms)
	if p.Max > 0 && len(matches) > p.Max {
		matches = matches[:p.Max]
	}

	type symbolOut struct {
		Name     string      `json:"name"`
		Kind     string      `json:"kind"`
		Score    float64     `json:"score"`
		Location locationOut `json:"location"`
	}
	out := make([]symbolOut, 0, len(matches))
	for _, m := range matches {
		out = append(out, symbolOut{
			Name:  m.Symbol.ID.String(),
			Kind:  m.Symbol.ID.Kind.String(),
			Score: m.Score,
			Location: s.renderLocation(snap, types.Location{
				FileID: m.Symbol.File,
				Range:  m.Symbol.Range,
			}),
		})
	}
	return createJSONResponse(map[string]interface{}{
		"query":   p.Query,
		"count":   len(out),
		"symbols": out,
	})
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.eng.Stats()
	return createJSONResponse(map[string]interface{}{
		"files":          s.eng.FileCount(),
		"computes":       stats.Computes,
		"cache_hits":     stats.CacheHits,
		"green_verifies": stats.GreenVerifies,
		"evictions":      stats.Evictions,
		"build_id":       version.BuildID(),
	})
}
