package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlscope/erlscope/internal/engine"
	"github.com/erlscope/erlscope/internal/search"
)

const libSrc = `-module(lib).
-export([add/2]).

add(A, B) -> A + B.
`

const appSrc = `-module(app).
-export([run/0]).

run() -> lib:add(1, 2).
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	eng := engine.New(engine.Options{})
	_, err := eng.OpenFile("src/lib.erl", []byte(libSrc))
	require.NoError(t, err)
	_, err = eng.OpenFile("src/app.erl", []byte(appSrc))
	require.NoError(t, err)
	return NewServer(eng, search.NewScorer(search.DefaultWeights()))
}

func call(t *testing.T, fn func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error), args interface{}) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)

	result, err := fn(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Arguments: raw},
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func TestGotoDefinitionTool(t *testing.T) {
	s := newTestServer(t)
	// lib:add call sits on line 4 of app.erl; column of "add" is 16.
	payload := call(t, s.handleGotoDefinition, PositionParams{
		Path: "src/app.erl", Line: 4, Column: 16,
	})
	require.Equal(t, true, payload["found"])

	loc := payload["location"].(map[string]interface{})
	assert.Equal(t, "src/lib.erl", loc["path"])
	assert.Equal(t, float64(4), loc["line"])
	assert.Equal(t, float64(1), loc["column"])
}

func TestGotoDefinitionMiss(t *testing.T) {
	s := newTestServer(t)
	payload := call(t, s.handleGotoDefinition, PositionParams{
		Path: "src/app.erl", Line: 1, Column: 1,
	})
	assert.Equal(t, false, payload["found"])
}

func TestFindReferencesTool(t *testing.T) {
	s := newTestServer(t)
	payload := call(t, s.handleFindReferences, PositionParams{
		Path: "src/app.erl", Line: 4, Column: 16,
	})
	assert.Equal(t, float64(2), payload["count"])
}

func TestDiagnosticsTool(t *testing.T) {
	s := newTestServer(t)
	id, ok := s.eng.FileID("src/app.erl")
	require.True(t, ok)
	require.NoError(t, s.eng.ChangeFile(id,
		[]byte("-module(app).\n-export([run/0]).\nrun() -> lib:nope(1).\n")))

	payload := call(t, s.handleDiagnostics, FileParams{Path: "src/app.erl"})
	assert.Greater(t, payload["count"], float64(0))
}

func TestWorkspaceSymbolsTool(t *testing.T) {
	s := newTestServer(t)
	payload := call(t, s.handleWorkspaceSymbols, SymbolsParams{Query: "add"})
	require.Greater(t, payload["count"], float64(0))

	syms := payload["symbols"].([]interface{})
	first := syms[0].(map[string]interface{})
	assert.Equal(t, "lib:add/2", first["name"])
}

func TestStatusTool(t *testing.T) {
	s := newTestServer(t)
	payload := call(t, s.handleStatus, map[string]interface{}{})
	assert.Equal(t, float64(2), payload["files"])
	assert.NotEmpty(t, payload["build_id"])
}

func TestUnknownPath(t *testing.T) {
	s := newTestServer(t)
	payload := call(t, s.handleHover, PositionParams{Path: "src/ghost.erl", Line: 1, Column: 1})
	assert.Contains(t, payload["error"], "not open")
}
