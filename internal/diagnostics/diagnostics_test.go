package diagnostics

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlscope/erlscope/internal/querydb"
	"github.com/erlscope/erlscope/internal/semantic"
	"github.com/erlscope/erlscope/internal/types"
)

func newWorkspace(t *testing.T, files map[string]string) (*semantic.Analyzer, map[string]types.FileID) {
	t.Helper()
	a := semantic.NewAnalyzer(querydb.New(0))

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	ids := map[string]types.FileID{}
	var entries []semantic.FileEntry
	for i, p := range paths {
		id := types.FileID(i + 1)
		ids[p] = id
		entries = append(entries, semantic.FileEntry{ID: id, Path: p})
		a.SetFileText(id, files[p])
	}
	a.SetFileList(entries)
	return a, ids
}

func byPass(diags []types.Diagnostic) map[string][]types.Diagnostic {
	out := map[string][]types.Diagnostic{}
	for _, d := range diags {
		out[d.Pass] = append(out[d.Pass], d)
	}
	return out
}

func TestSyntaxErrorReported(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/broken.erl": "-module(broken).\nfoo(",
	})
	diags, err := NewRegistry().FileDiagnostics(context.Background(), a, ids["src/broken.erl"])
	require.NoError(t, err)

	syn := byPass(diags)["syntax"]
	require.Len(t, syn, 1)
	assert.Equal(t, types.SeverityError, syn[0].Severity)
}

func TestBrokenFormDoesNotPoisonNeighbors(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/mixed.erl": "-module(mixed).\n-export([ok_fun/0]).\nbad bad bad.\nok_fun() -> ok_fun().\n",
	})
	diags, err := NewRegistry().FileDiagnostics(context.Background(), a, ids["src/mixed.erl"])
	require.NoError(t, err)

	groups := byPass(diags)
	assert.NotEmpty(t, groups["syntax"])
	// ok_fun still parsed and resolved: no unresolved finding for it.
	for _, d := range groups["unresolved"] {
		assert.NotContains(t, d.Message, "ok_fun")
	}
}

func TestModuleMismatch(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/actual.erl": "-module(expected).\n",
	})
	diags, err := NewRegistry().FileDiagnostics(context.Background(), a, ids["src/actual.erl"])
	require.NoError(t, err)

	mm := byPass(diags)["module_mismatch"]
	require.Len(t, mm, 1)
	assert.Equal(t, types.SeverityError, mm[0].Severity)
	assert.Contains(t, mm[0].Message, "expected")
	assert.Contains(t, mm[0].Message, "actual.erl")
}

func TestUnresolvedLocalCallWithSuggestion(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/typo.erl": "-module(typo).\n-export([run/0]).\nrun() -> handle_cal(1).\nhandle_call(X) -> X.\n",
	})
	diags, err := NewRegistry().FileDiagnostics(context.Background(), a, ids["src/typo.erl"])
	require.NoError(t, err)

	unres := byPass(diags)["unresolved"]
	require.Len(t, unres, 1)
	assert.Contains(t, unres[0].Message, "handle_cal/1")
	assert.Contains(t, unres[0].Related, "handle_call/1")
}

func TestBifAndExternalCallsNotFlagged(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/clean.erl": "-module(clean).\n-export([run/1]).\nrun(L) -> lists:map(fun inc/1, L) ++ [length(L)].\ninc(X) -> X + 1.\n",
	})
	diags, err := NewRegistry().FileDiagnostics(context.Background(), a, ids["src/clean.erl"])
	require.NoError(t, err)
	assert.Empty(t, byPass(diags)["unresolved"])
}

func TestUndefinedMacroAndRecord(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/holes.erl": "-module(holes).\n-export([run/0]).\nrun() -> {?NOPE, #ghost{}, ?MODULE}.\n",
	})
	diags, err := NewRegistry().FileDiagnostics(context.Background(), a, ids["src/holes.erl"])
	require.NoError(t, err)

	unres := byPass(diags)["unresolved"]
	require.Len(t, unres, 2)
	msgs := unres[0].Message + " " + unres[1].Message
	assert.Contains(t, msgs, "?NOPE")
	assert.Contains(t, msgs, "#ghost")
	assert.NotContains(t, msgs, "MODULE")
}

func TestUnusedFunction(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/dead.erl": "-module(dead).\n-export([api/0]).\napi() -> helper().\nhelper() -> ok.\nforgotten() -> ok.\n",
	})
	diags, err := NewRegistry().FileDiagnostics(context.Background(), a, ids["src/dead.erl"])
	require.NoError(t, err)

	unused := byPass(diags)["unused_function"]
	require.Len(t, unused, 1)
	assert.Contains(t, unused[0].Message, "forgotten/0")
}

func TestFailingPassDegrades(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/fine.erl": "-module(fine).\n",
	})
	r := NewRegistry()
	r.Register(Pass{
		ID: "flaky",
		Run: func(ctx context.Context, a *semantic.Analyzer, file types.FileID) ([]types.Diagnostic, error) {
			return nil, errors.New("pass blew up")
		},
	})
	diags, err := r.FileDiagnostics(context.Background(), a, ids["src/fine.erl"])
	require.NoError(t, err)

	flaky := byPass(diags)["flaky"]
	require.Len(t, flaky, 1)
	assert.Equal(t, types.SeverityInfo, flaky[0].Severity)
	assert.Contains(t, flaky[0].Message, "pass blew up")
}

func TestCancelledContextAborts(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/any.erl": "-module(any).\n",
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRegistry().FileDiagnostics(ctx, a, ids["src/any.erl"])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDisablePass(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/wrong.erl": "-module(other).\n",
	})
	r := NewRegistry()
	r.Disable("module_mismatch")

	diags, err := r.FileDiagnostics(context.Background(), a, ids["src/wrong.erl"])
	require.NoError(t, err)
	assert.Empty(t, byPass(diags)["module_mismatch"])

	for _, p := range r.Passes() {
		assert.NotEqual(t, "module_mismatch", p.ID)
	}
}

func TestIncludeNotFoundReported(t *testing.T) {
	src := "-module(a).\n-include(\"nope.hrl\").\n"
	a, ids := newWorkspace(t, map[string]string{
		"src/a.erl": src,
	})
	diags, err := NewRegistry().FileDiagnostics(context.Background(), a, ids["src/a.erl"])
	require.NoError(t, err)

	inc := byPass(diags)["include"]
	require.Len(t, inc, 1)
	assert.Equal(t, types.SeverityWarning, inc[0].Severity)
	assert.Contains(t, inc[0].Message, `"nope.hrl"`)
	assert.Equal(t, uint32(strings.Index(src, `"nope.hrl"`)), inc[0].Location.Range.Start)
}

func TestAmbiguousIncludeReported(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/a.erl":       "-module(a).\n-include(\"shared.hrl\").\n",
		"inc1/shared.hrl": "-define(ONE, 1).\n",
		"inc2/shared.hrl": "-define(ONE, 1).\n",
	})
	diags, err := NewRegistry().FileDiagnostics(context.Background(), a, ids["src/a.erl"])
	require.NoError(t, err)

	inc := byPass(diags)["include"]
	require.Len(t, inc, 1)
	assert.Contains(t, inc[0].Message, "matches 2")
	assert.Contains(t, inc[0].Related, "inc1/shared.hrl")
	assert.Contains(t, inc[0].Related, "inc2/shared.hrl")
}

func TestResolvedIncludeNotFlagged(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"src/a.erl":      "-module(a).\n-include(\"shared.hrl\").\n",
		"src/shared.hrl": "-define(ONE, 1).\n",
	})
	diags, err := NewRegistry().FileDiagnostics(context.Background(), a, ids["src/a.erl"])
	require.NoError(t, err)
	assert.Empty(t, byPass(diags)["include"])
}
