package semantic

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlscope/erlscope/internal/querydb"
	"github.com/erlscope/erlscope/internal/types"
)

const mylibSrc = `-module(mylib).
-export([add/2, inc/1]).

add(A, B) -> A + B.

inc(X) -> add(X, 1).
`

const mainSrc = `-module(main).
-export([run/0]).
-include("shared.hrl").
-import(mylib, [inc/1]).

run() ->
    Total = mylib:add(1, 2),
    S = #state{count = Total},
    ?LIMIT + inc(Total) + S#state.count.
`

const sharedSrc = `-define(LIMIT, 100).
-record(state, {count, name}).
`

// newWorkspace builds an analyzer over an in-memory file set and returns
// the id assigned to each path.
func newWorkspace(t *testing.T, files map[string]string) (*Analyzer, map[string]types.FileID) {
	t.Helper()
	a := NewAnalyzer(querydb.New(0))

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	ids := map[string]types.FileID{}
	var entries []FileEntry
	for i, p := range paths {
		id := types.FileID(i + 1)
		ids[p] = id
		entries = append(entries, FileEntry{ID: id, Path: p})
		a.SetFileText(id, files[p])
	}
	a.SetFileList(entries)
	return a, ids
}

func stdWorkspace(t *testing.T) (*Analyzer, map[string]types.FileID) {
	return newWorkspace(t, map[string]string{
		"src/mylib.erl":  mylibSrc,
		"src/main.erl":   mainSrc,
		"src/shared.hrl": sharedSrc,
	})
}

// off returns the byte offset of the first occurrence of needle.
func off(t *testing.T, src, needle string) uint32 {
	t.Helper()
	i := strings.Index(src, needle)
	require.GreaterOrEqual(t, i, 0, "needle %q not found", needle)
	return uint32(i)
}

func TestItemTreeExtraction(t *testing.T) {
	a, ids := stdWorkspace(t)
	ctx := context.Background()

	it, err := a.ItemTreeOf(ctx, ids["src/mylib.erl"])
	require.NoError(t, err)
	assert.Equal(t, "mylib", it.Module)
	assert.True(t, it.IsExported(types.NameArity{Name: "add", Arity: 2}))
	assert.True(t, it.HasFunction(types.NameArity{Name: "inc", Arity: 1}))
	assert.Len(t, it.Functions, 2)

	hdr, err := a.ItemTreeOf(ctx, ids["src/shared.hrl"])
	require.NoError(t, err)
	assert.Empty(t, hdr.Module)
	assert.True(t, hdr.HasMacro("LIMIT"))
	require.True(t, hdr.HasRecord("state"))
	assert.Equal(t, []string{"count", "name"}, hdr.Records[0].Fields)

	m, err := a.ItemTreeOf(ctx, ids["src/main.erl"])
	require.NoError(t, err)
	require.Len(t, m.Includes, 1)
	assert.Equal(t, "shared.hrl", m.Includes[0].Path)
	mod, ok := m.ImportOf(types.NameArity{Name: "inc", Arity: 1})
	require.True(t, ok)
	assert.Equal(t, "mylib", mod)
}

func TestGotoLocalCall(t *testing.T) {
	a, ids := stdWorkspace(t)
	lib := ids["src/mylib.erl"]

	loc, err := a.DefinitionLocation(context.Background(), lib, off(t, mylibSrc, "add(X, 1)"))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, lib, loc.FileID)
	assert.Equal(t, off(t, mylibSrc, "add(A, B)"), loc.Range.Start)
}

func TestGotoRemoteCall(t *testing.T) {
	a, ids := stdWorkspace(t)

	loc, err := a.DefinitionLocation(context.Background(), ids["src/main.erl"], off(t, mainSrc, "add(1, 2)"))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, ids["src/mylib.erl"], loc.FileID)
	assert.Equal(t, off(t, mylibSrc, "add(A, B)"), loc.Range.Start)
}

func TestGotoModuleName(t *testing.T) {
	a, ids := stdWorkspace(t)

	loc, err := a.DefinitionLocation(context.Background(), ids["src/main.erl"], off(t, mainSrc, "mylib:add"))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, ids["src/mylib.erl"], loc.FileID)
	assert.Equal(t, off(t, mylibSrc, "mylib"), loc.Range.Start)
}

func TestGotoImportedCall(t *testing.T) {
	a, ids := stdWorkspace(t)

	loc, err := a.DefinitionLocation(context.Background(), ids["src/main.erl"], off(t, mainSrc, "inc(Total)"))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, ids["src/mylib.erl"], loc.FileID)
	assert.Equal(t, off(t, mylibSrc, "inc(X)"), loc.Range.Start)
}

func TestGotoMacroThroughInclude(t *testing.T) {
	a, ids := stdWorkspace(t)

	loc, err := a.DefinitionLocation(context.Background(), ids["src/main.erl"], off(t, mainSrc, "LIMIT"))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, ids["src/shared.hrl"], loc.FileID)
	assert.Equal(t, off(t, sharedSrc, "LIMIT"), loc.Range.Start)
}

func TestGotoRecordThroughInclude(t *testing.T) {
	a, ids := stdWorkspace(t)

	loc, err := a.DefinitionLocation(context.Background(), ids["src/main.erl"], off(t, mainSrc, "state{count"))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, ids["src/shared.hrl"], loc.FileID)
	assert.Equal(t, off(t, sharedSrc, "state"), loc.Range.Start)
}

func TestVariableBinding(t *testing.T) {
	a, ids := stdWorkspace(t)
	main := ids["src/main.erl"]

	// Second use of Total resolves to its first occurrence.
	useOff := off(t, mainSrc, "inc(Total)") + uint32(len("inc("))
	loc, err := a.DefinitionLocation(context.Background(), main, useOff)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, main, loc.FileID)
	assert.Equal(t, off(t, mainSrc, "Total"), loc.Range.Start)

	refs, err := a.ReferencesAt(context.Background(), main, useOff)
	require.NoError(t, err)
	assert.Len(t, refs, 3)
}

func TestFindReferencesFunction(t *testing.T) {
	a, ids := stdWorkspace(t)

	// Resolve add/2 from its remote call site, then find all uses: the
	// export entry, the local call in inc/1 and the remote call in main.
	refs, err := a.ReferencesAt(context.Background(), ids["src/main.erl"], off(t, mainSrc, "add(1, 2)"))
	require.NoError(t, err)
	require.Len(t, refs, 3)

	byFile := map[types.FileID]int{}
	for _, r := range refs {
		byFile[r.FileID]++
	}
	assert.Equal(t, 2, byFile[ids["src/mylib.erl"]])
	assert.Equal(t, 1, byFile[ids["src/main.erl"]])
}

func TestUnresolvedCall(t *testing.T) {
	src := "-module(solo).\nrun() -> missing:fn(1).\n"
	a, ids := newWorkspace(t, map[string]string{"src/solo.erl": src})

	res, err := a.ResolveAt(context.Background(), ids["src/solo.erl"], off(t, src, "fn(1)"))
	require.NoError(t, err)
	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Nil(t, res.Def)
}

// Editing a function body must not invalidate queries built on the item
// tree: only the parse and item tree of the edited file recompute, and the
// module index verifies green.
func TestBodyEditKeepsItemTreeGreen(t *testing.T) {
	a, ids := stdWorkspace(t)
	ctx := context.Background()

	_, err := a.Modules(ctx)
	require.NoError(t, err)
	before := a.DB().Stats()

	a.SetFileText(ids["src/mylib.erl"], strings.Replace(mylibSrc, "add(X, 1)", "add(X, 2)", 1))

	idx, err := a.Modules(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids["src/mylib.erl"], idx.Modules["mylib"])

	after := a.DB().Stats()
	assert.Equal(t, uint64(2), after.Computes-before.Computes,
		"expected exactly parse + item tree to recompute")
	assert.Greater(t, after.GreenVerifies, before.GreenVerifies)
}

// Renaming a function makes old call sites unresolved without breaking
// anything else.
func TestRenameMakesCallSitesUnresolved(t *testing.T) {
	a, ids := stdWorkspace(t)
	ctx := context.Background()

	a.SetFileText(ids["src/mylib.erl"], strings.ReplaceAll(mylibSrc, "add", "sum"))

	res, err := a.ResolveAt(ctx, ids["src/main.erl"], off(t, mainSrc, "add(1, 2)"))
	require.NoError(t, err)
	assert.Equal(t, StatusUnresolved, res.Status)

	refs, err := a.ReferencesTo(ctx, &Definition{
		ID: types.DefinitionID{
			Module: "mylib",
			Entity: types.NameArity{Name: "add", Arity: 2},
			Kind:   types.SymbolFunction,
		},
		File: ids["src/mylib.erl"],
	})
	require.NoError(t, err)
	assert.Empty(t, refs)

	// The renamed function resolves at its own call site.
	loc, err := a.DefinitionLocation(ctx, ids["src/mylib.erl"],
		off(t, strings.ReplaceAll(mylibSrc, "add", "sum"), "sum(X, 1)"))
	require.NoError(t, err)
	require.NotNil(t, loc)
}

func TestIncludeMissingIsTolerated(t *testing.T) {
	src := "-module(app).\n-include(\"nowhere.hrl\").\nrun() -> ?GONE.\n"
	a, ids := newWorkspace(t, map[string]string{"src/app.erl": src})
	ctx := context.Background()
	id := ids["src/app.erl"]

	inc, err := a.IncludesOf(ctx, id)
	require.NoError(t, err)
	require.Len(t, inc.Includes, 1)
	assert.Equal(t, types.InvalidFileID, inc.Includes[0].FileID)

	res, err := a.ResolveAt(ctx, id, off(t, src, "GONE"))
	require.NoError(t, err)
	assert.Equal(t, StatusUnresolved, res.Status)
}

func TestIncludeCycleTerminates(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"include/a.hrl": "-include(\"b.hrl\").\n-define(FROM_A, 1).\n",
		"include/b.hrl": "-include(\"a.hrl\").\n-define(FROM_B, 2).\n",
	})
	defs, err := a.VisibleDefsOf(context.Background(), ids["include/a.hrl"])
	require.NoError(t, err)
	assert.Equal(t, ids["include/a.hrl"], defs.Macros["FROM_A"])
	assert.Equal(t, ids["include/b.hrl"], defs.Macros["FROM_B"])
}

func TestIncludeLibResolution(t *testing.T) {
	a, ids := newWorkspace(t, map[string]string{
		"deps/kernel/include/file.hrl": "-define(K, 1).\n",
		"src/user.erl":                 "-module(user).\n-include_lib(\"kernel/include/file.hrl\").\n",
	})
	inc, err := a.IncludesOf(context.Background(), ids["src/user.erl"])
	require.NoError(t, err)
	require.Len(t, inc.Includes, 1)
	assert.Equal(t, ids["deps/kernel/include/file.hrl"], inc.Includes[0].FileID)
	assert.Equal(t, "kernel/include/file.hrl", inc.Includes[0].Path)
}

func TestWorkspaceSymbols(t *testing.T) {
	a, _ := stdWorkspace(t)

	syms, err := a.WorkspaceSymbols(context.Background())
	require.NoError(t, err)

	names := map[string]bool{}
	for _, s := range syms {
		names[s.ID.String()] = true
	}
	assert.True(t, names["mylib"])
	assert.True(t, names["mylib:add/2"])
	assert.True(t, names["mylib:inc/1"])
	assert.True(t, names["main:run/0"])
	assert.True(t, names["shared:state"])
	assert.True(t, names["shared:LIMIT"])
}

func TestHoverFunction(t *testing.T) {
	a, ids := stdWorkspace(t)

	text, err := a.HoverInfo(context.Background(), ids["src/main.erl"], off(t, mainSrc, "add(1, 2)"))
	require.NoError(t, err)
	assert.Contains(t, text, "mylib:add/2")
	assert.Contains(t, text, "exported")
}

func TestAttributeEntriesAreReferenceSites(t *testing.T) {
	a, ids := stdWorkspace(t)

	refs, err := a.RefsOf(context.Background(), ids["src/mylib.erl"])
	require.NoError(t, err)

	var export, call bool
	for _, r := range refs {
		if r.Kind == RefFunLocal && r.Name == "add" && r.Arity == 2 {
			export = true
			assert.Equal(t, off(t, mylibSrc, "add/2"), r.NameRange.Start)
		}
		if r.Kind == RefLocalCall && r.Name == "add" {
			call = true
		}
	}
	assert.True(t, export, "export entry add/2 must produce a reference site")
	assert.True(t, call, "local call add(X, 1) must produce a reference site")

	refs, err = a.RefsOf(context.Background(), ids["src/main.erl"])
	require.NoError(t, err)

	var imported bool
	for _, r := range refs {
		if r.Kind == RefFunRemote && r.Module == "mylib" && r.Name == "inc" && r.Arity == 1 {
			imported = true
		}
	}
	assert.True(t, imported, "import entry inc/1 must carry the attribute's module")
}
