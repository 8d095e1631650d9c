package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlscope/erlscope/internal/semantic"
	"github.com/erlscope/erlscope/internal/types"
)

func tempStore(t *testing.T) *SymbolStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "symbols.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSymbols() []semantic.SymbolInfo {
	return []semantic.SymbolInfo{
		{
			ID:   types.DefinitionID{Module: "lib", Kind: types.SymbolModule},
			Path: "src/lib.erl",
		},
		{
			ID: types.DefinitionID{
				Module: "lib",
				Entity: types.NameArity{Name: "add", Arity: 2},
				Kind:   types.SymbolFunction,
			},
			Path:     "src/lib.erl",
			Range:    types.Range{Start: 40, End: 43},
			Exported: true,
		},
		{
			ID: types.DefinitionID{
				Module: "app",
				Entity: types.NameArity{Name: "state", Arity: -1},
				Kind:   types.SymbolRecord,
			},
			Path:  "src/app.erl",
			Range: types.Range{Start: 10, End: 15},
		},
	}
}

func TestReplaceAndCount(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Replace(testSymbols()))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Replace swaps, never accumulates.
	require.NoError(t, s.Replace(testSymbols()[:1]))
	n, err = s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestByModuleRoundTrip(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Replace(testSymbols()))

	syms, err := s.ByModule("lib")
	require.NoError(t, err)
	require.Len(t, syms, 2)

	var fn *semantic.SymbolInfo
	for i := range syms {
		if syms[i].ID.Kind == types.SymbolFunction {
			fn = &syms[i]
		}
	}
	require.NotNil(t, fn)
	assert.Equal(t, "lib:add/2", fn.ID.String())
	assert.Equal(t, uint32(40), fn.Range.Start)
	assert.True(t, fn.Exported)
}

func TestEmptyModule(t *testing.T) {
	s := tempStore(t)
	syms, err := s.ByModule("ghost")
	require.NoError(t, err)
	assert.Empty(t, syms)
}
