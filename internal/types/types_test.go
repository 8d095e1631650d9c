package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeContains(t *testing.T) {
	r := Range{Start: 10, End: 20}

	assert.True(t, r.Contains(10))
	assert.True(t, r.Contains(19))
	assert.False(t, r.Contains(20)) // half-open
	assert.False(t, r.Contains(9))
	assert.Equal(t, uint32(10), r.Len())
}

func TestRangeCover(t *testing.T) {
	a := Range{Start: 5, End: 10}
	b := Range{Start: 8, End: 30}

	assert.Equal(t, Range{Start: 5, End: 30}, a.Cover(b))
	assert.Equal(t, Range{Start: 5, End: 30}, b.Cover(a))
}

func TestNameArityString(t *testing.T) {
	assert.Equal(t, "foo/2", NameArity{Name: "foo", Arity: 2}.String())
	assert.Equal(t, "state", NameArity{Name: "state", Arity: -1}.String())
}

func TestParseNameArity(t *testing.T) {
	tests := []struct {
		in   string
		want NameArity
	}{
		{"foo/2", NameArity{Name: "foo", Arity: 2}},
		{"handle_call/3", NameArity{Name: "handle_call", Arity: 3}},
		{"foo", NameArity{Name: "foo", Arity: -1}},
		{"foo/", NameArity{Name: "foo/", Arity: -1}},
		{"foo/x", NameArity{Name: "foo/x", Arity: -1}},
		{"/2", NameArity{Name: "/2", Arity: -1}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseNameArity(tt.in), "input %q", tt.in)
	}
}

func TestDefinitionIDString(t *testing.T) {
	fn := DefinitionID{Module: "mymod", Entity: NameArity{Name: "foo", Arity: 1}, Kind: SymbolFunction}
	assert.Equal(t, "mymod:foo/1", fn.String())

	mod := DefinitionID{Module: "mymod", Kind: SymbolModule}
	assert.Equal(t, "mymod", mod.String())
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "info", SeverityInfo.String())
	assert.Equal(t, "hint", SeverityHint.String())
}
