package syntax

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleModule = `-module(sample).
-export([start/0, handle/2]).
-include("shared.hrl").
-record(state, {count = 0, name}).
-define(LIMIT, 100).

%% Entry point.
start() ->
    handle(init, #state{}).

handle(init, State) ->
    io:format("starting~n"),
    {ok, State#state{count = ?LIMIT}};
handle(Msg, State) when is_atom(Msg) ->
    case Msg of
        stop -> done;
        _ -> handle(init, State)
    end.
`

func TestParseRoundTrip(t *testing.T) {
	tree := Parse([]byte(sampleModule))
	assert.Equal(t, sampleModule, tree.Text())
}

func TestParseFormKinds(t *testing.T) {
	tree := Parse([]byte(sampleModule))

	var kinds []NodeKind
	for _, c := range tree.Children {
		if c.Node != nil {
			kinds = append(kinds, c.Node.Kind)
		}
	}
	assert.Equal(t, []NodeKind{
		NodeModuleAttr, NodeExportAttr, NodeIncludeAttr,
		NodeRecordDecl, NodeDefineAttr, NodeFunction, NodeFunction,
	}, kinds)
}

func TestParseNoErrorNodesOnValidInput(t *testing.T) {
	tree := Parse([]byte(sampleModule))
	assert.Empty(t, tree.ErrorNodes())
}

func TestParseExportEntries(t *testing.T) {
	tree := Parse([]byte("-export([foo/1, bar/2]).\n"))
	exports := tree.ChildNodes(NodeExportAttr)
	require.Len(t, exports, 1)

	refs := exports[0].ChildNodes(NodeFunRef)
	require.Len(t, refs, 2)
	assert.Equal(t, "foo", AtomText(*refs[0].FirstToken(TokenAtom)))
	assert.Equal(t, "bar", AtomText(*refs[1].FirstToken(TokenAtom)))
}

func TestParseCallsExtracted(t *testing.T) {
	src := "run() -> helper(1), io:format(\"x\"), lists:map(fun inc/1, [1]).\n"
	tree := Parse([]byte(src))

	var calls, remotes, funrefs int
	tree.Walk(func(n *Node) bool {
		switch n.Kind {
		case NodeCall:
			calls++
		case NodeRemoteCall:
			remotes++
		case NodeFunRef:
			funrefs++
		}
		return true
	})
	assert.Equal(t, 1, calls, "local calls")
	assert.Equal(t, 2, remotes, "remote calls")
	assert.Equal(t, 1, funrefs, "fun refs")
	assert.Equal(t, src, tree.Text())
}

func TestParseNestedCallsInArgs(t *testing.T) {
	src := "f() -> outer(inner(1), mod:other(2)).\n"
	tree := Parse([]byte(src))

	var names []string
	tree.Walk(func(n *Node) bool {
		if n.Kind == NodeCall || n.Kind == NodeRemoteCall {
			// last atom before the arg list is the callee
			for _, c := range n.Children {
				if c.Token != nil && c.Token.Kind == TokenAtom {
					names = append(names, c.Token.Text)
				}
			}
		}
		return true
	})
	assert.Contains(t, names, "outer")
	assert.Contains(t, names, "inner")
	assert.Contains(t, names, "other")
}

func TestParseMultiClauseFunction(t *testing.T) {
	src := "fact(0) -> 1;\nfact(N) -> N * fact(N - 1).\n"
	tree := Parse([]byte(src))

	funcs := tree.ChildNodes(NodeFunction)
	require.Len(t, funcs, 1)
	assert.Len(t, funcs[0].ChildNodes(NodeClause), 2)
	assert.Equal(t, src, tree.Text())
}

// Malformed input parses to a tree containing exactly one error node and
// still round-trips. Other forms in the same file are unaffected.
func TestParseUnterminatedCall(t *testing.T) {
	src := "foo("
	tree := Parse([]byte(src))

	assert.Equal(t, src, tree.Text())
	assert.Len(t, tree.ErrorNodes(), 1)
}

func TestParseBadFormDoesNotPoisonNeighbors(t *testing.T) {
	src := "-module(m).\n)))garbage here(((.\nok_fun() -> fine.\n"
	tree := Parse([]byte(src))

	assert.Equal(t, src, tree.Text())
	require.NotEmpty(t, tree.ErrorNodes())

	// The valid function after the garbage form still parses cleanly.
	funcs := tree.ChildNodes(NodeFunction)
	require.Len(t, funcs, 1)
	assert.Empty(t, funcs[0].ErrorNodes())
}

func TestParseMissingArrow(t *testing.T) {
	src := "broken(X) X + 1.\ngood() -> ok.\n"
	tree := Parse([]byte(src))

	assert.Equal(t, src, tree.Text())
	assert.NotEmpty(t, tree.ErrorNodes())

	funcs := tree.ChildNodes(NodeFunction)
	require.Len(t, funcs, 2)
	assert.Empty(t, funcs[1].ErrorNodes())
}

func TestParseEmptyAndGarbageInput(t *testing.T) {
	tree := Parse(nil)
	assert.Empty(t, tree.Children)
	assert.Equal(t, "", tree.Text())

	garbage := []byte{0x00, 0xff, 0xfe, '(', '\n', 0x01}
	tree = Parse(garbage)
	assert.Equal(t, string(garbage), tree.Text())
}

func TestParseDeterministic(t *testing.T) {
	src := []byte(sampleModule)
	a := Parse(src)
	b := Parse(src)
	require.Equal(t, a, b)
}

// Round-trip must hold for arbitrary input, not just valid Erlang.
func TestParseRoundTripRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	pieces := []string{
		"-module(m).", "foo(", ")", "->", "ok", ".", ";", "case", "end",
		" ", "\n", "%% c\n", "X", "42", "\"s\"", "'q'", "#r{}", "?M", "[1,2]",
	}
	for i := 0; i < 300; i++ {
		var src string
		for j := rng.Intn(20); j > 0; j-- {
			src += pieces[rng.Intn(len(pieces))]
		}
		tree := Parse([]byte(src))
		assert.Equal(t, src, tree.Text(), "iteration %d input %q", i, src)
	}
}

func TestNodeAtAndTokenAt(t *testing.T) {
	src := "foo() -> bar(1).\n"
	tree := Parse([]byte(src))

	// offset of "bar" is 9
	tok := tree.TokenAt(9)
	require.NotNil(t, tok)
	assert.Equal(t, "bar", tok.Text)

	node := tree.NodeAt(9)
	require.NotNil(t, node)
	assert.Equal(t, NodeCall, node.Kind)
}

func TestGuardParsed(t *testing.T) {
	src := "f(X) when X > 0, is_integer(X) -> X.\n"
	tree := Parse([]byte(src))

	var guards int
	tree.Walk(func(n *Node) bool {
		if n.Kind == NodeGuard {
			guards++
		}
		return true
	})
	assert.Equal(t, 1, guards)
	assert.Equal(t, src, tree.Text())
	assert.Empty(t, tree.ErrorNodes())
}
