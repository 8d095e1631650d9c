package semantic

import (
	"github.com/erlscope/erlscope/internal/syntax"
	"github.com/erlscope/erlscope/internal/types"
)

// Erlang variables scope over a single clause and bind at their first
// textual occurrence, whether that occurrence sits in a pattern or an
// expression. That makes variable resolution purely local: no query layer
// involvement, just a scan of the enclosing clause.

// variableBindingAt returns the binding occurrence of the variable token at
// offset, or nil when the token is not a variable, is the anonymous "_",
// or has no enclosing clause.
func variableBindingAt(tree *syntax.Node, offset uint32) *types.Range {
	tok := tree.TokenAt(offset)
	if tok == nil || tok.Kind != syntax.TokenVariable || tok.Text == "_" {
		return nil
	}
	scope := enclosingClause(tree, offset)
	if scope == nil {
		return nil
	}
	for _, t := range scope.Tokens(nil) {
		if t.Kind == syntax.TokenVariable && t.Text == tok.Text {
			r := t.Range
			return &r
		}
	}
	return nil
}

// variableOccurrences returns every occurrence of the variable at offset
// within its clause, in source order. Used by find-references when the
// cursor sits on a variable.
func variableOccurrences(tree *syntax.Node, offset uint32) []types.Range {
	tok := tree.TokenAt(offset)
	if tok == nil || tok.Kind != syntax.TokenVariable || tok.Text == "_" {
		return nil
	}
	scope := enclosingClause(tree, offset)
	if scope == nil {
		return nil
	}
	var out []types.Range
	for _, t := range scope.Tokens(nil) {
		if t.Kind == syntax.TokenVariable && t.Text == tok.Text {
			out = append(out, t.Range)
		}
	}
	return out
}

// enclosingClause returns the innermost clause containing offset. Lambda
// bodies stay inline in their clause, so a lambda parameter resolves to
// the clause-wide first occurrence of its name.
func enclosingClause(tree *syntax.Node, offset uint32) *syntax.Node {
	var clause *syntax.Node
	tree.Walk(func(n *syntax.Node) bool {
		if !n.Range.Contains(offset) && n.Kind != syntax.NodeSourceFile {
			return false
		}
		if n.Kind == syntax.NodeClause {
			clause = n
		}
		return true
	})
	return clause
}
