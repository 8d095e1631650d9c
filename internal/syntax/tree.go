package syntax

import (
	"strings"

	"github.com/erlscope/erlscope/internal/types"
)

// NodeKind tags a syntax tree node.
type NodeKind uint8

const (
	NodeSourceFile  NodeKind = iota
	NodeModuleAttr           // -module(name).
	NodeExportAttr           // -export([f/1, ...]).
	NodeImportAttr           // -import(mod, [f/1, ...]).
	NodeIncludeAttr          // -include("x.hrl"). / -include_lib("app/include/x.hrl").
	NodeRecordDecl           // -record(name, {fields}).
	NodeDefineAttr           // -define(NAME, ...).
	NodeWildAttr             // any other -attr(...). form (spec, type, behaviour, ...)
	NodeFunction             // full function: clauses up to the terminating dot
	NodeClause               // one clause: head, optional guard, body
	NodeArgList              // parenthesized argument or parameter list
	NodeGuard                // 'when' guard sequence
	NodeBody                 // clause body expressions
	NodeCall                 // foo(Args)
	NodeRemoteCall           // mod:foo(Args)
	NodeFunRef               // fun foo/1, fun mod:foo/1, export/import entries
	NodeMacroUse             // ?NAME or ?NAME(Args)
	NodeRecordUse            // #name{...} / #name.field
	NodeError                // unparsable region, recovered at a form terminator
)

func (k NodeKind) String() string {
	switch k {
	case NodeSourceFile:
		return "source_file"
	case NodeModuleAttr:
		return "module_attr"
	case NodeExportAttr:
		return "export_attr"
	case NodeImportAttr:
		return "import_attr"
	case NodeIncludeAttr:
		return "include_attr"
	case NodeRecordDecl:
		return "record_decl"
	case NodeDefineAttr:
		return "define_attr"
	case NodeWildAttr:
		return "wild_attr"
	case NodeFunction:
		return "function"
	case NodeClause:
		return "clause"
	case NodeArgList:
		return "arg_list"
	case NodeGuard:
		return "guard"
	case NodeBody:
		return "body"
	case NodeCall:
		return "call"
	case NodeRemoteCall:
		return "remote_call"
	case NodeFunRef:
		return "fun_ref"
	case NodeMacroUse:
		return "macro_use"
	case NodeRecordUse:
		return "record_use"
	case NodeError:
		return "error"
	default:
		return "unknown"
	}
}

// Child is either a sub-node or a token leaf; exactly one field is non-nil.
type Child struct {
	Node  *Node
	Token *Token
}

// Node is an immutable syntax tree node. Once a tree is built for a
// (file, version) pair it is never mutated, only superseded by a re-parse.
type Node struct {
	Kind     NodeKind
	Range    types.Range
	Children []Child
}

// Tokens appends every token leaf under n, in source order.
func (n *Node) Tokens(out []Token) []Token {
	for _, c := range n.Children {
		if c.Token != nil {
			out = append(out, *c.Token)
		} else if c.Node != nil {
			out = c.Node.Tokens(out)
		}
	}
	return out
}

// Text reconstructs the exact source text the node covers by concatenating
// its token leaves. For the root this is the whole file.
func (n *Node) Text() string {
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	for _, c := range n.Children {
		if c.Token != nil {
			sb.WriteString(c.Token.Text)
		} else if c.Node != nil {
			c.Node.writeText(sb)
		}
	}
}

// FirstToken returns the first non-trivia token of the given kind directly
// or transitively under n, or nil.
func (n *Node) FirstToken(kind TokenKind) *Token {
	for _, c := range n.Children {
		if c.Token != nil && c.Token.Kind == kind {
			return c.Token
		}
		if c.Node != nil {
			if t := c.Node.FirstToken(kind); t != nil {
				return t
			}
		}
	}
	return nil
}

// ChildNodes returns the direct sub-nodes of the given kind.
func (n *Node) ChildNodes(kind NodeKind) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Node != nil && c.Node.Kind == kind {
			out = append(out, c.Node)
		}
	}
	return out
}

// Walk calls fn for n and every descendant node in source order. Returning
// false from fn prunes the subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		if c.Node != nil {
			c.Node.Walk(fn)
		}
	}
}

// ErrorNodes returns every error node in the tree, in source order.
func (n *Node) ErrorNodes() []*Node {
	var out []*Node
	n.Walk(func(node *Node) bool {
		if node.Kind == NodeError {
			out = append(out, node)
		}
		return true
	})
	return out
}

// NodeAt returns the innermost node whose range contains the byte offset.
func (n *Node) NodeAt(offset uint32) *Node {
	if !n.Range.Contains(offset) && !(n.Kind == NodeSourceFile) {
		return nil
	}
	best := n
	for _, c := range n.Children {
		if c.Node != nil && c.Node.Range.Contains(offset) {
			if inner := c.Node.NodeAt(offset); inner != nil {
				best = inner
			}
		}
	}
	return best
}

// TokenAt returns the token leaf containing the byte offset, or nil.
func (n *Node) TokenAt(offset uint32) *Token {
	for _, c := range n.Children {
		if c.Token != nil && c.Token.Range.Contains(offset) {
			return c.Token
		}
		if c.Node != nil && c.Node.Range.Contains(offset) {
			if t := c.Node.TokenAt(offset); t != nil {
				return t
			}
		}
	}
	return nil
}
