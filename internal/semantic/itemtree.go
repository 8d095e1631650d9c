package semantic

import (
	"github.com/erlscope/erlscope/internal/syntax"
	"github.com/erlscope/erlscope/internal/types"
)

// ItemTree is the position-free signature summary of a file's top-level
// declarations. It deliberately carries no byte ranges: editing a function
// body (or reformatting) leaves the item tree fingerprint unchanged, so
// queries built on item trees stay green across body-only edits. Positions
// live in ItemLocations, a separate query.
type ItemTree struct {
	Module    string            `json:"module,omitempty"`
	Exports   []types.NameArity `json:"exports,omitempty"`
	Imports   []ImportItem      `json:"imports,omitempty"`
	Includes  []IncludeItem     `json:"includes,omitempty"`
	Records   []RecordItem      `json:"records,omitempty"`
	Macros    []string          `json:"macros,omitempty"`
	Functions []FunItem         `json:"functions,omitempty"`
}

// ImportItem is one -import(mod, [f/1, ...]) attribute.
type ImportItem struct {
	Module string            `json:"module"`
	Funcs  []types.NameArity `json:"funcs"`
}

// IncludeItem is one -include or -include_lib attribute.
type IncludeItem struct {
	Path string `json:"path"`
	Lib  bool   `json:"lib"`
}

// RecordItem is one -record declaration.
type RecordItem struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields,omitempty"`
}

// FunItem is one function definition.
type FunItem struct {
	Name        string `json:"name"`
	Arity       int    `json:"arity"`
	ClauseCount int    `json:"clauses"`
}

// NameArity returns the function's identity pair.
func (f FunItem) NameArity() types.NameArity {
	return types.NameArity{Name: f.Name, Arity: f.Arity}
}

// HasFunction reports whether the item tree defines name/arity.
func (it *ItemTree) HasFunction(na types.NameArity) bool {
	for _, f := range it.Functions {
		if f.Name == na.Name && f.Arity == na.Arity {
			return true
		}
	}
	return false
}

// IsExported reports whether name/arity appears in an export list.
func (it *ItemTree) IsExported(na types.NameArity) bool {
	for _, e := range it.Exports {
		if e == na {
			return true
		}
	}
	return false
}

// ImportOf returns the module an imported function comes from, if any.
func (it *ItemTree) ImportOf(na types.NameArity) (string, bool) {
	for _, imp := range it.Imports {
		for _, f := range imp.Funcs {
			if f == na {
				return imp.Module, true
			}
		}
	}
	return "", false
}

// HasRecord reports whether the item tree declares the record.
func (it *ItemTree) HasRecord(name string) bool {
	for _, r := range it.Records {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasMacro reports whether the item tree defines the macro.
func (it *ItemTree) HasMacro(name string) bool {
	for _, m := range it.Macros {
		if m == name {
			return true
		}
	}
	return false
}

// ItemLocations maps item names to their defining ranges in one file. Keys
// for functions are the name/arity form ("foo/2"); records and macros use
// the bare name.
type ItemLocations struct {
	Module    *types.Range           `json:"module,omitempty"`
	Functions map[string]types.Range `json:"functions,omitempty"`
	Records   map[string]types.Range `json:"records,omitempty"`
	Macros    map[string]types.Range `json:"macros,omitempty"`
}

// extractItemTree builds the signature summary from a parse tree.
func extractItemTree(tree *syntax.Node) *ItemTree {
	it := &ItemTree{}
	for _, c := range tree.Children {
		if c.Node == nil {
			continue
		}
		n := c.Node
		switch n.Kind {
		case syntax.NodeModuleAttr:
			if name, ok := attrSubject(n); ok {
				it.Module = name
			}
		case syntax.NodeExportAttr:
			it.Exports = append(it.Exports, funRefEntries(n)...)
		case syntax.NodeImportAttr:
			if name, ok := attrSubject(n); ok {
				it.Imports = append(it.Imports, ImportItem{
					Module: name,
					Funcs:  funRefEntries(n),
				})
			}
		case syntax.NodeIncludeAttr:
			if tok := n.FirstToken(syntax.TokenString); tok != nil {
				lib := false
				if kw := attrName(n); kw == "include_lib" {
					lib = true
				}
				it.Includes = append(it.Includes, IncludeItem{
					Path: syntax.StringText(*tok),
					Lib:  lib,
				})
			}
		case syntax.NodeRecordDecl:
			if name, ok := attrSubject(n); ok {
				it.Records = append(it.Records, RecordItem{
					Name:   name,
					Fields: recordFields(n),
				})
			}
		case syntax.NodeDefineAttr:
			if name, ok := defineSubject(n); ok {
				it.Macros = append(it.Macros, name)
			}
		case syntax.NodeFunction:
			if fi, ok := functionItem(n); ok {
				it.Functions = append(it.Functions, fi)
			}
		}
	}
	return it
}

// extractItemLocations builds the name-to-range map from a parse tree.
func extractItemLocations(tree *syntax.Node) *ItemLocations {
	loc := &ItemLocations{
		Functions: map[string]types.Range{},
		Records:   map[string]types.Range{},
		Macros:    map[string]types.Range{},
	}
	for _, c := range tree.Children {
		if c.Node == nil {
			continue
		}
		n := c.Node
		switch n.Kind {
		case syntax.NodeModuleAttr:
			if tok, ok := attrSubjectToken(n); ok {
				r := tok.Range
				loc.Module = &r
			}
		case syntax.NodeRecordDecl:
			if tok, ok := attrSubjectToken(n); ok {
				loc.Records[syntax.AtomText(tok)] = tok.Range
			}
		case syntax.NodeDefineAttr:
			if tok, ok := defineSubjectToken(n); ok {
				loc.Macros[macroName(tok)] = tok.Range
			}
		case syntax.NodeFunction:
			fi, ok := functionItem(n)
			if !ok {
				continue
			}
			clauses := n.ChildNodes(syntax.NodeClause)
			if len(clauses) == 0 {
				continue
			}
			if tok := firstDirectToken(clauses[0], syntax.TokenAtom); tok != nil {
				loc.Functions[fi.NameArity().String()] = tok.Range
			}
		}
	}
	return loc
}

// attrName returns the attribute keyword (module, include_lib, ...).
func attrName(n *syntax.Node) string {
	seen := 0
	for _, c := range n.Children {
		if c.Token == nil || c.Token.IsTrivia() {
			continue
		}
		seen++
		if seen == 2 { // after the leading '-'
			return syntax.AtomText(*c.Token)
		}
	}
	return ""
}

// attrSubject returns the first atom inside the attribute parens:
// the module name of -module(m), the record name of -record(r, ...).
func attrSubject(n *syntax.Node) (string, bool) {
	tok, ok := attrSubjectToken(n)
	if !ok {
		return "", false
	}
	return syntax.AtomText(tok), true
}

func attrSubjectToken(n *syntax.Node) (syntax.Token, bool) {
	afterParen := false
	for _, c := range n.Children {
		if c.Token == nil || c.Token.IsTrivia() {
			continue
		}
		if c.Token.Kind == syntax.TokenLParen {
			afterParen = true
			continue
		}
		if afterParen && c.Token.Kind == syntax.TokenAtom {
			return *c.Token, true
		}
		if afterParen {
			return syntax.Token{}, false
		}
	}
	return syntax.Token{}, false
}

// defineSubject returns the macro name of a -define attribute. Macro names
// may be atoms or variables (?MODULE-style constants are variables).
func defineSubject(n *syntax.Node) (string, bool) {
	tok, ok := defineSubjectToken(n)
	if !ok {
		return "", false
	}
	return macroName(tok), true
}

func defineSubjectToken(n *syntax.Node) (syntax.Token, bool) {
	afterParen := false
	for _, c := range n.Children {
		if c.Token == nil || c.Token.IsTrivia() {
			continue
		}
		if c.Token.Kind == syntax.TokenLParen {
			afterParen = true
			continue
		}
		if afterParen {
			if c.Token.Kind == syntax.TokenAtom || c.Token.Kind == syntax.TokenVariable {
				return *c.Token, true
			}
			return syntax.Token{}, false
		}
	}
	return syntax.Token{}, false
}

func macroName(tok syntax.Token) string {
	if tok.Kind == syntax.TokenAtom {
		return syntax.AtomText(tok)
	}
	return tok.Text
}

// funRefEntries collects the name/arity pairs of an export or import list.
func funRefEntries(n *syntax.Node) []types.NameArity {
	var out []types.NameArity
	for _, ref := range n.ChildNodes(syntax.NodeFunRef) {
		name := ref.FirstToken(syntax.TokenAtom)
		arity := ref.FirstToken(syntax.TokenInteger)
		if name == nil || arity == nil {
			continue
		}
		out = append(out, types.NameArity{
			Name:  syntax.AtomText(*name),
			Arity: atoiSafe(arity.Text),
		})
	}
	return out
}

// recordFields extracts field names: atoms directly inside the first brace
// group, following the opening brace or a comma. Field defaults and nested
// structures are skipped by depth tracking.
func recordFields(n *syntax.Node) []string {
	tokens := n.Tokens(nil)
	var fields []string
	depth := 0
	fieldDepth := -1
	expectField := false
	for _, tok := range tokens {
		if tok.IsTrivia() {
			continue
		}
		switch tok.Kind {
		case syntax.TokenLBrace:
			depth++
			if fieldDepth < 0 {
				fieldDepth = depth
				expectField = true
			}
		case syntax.TokenLParen, syntax.TokenLBracket, syntax.TokenBinOpen:
			depth++
		case syntax.TokenRBrace, syntax.TokenRParen, syntax.TokenRBracket, syntax.TokenBinClose:
			depth--
		case syntax.TokenComma:
			if depth == fieldDepth {
				expectField = true
			}
		case syntax.TokenAtom:
			if depth == fieldDepth && expectField {
				fields = append(fields, syntax.AtomText(tok))
				expectField = false
			}
		default:
			if depth == fieldDepth {
				expectField = false
			}
		}
	}
	return fields
}

// functionItem derives name/arity from the first clause.
func functionItem(n *syntax.Node) (FunItem, bool) {
	clauses := n.ChildNodes(syntax.NodeClause)
	if len(clauses) == 0 {
		return FunItem{}, false
	}
	name := firstDirectToken(clauses[0], syntax.TokenAtom)
	if name == nil {
		return FunItem{}, false
	}
	args := clauses[0].ChildNodes(syntax.NodeArgList)
	arity := 0
	if len(args) > 0 {
		arity = argListArity(args[0])
	}
	return FunItem{
		Name:        syntax.AtomText(*name),
		Arity:       arity,
		ClauseCount: len(clauses),
	}, true
}

// argListArity counts arguments as top-level commas plus one. The arg list
// node includes its own parens, so "top level" is bracket depth one. Tokens
// inside nested groups and blocks are tracked by depth; sub-nodes (nested
// calls, fun refs) cannot leak commas because their tokens are not direct
// children.
func argListArity(args *syntax.Node) int {
	depth := 0
	commas := 0
	inner := 0 // significant elements between the parens
	for _, c := range args.Children {
		if c.Node != nil {
			inner++
			continue
		}
		tok := c.Token
		if tok == nil || tok.IsTrivia() {
			continue
		}
		switch tok.Kind {
		case syntax.TokenLParen, syntax.TokenLBracket, syntax.TokenLBrace, syntax.TokenBinOpen:
			if depth >= 1 {
				inner++
			}
			depth++
		case syntax.TokenRParen, syntax.TokenRBracket, syntax.TokenRBrace, syntax.TokenBinClose:
			depth--
			if depth >= 1 {
				inner++
			}
		case syntax.TokenKeyword:
			if blockOpenerKeyword(tok.Text) {
				depth++
			} else if tok.Text == "end" {
				depth--
			}
			inner++
		case syntax.TokenComma:
			if depth == 1 {
				commas++
			}
			inner++
		default:
			inner++
		}
	}
	if inner == 0 && commas == 0 {
		return 0
	}
	return commas + 1
}

func blockOpenerKeyword(word string) bool {
	switch word {
	case "case", "if", "receive", "try", "begin", "maybe", "fun":
		return true
	}
	return false
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func firstDirectToken(n *syntax.Node, kind syntax.TokenKind) *syntax.Token {
	for _, c := range n.Children {
		if c.Token != nil && c.Token.Kind == kind {
			return c.Token
		}
	}
	return nil
}
