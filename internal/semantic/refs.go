package semantic

import (
	"sort"

	"github.com/erlscope/erlscope/internal/syntax"
	"github.com/erlscope/erlscope/internal/types"
)

// RefKind classifies a reference site.
type RefKind string

const (
	RefLocalCall  RefKind = "local_call"  // foo(Args)
	RefRemoteCall RefKind = "remote_call" // mod:foo(Args)
	RefFunLocal   RefKind = "fun_local"   // fun foo/1, export entries
	RefFunRemote  RefKind = "fun_remote"  // fun mod:foo/1, import entries
	RefMacro      RefKind = "macro"       // ?NAME
	RefRecord     RefKind = "record"      // #name{...}, #name.field
)

// RefSite is one outgoing reference found in a file. Arity is -1 when the
// site does not pin one down (macros, records).
type RefSite struct {
	Kind      RefKind     `json:"kind"`
	Module    string      `json:"module,omitempty"`
	Name      string      `json:"name"`
	Arity     int         `json:"arity"`
	NameRange types.Range `json:"range"`
}

// NameArity returns the referenced function identity.
func (r RefSite) NameArity() types.NameArity {
	return types.NameArity{Name: r.Name, Arity: r.Arity}
}

// extractRefs walks a parse tree and records every reference site. Export
// entries count as local references and import entries as remote ones, so
// find-references covers attribute lists too.
func extractRefs(tree *syntax.Node) []RefSite {
	var out []RefSite
	for _, c := range tree.Children {
		if c.Node == nil {
			continue
		}
		form := c.Node
		switch form.Kind {
		case syntax.NodeExportAttr:
			for _, ref := range form.ChildNodes(syntax.NodeFunRef) {
				if site, ok := funRefSite(ref, RefFunLocal, ""); ok {
					out = append(out, site)
				}
			}
		case syntax.NodeImportAttr:
			mod, _ := attrSubject(form)
			for _, ref := range form.ChildNodes(syntax.NodeFunRef) {
				if site, ok := funRefSite(ref, RefFunRemote, mod); ok {
					out = append(out, site)
				}
			}
		case syntax.NodeModuleAttr, syntax.NodeIncludeAttr:
			// no callable references inside
		default:
			out = append(out, expressionRefs(form)...)
		}
	}
	return out
}

// funRefSite builds a site from one name/arity entry of an export or
// import list. A malformed entry without an arity keeps -1, like fun
// expressions that omit it.
func funRefSite(ref *syntax.Node, kind RefKind, mod string) (RefSite, bool) {
	name := firstDirectToken(ref, syntax.TokenAtom)
	if name == nil {
		return RefSite{}, false
	}
	arity := -1
	if a := firstDirectToken(ref, syntax.TokenInteger); a != nil {
		arity = atoiSafe(a.Text)
	}
	return RefSite{
		Kind:      kind,
		Module:    mod,
		Name:      syntax.AtomText(*name),
		Arity:     arity,
		NameRange: name.Range,
	}, true
}

// expressionRefs collects call, fun-ref, macro and record sites under a form.
func expressionRefs(form *syntax.Node) []RefSite {
	var out []RefSite
	form.Walk(func(n *syntax.Node) bool {
		switch n.Kind {
		case syntax.NodeCall:
			if name := firstDirectToken(n, syntax.TokenAtom); name != nil {
				out = append(out, RefSite{
					Kind:      RefLocalCall,
					Name:      syntax.AtomText(*name),
					Arity:     callArity(n),
					NameRange: name.Range,
				})
			}
		case syntax.NodeRemoteCall:
			mod, name := remoteCallTokens(n)
			if name != nil {
				site := RefSite{
					Kind:      RefRemoteCall,
					Name:      syntax.AtomText(*name),
					Arity:     callArity(n),
					NameRange: name.Range,
				}
				if mod != nil {
					site.Module = syntax.AtomText(*mod)
				}
				// Dynamic module (variable or macro) stays Module=="",
				// kept for name-index purposes but unresolvable.
				out = append(out, site)
			}
		case syntax.NodeFunRef:
			kind := RefFunLocal
			mod := ""
			if m, name := remoteFunRefTokens(n); name != nil {
				if m != nil {
					kind = RefFunRemote
					mod = syntax.AtomText(*m)
				}
				arity := -1
				if a := firstDirectToken(n, syntax.TokenInteger); a != nil {
					arity = atoiSafe(a.Text)
				}
				out = append(out, RefSite{
					Kind:      kind,
					Module:    mod,
					Name:      syntax.AtomText(*name),
					Arity:     arity,
					NameRange: name.Range,
				})
			}
		case syntax.NodeMacroUse:
			if tok := macroUseToken(n); tok != nil {
				out = append(out, RefSite{
					Kind:      RefMacro,
					Name:      macroName(*tok),
					Arity:     -1,
					NameRange: tok.Range,
				})
			}
		case syntax.NodeRecordUse:
			if tok := firstDirectToken(n, syntax.TokenAtom); tok != nil {
				out = append(out, RefSite{
					Kind:      RefRecord,
					Name:      syntax.AtomText(*tok),
					Arity:     -1,
					NameRange: tok.Range,
				})
			}
		}
		return true
	})
	return out
}

// callArity counts the arguments of a call node's direct argument list.
func callArity(n *syntax.Node) int {
	args := n.ChildNodes(syntax.NodeArgList)
	if len(args) == 0 {
		return -1
	}
	return argListArity(args[0])
}

// remoteCallTokens returns the module and function atoms of mod:fun(...).
// The module slot is nil when the call target is dynamic (Var:fun(...)).
func remoteCallTokens(n *syntax.Node) (mod, name *syntax.Token) {
	var atoms []*syntax.Token
	sawColon := false
	for _, c := range n.Children {
		if c.Token == nil || c.Token.IsTrivia() {
			continue
		}
		switch c.Token.Kind {
		case syntax.TokenAtom:
			atoms = append(atoms, c.Token)
		case syntax.TokenColon:
			sawColon = true
		}
		if len(atoms) == 2 {
			break
		}
	}
	if !sawColon {
		return nil, nil
	}
	switch len(atoms) {
	case 2:
		return atoms[0], atoms[1]
	case 1:
		// dynamic module: the single atom is the function name
		return nil, atoms[0]
	}
	return nil, nil
}

// remoteFunRefTokens splits a fun-ref's atoms around the colon, if present.
func remoteFunRefTokens(n *syntax.Node) (mod, name *syntax.Token) {
	var atoms []*syntax.Token
	sawColon := false
	for _, c := range n.Children {
		if c.Token == nil || c.Token.IsTrivia() {
			continue
		}
		switch c.Token.Kind {
		case syntax.TokenAtom:
			atoms = append(atoms, c.Token)
		case syntax.TokenColon:
			sawColon = true
		}
	}
	if len(atoms) == 0 {
		return nil, nil
	}
	if sawColon && len(atoms) >= 2 {
		return atoms[0], atoms[1]
	}
	return nil, atoms[0]
}

// macroUseToken returns the name token following the '?'.
func macroUseToken(n *syntax.Node) *syntax.Token {
	for _, c := range n.Children {
		if c.Token == nil || c.Token.IsTrivia() {
			continue
		}
		if c.Token.Kind == syntax.TokenAtom || c.Token.Kind == syntax.TokenVariable {
			return c.Token
		}
	}
	return nil
}

// collectNames gathers every name a file's token stream mentions: atom
// texts plus macro names. The result is sorted and deduplicated so the
// value fingerprints deterministically.
func collectNames(tree *syntax.Node) []string {
	seen := map[string]struct{}{}
	for _, tok := range tree.Tokens(nil) {
		if tok.Kind == syntax.TokenAtom {
			seen[syntax.AtomText(tok)] = struct{}{}
		}
	}
	tree.Walk(func(n *syntax.Node) bool {
		switch n.Kind {
		case syntax.NodeMacroUse:
			if tok := macroUseToken(n); tok != nil {
				seen[macroName(*tok)] = struct{}{}
			}
		case syntax.NodeDefineAttr:
			if name, ok := defineSubject(n); ok {
				seen[name] = struct{}{}
			}
		}
		return true
	})
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
