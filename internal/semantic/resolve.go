package semantic

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/erlscope/erlscope/internal/querydb"
	"github.com/erlscope/erlscope/internal/syntax"
	"github.com/erlscope/erlscope/internal/types"
)

// ResolveStatus describes the outcome of a resolution request.
type ResolveStatus string

const (
	StatusResolved   ResolveStatus = "resolved"
	StatusUnresolved ResolveStatus = "unresolved"
	StatusCyclic     ResolveStatus = "cyclic"
)

// Definition is a resolved definition site.
type Definition struct {
	ID    types.DefinitionID `json:"id"`
	File  types.FileID       `json:"file"`
	Range types.Range        `json:"range"`
}

// ResolveResult is the answer to "what does the name under the cursor
// mean". Variables carry a Binding instead of a Def.
type ResolveResult struct {
	Status  ResolveStatus   `json:"status"`
	Def     *Definition     `json:"def,omitempty"`
	Binding *types.Location `json:"binding,omitempty"`
}

func unresolved() *ResolveResult {
	return &ResolveResult{Status: StatusUnresolved}
}

// ResolveAt resolves the token at a byte offset. Cursor positions that do
// not sit on a resolvable name return StatusUnresolved rather than an
// error; errors are reserved for missing files and cancellation.
func (a *Analyzer) ResolveAt(ctx context.Context, file types.FileID, offset uint32) (*ResolveResult, error) {
	g := a.reader(ctx)
	tree, err := a.tree(g, file)
	if err != nil {
		return cycleAware(err)
	}
	tok := tree.TokenAt(offset)
	if tok == nil {
		return unresolved(), nil
	}
	node := tree.NodeAt(offset)
	if node == nil {
		return unresolved(), nil
	}

	switch node.Kind {
	case syntax.NodeMacroUse:
		return a.resolveMacroOrRecord(g, file, macroNameOf(node), true)

	case syntax.NodeRecordUse:
		if name := firstDirectToken(node, syntax.TokenAtom); name != nil && name.Range == tok.Range {
			return a.resolveMacroOrRecord(g, file, syntax.AtomText(*name), false)
		}
		if tok.Kind == syntax.TokenVariable {
			return a.resolveVariable(tree, file, offset), nil
		}
		return unresolved(), nil

	case syntax.NodeCall:
		if name := firstDirectToken(node, syntax.TokenAtom); name != nil && name.Range == tok.Range {
			return a.functionResult(g, file, "", types.NameArity{
				Name:  syntax.AtomText(*name),
				Arity: callArity(node),
			})
		}
		if tok.Kind == syntax.TokenVariable {
			return a.resolveVariable(tree, file, offset), nil
		}
		return unresolved(), nil

	case syntax.NodeRemoteCall:
		mod, name := remoteCallTokens(node)
		if mod != nil && mod.Range == tok.Range {
			return a.moduleResult(g, syntax.AtomText(*mod))
		}
		if name != nil && name.Range == tok.Range {
			m := ""
			if mod != nil {
				m = syntax.AtomText(*mod)
			}
			return a.functionResult(g, file, m, types.NameArity{
				Name:  syntax.AtomText(*name),
				Arity: callArity(node),
			})
		}
		if tok.Kind == syntax.TokenVariable {
			return a.resolveVariable(tree, file, offset), nil
		}
		return unresolved(), nil

	case syntax.NodeFunRef:
		mod, name := remoteFunRefTokens(node)
		if name == nil {
			return unresolved(), nil
		}
		arity := -1
		if ar := firstDirectToken(node, syntax.TokenInteger); ar != nil {
			arity = atoiSafe(ar.Text)
		}
		m := ""
		if mod != nil {
			if mod.Range == tok.Range {
				return a.moduleResult(g, syntax.AtomText(*mod))
			}
			m = syntax.AtomText(*mod)
		} else if imp := enclosingImportModule(tree, node); imp != "" {
			m = imp
		}
		return a.functionResult(g, file, m, types.NameArity{
			Name:  syntax.AtomText(*name),
			Arity: arity,
		})

	case syntax.NodeModuleAttr:
		if tok.Kind == syntax.TokenAtom {
			return a.moduleResult(g, syntax.AtomText(*tok))
		}
		return unresolved(), nil

	case syntax.NodeImportAttr, syntax.NodeIncludeAttr:
		if tok.Kind == syntax.TokenAtom {
			return a.moduleResult(g, syntax.AtomText(*tok))
		}
		return unresolved(), nil
	}

	// Fallbacks for tokens outside the structured nodes.
	switch tok.Kind {
	case syntax.TokenVariable:
		return a.resolveVariable(tree, file, offset), nil
	case syntax.TokenAtom:
		// A bare atom resolves as a module name when one exists, which
		// covers apply/3 arguments and callback module references.
		return a.moduleResult(g, syntax.AtomText(*tok))
	}
	return unresolved(), nil
}

// DefinitionLocation is ResolveAt narrowed to a goto-definition target.
func (a *Analyzer) DefinitionLocation(ctx context.Context, file types.FileID, offset uint32) (*types.Location, error) {
	res, err := a.ResolveAt(ctx, file, offset)
	if err != nil {
		return nil, err
	}
	switch {
	case res.Binding != nil:
		return res.Binding, nil
	case res.Def != nil:
		return &types.Location{FileID: res.Def.File, Range: res.Def.Range}, nil
	}
	return nil, nil
}

func (a *Analyzer) resolveVariable(tree *syntax.Node, file types.FileID, offset uint32) *ResolveResult {
	if r := variableBindingAt(tree, offset); r != nil {
		return &ResolveResult{
			Status:  StatusResolved,
			Binding: &types.Location{FileID: file, Range: *r},
		}
	}
	return unresolved()
}

// functionResult resolves a call target. An empty module means a local
// call, which falls through to imports when the function is not defined
// in the calling file.
func (a *Analyzer) functionResult(g getter, from types.FileID, module string, na types.NameArity) (*ResolveResult, error) {
	if module == "" {
		it, err := a.itemTree(g, from)
		if err != nil {
			return cycleAware(err)
		}
		if fn, ok := matchFunction(it, na); ok {
			return a.defResult(g, from, it, fn)
		}
		if imp, ok := it.ImportOf(na); ok {
			module = imp
		} else {
			return unresolved(), nil
		}
	}
	idx, err := a.moduleIndex(g)
	if err != nil {
		return cycleAware(err)
	}
	fid, ok := idx.Modules[module]
	if !ok {
		return unresolved(), nil
	}
	it, err := a.itemTree(g, fid)
	if err != nil {
		return cycleAware(err)
	}
	fn, ok := matchFunction(it, na)
	if !ok {
		return unresolved(), nil
	}
	return a.defResult(g, fid, it, fn)
}

// matchFunction finds a function by name/arity; arity -1 matches by name
// alone, taking the lowest arity for determinism.
func matchFunction(it *ItemTree, na types.NameArity) (FunItem, bool) {
	best := FunItem{Arity: -1}
	for _, f := range it.Functions {
		if f.Name != na.Name {
			continue
		}
		if na.Arity >= 0 {
			if f.Arity == na.Arity {
				return f, true
			}
			continue
		}
		if best.Arity < 0 || f.Arity < best.Arity {
			best = f
		}
	}
	return best, best.Arity >= 0
}

func (a *Analyzer) defResult(g getter, file types.FileID, it *ItemTree, fn FunItem) (*ResolveResult, error) {
	loc, err := a.itemLocations(g, file)
	if err != nil {
		return cycleAware(err)
	}
	r, ok := loc.Functions[fn.NameArity().String()]
	if !ok {
		return unresolved(), nil
	}
	return &ResolveResult{
		Status: StatusResolved,
		Def: &Definition{
			ID: types.DefinitionID{
				Module: a.moduleName(g, file, it),
				Entity: fn.NameArity(),
				Kind:   types.SymbolFunction,
			},
			File:  file,
			Range: r,
		},
	}, nil
}

func (a *Analyzer) moduleResult(g getter, name string) (*ResolveResult, error) {
	idx, err := a.moduleIndex(g)
	if err != nil {
		return cycleAware(err)
	}
	fid, ok := idx.Modules[name]
	if !ok {
		return unresolved(), nil
	}
	loc, err := a.itemLocations(g, fid)
	if err != nil {
		return cycleAware(err)
	}
	r := types.Range{}
	if loc.Module != nil {
		r = *loc.Module
	}
	return &ResolveResult{
		Status: StatusResolved,
		Def: &Definition{
			ID: types.DefinitionID{
				Module: name,
				Kind:   types.SymbolModule,
			},
			File:  fid,
			Range: r,
		},
	}, nil
}

// resolveMacroOrRecord resolves through the visible-defs set, which folds
// in transitive includes.
func (a *Analyzer) resolveMacroOrRecord(g getter, file types.FileID, name string, macro bool) (*ResolveResult, error) {
	if name == "" {
		return unresolved(), nil
	}
	defs, err := a.visibleDefs(g, file)
	if err != nil {
		return cycleAware(err)
	}
	table := defs.Records
	kind := types.SymbolRecord
	if macro {
		table = defs.Macros
		kind = types.SymbolMacro
	}
	fid, ok := table[name]
	if !ok {
		return unresolved(), nil
	}
	loc, err := a.itemLocations(g, fid)
	if err != nil {
		return cycleAware(err)
	}
	ranges := loc.Records
	if macro {
		ranges = loc.Macros
	}
	r, ok := ranges[name]
	if !ok {
		return unresolved(), nil
	}
	it, err := a.itemTree(g, fid)
	if err != nil {
		return cycleAware(err)
	}
	return &ResolveResult{
		Status: StatusResolved,
		Def: &Definition{
			ID: types.DefinitionID{
				Module: a.moduleName(g, fid, it),
				Entity: types.NameArity{Name: name, Arity: -1},
				Kind:   kind,
			},
			File:  fid,
			Range: r,
		},
	}, nil
}

// moduleName prefers the -module attribute and falls back to the path stem,
// which is what header files end up with.
func (a *Analyzer) moduleName(g getter, file types.FileID, it *ItemTree) string {
	if it.Module != "" {
		return it.Module
	}
	p, err := a.pathOf(g, file)
	if err != nil || p == "" {
		return ""
	}
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

func macroNameOf(n *syntax.Node) string {
	if tok := macroUseToken(n); tok != nil {
		return macroName(*tok)
	}
	return ""
}

// enclosingImportModule returns the -import module when the fun-ref sits
// inside an import attribute, and "" otherwise.
func enclosingImportModule(tree *syntax.Node, ref *syntax.Node) string {
	for _, c := range tree.Children {
		if c.Node == nil || c.Node.Kind != syntax.NodeImportAttr {
			continue
		}
		if !c.Node.Range.Contains(ref.Range.Start) {
			continue
		}
		if mod, ok := attrSubject(c.Node); ok {
			return mod
		}
	}
	return ""
}

// ResolveRef resolves an extracted reference site the same way the
// confirmation step of find-references does. Diagnostics passes use it to
// test sites for resolvability without cursor offsets.
func (a *Analyzer) ResolveRef(ctx context.Context, file types.FileID, site RefSite) (*ResolveResult, error) {
	return a.resolveRef(a.reader(ctx), file, site)
}

func (a *Analyzer) resolveRef(g getter, from types.FileID, site RefSite) (*ResolveResult, error) {
	switch site.Kind {
	case RefLocalCall, RefFunLocal:
		return a.functionResult(g, from, "", site.NameArity())
	case RefRemoteCall, RefFunRemote:
		if site.Module == "" {
			return unresolved(), nil
		}
		return a.functionResult(g, from, site.Module, site.NameArity())
	case RefRecord:
		return a.resolveMacroOrRecord(g, from, site.Name, false)
	case RefMacro:
		return a.resolveMacroOrRecord(g, from, site.Name, true)
	}
	return unresolved(), nil
}

// cycleAware converts a query-cycle error into a cyclic result so callers
// surface it as a diagnostic instead of failing the whole request.
func cycleAware(err error) (*ResolveResult, error) {
	if querydb.IsCycle(err) {
		return &ResolveResult{Status: StatusCyclic}, nil
	}
	return nil, err
}

// HoverInfo renders a short description of the definition under the cursor.
// Returns "" when there is nothing useful to show.
func (a *Analyzer) HoverInfo(ctx context.Context, file types.FileID, offset uint32) (string, error) {
	res, err := a.ResolveAt(ctx, file, offset)
	if err != nil {
		return "", err
	}
	if res.Binding != nil {
		g := a.reader(ctx)
		tree, err := a.tree(g, file)
		if err != nil {
			return "", err
		}
		if tok := tree.TokenAt(res.Binding.Range.Start); tok != nil {
			return fmt.Sprintf("variable %s (bound here)", tok.Text), nil
		}
		return "", nil
	}
	if res.Def == nil {
		return "", nil
	}
	g := a.reader(ctx)
	def := res.Def
	switch def.ID.Kind {
	case types.SymbolModule:
		p, _ := a.pathOf(g, def.File)
		return fmt.Sprintf("module %s (%s)", def.ID.Module, p), nil
	case types.SymbolFunction:
		it, err := a.itemTree(g, def.File)
		if err != nil {
			return "", err
		}
		fn, ok := matchFunction(it, def.ID.Entity)
		if !ok {
			return def.ID.String(), nil
		}
		vis := "private"
		if it.IsExported(fn.NameArity()) {
			vis = "exported"
		}
		return fmt.Sprintf("%s:%s (%s, %d clause(s))",
			def.ID.Module, fn.NameArity(), vis, fn.ClauseCount), nil
	case types.SymbolRecord:
		it, err := a.itemTree(g, def.File)
		if err != nil {
			return "", err
		}
		for _, r := range it.Records {
			if r.Name == def.ID.Entity.Name {
				return fmt.Sprintf("record #%s{%s}", r.Name, strings.Join(r.Fields, ", ")), nil
			}
		}
		return fmt.Sprintf("record #%s{}", def.ID.Entity.Name), nil
	case types.SymbolMacro:
		return fmt.Sprintf("macro ?%s", def.ID.Entity.Name), nil
	}
	return "", nil
}
