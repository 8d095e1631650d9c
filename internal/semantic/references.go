package semantic

import (
	"context"
	"sort"

	"github.com/erlscope/erlscope/internal/syntax"
	"github.com/erlscope/erlscope/internal/types"
)

// SymbolInfo is one workspace symbol with its location, the unit of
// workspace-symbol search and index export.
type SymbolInfo struct {
	ID       types.DefinitionID `json:"id"`
	File     types.FileID       `json:"file"`
	Path     string             `json:"path"`
	Range    types.Range        `json:"range"`
	Exported bool               `json:"exported,omitempty"`
}

// ReferencesAt finds every reference to whatever the cursor resolves to.
// Variables stay clause-local; everything else goes through the name index.
func (a *Analyzer) ReferencesAt(ctx context.Context, file types.FileID, offset uint32) ([]types.Location, error) {
	res, err := a.ResolveAt(ctx, file, offset)
	if err != nil {
		return nil, err
	}
	if res.Binding != nil {
		g := a.reader(ctx)
		tree, err := a.tree(g, file)
		if err != nil {
			return nil, err
		}
		var out []types.Location
		for _, r := range variableOccurrences(tree, offset) {
			out = append(out, types.Location{FileID: file, Range: r})
		}
		return out, nil
	}
	if res.Def == nil {
		return nil, nil
	}
	return a.ReferencesTo(ctx, res.Def)
}

// ReferencesTo finds every use site of a definition. Candidate files come
// from the name index, so only files that mention the name at all get their
// reference sites re-resolved; each site is confirmed by resolution before
// it is reported, which keeps same-named functions in other modules out of
// the result.
func (a *Analyzer) ReferencesTo(ctx context.Context, def *Definition) ([]types.Location, error) {
	g := a.reader(ctx)
	name := def.ID.Entity.Name
	if def.ID.Kind == types.SymbolModule {
		return a.moduleReferences(ctx, def)
	}
	idx, err := a.nameIndex(g)
	if err != nil {
		return nil, err
	}
	var out []types.Location
	for _, fid := range idx.Files[name] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		refs, err := a.fileRefs(g, fid)
		if err != nil {
			continue
		}
		for _, site := range refs {
			if site.Name != name {
				continue
			}
			if !kindCompatible(def.ID.Kind, site.Kind) {
				continue
			}
			ok, err := a.siteResolvesTo(g, fid, site, def)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, types.Location{FileID: fid, Range: site.NameRange})
			}
		}
	}
	sortLocations(out)
	return out, nil
}

func kindCompatible(kind types.SymbolKind, ref RefKind) bool {
	switch kind {
	case types.SymbolFunction:
		return ref == RefLocalCall || ref == RefRemoteCall ||
			ref == RefFunLocal || ref == RefFunRemote
	case types.SymbolRecord:
		return ref == RefRecord
	case types.SymbolMacro:
		return ref == RefMacro
	}
	return false
}

// siteResolvesTo re-resolves a reference site and checks it lands on def.
func (a *Analyzer) siteResolvesTo(g getter, from types.FileID, site RefSite, def *Definition) (bool, error) {
	res, err := a.resolveRef(g, from, site)
	if err != nil {
		return false, err
	}
	if res.Def == nil {
		return false, nil
	}
	return res.Def.ID == def.ID && res.Def.File == def.File, nil
}

// moduleReferences finds atom tokens naming the module across the
// workspace. Reference sites only record function-name ranges, so module
// mentions come from a token scan of the files the name index selects.
func (a *Analyzer) moduleReferences(ctx context.Context, def *Definition) ([]types.Location, error) {
	g := a.reader(ctx)
	idx, err := a.nameIndex(g)
	if err != nil {
		return nil, err
	}
	var out []types.Location
	for _, fid := range idx.Files[def.ID.Module] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tree, err := a.tree(g, fid)
		if err != nil {
			continue
		}
		for _, tok := range tree.Tokens(nil) {
			if tok.Kind != syntax.TokenAtom || syntax.AtomText(tok) != def.ID.Module {
				continue
			}
			// skip the defining -module attribute itself
			if fid == def.File && tok.Range == def.Range {
				continue
			}
			out = append(out, types.Location{FileID: fid, Range: tok.Range})
		}
	}
	sortLocations(out)
	return out, nil
}

func sortLocations(locs []types.Location) {
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].FileID != locs[j].FileID {
			return locs[i].FileID < locs[j].FileID
		}
		return locs[i].Range.Start < locs[j].Range.Start
	})
}

// WorkspaceSymbols lists every definition in the workspace: modules,
// functions, records and macros with their defining ranges.
func (a *Analyzer) WorkspaceSymbols(ctx context.Context) ([]SymbolInfo, error) {
	g := a.reader(ctx)
	entries, err := a.files(g)
	if err != nil {
		return nil, err
	}
	var out []SymbolInfo
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		it, err := a.itemTree(g, e.ID)
		if err != nil {
			continue
		}
		loc, err := a.itemLocations(g, e.ID)
		if err != nil {
			continue
		}
		mod := a.moduleName(g, e.ID, it)
		if it.Module != "" && loc.Module != nil {
			out = append(out, SymbolInfo{
				ID:   types.DefinitionID{Module: it.Module, Kind: types.SymbolModule},
				File: e.ID, Path: e.Path, Range: *loc.Module,
			})
		}
		for _, f := range it.Functions {
			r, ok := loc.Functions[f.NameArity().String()]
			if !ok {
				continue
			}
			out = append(out, SymbolInfo{
				ID: types.DefinitionID{
					Module: mod,
					Entity: f.NameArity(),
					Kind:   types.SymbolFunction,
				},
				File: e.ID, Path: e.Path, Range: r,
				Exported: it.IsExported(f.NameArity()),
			})
		}
		for _, rec := range it.Records {
			r, ok := loc.Records[rec.Name]
			if !ok {
				continue
			}
			out = append(out, SymbolInfo{
				ID: types.DefinitionID{
					Module: mod,
					Entity: types.NameArity{Name: rec.Name, Arity: -1},
					Kind:   types.SymbolRecord,
				},
				File: e.ID, Path: e.Path, Range: r,
			})
		}
		for _, m := range it.Macros {
			r, ok := loc.Macros[m]
			if !ok {
				continue
			}
			out = append(out, SymbolInfo{
				ID: types.DefinitionID{
					Module: mod,
					Entity: types.NameArity{Name: m, Arity: -1},
					Kind:   types.SymbolMacro,
				},
				File: e.ID, Path: e.Path, Range: r,
			})
		}
	}
	return out, nil
}
