package semantic

import (
	"context"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/erlscope/erlscope/internal/querydb"
	"github.com/erlscope/erlscope/internal/syntax"
	"github.com/erlscope/erlscope/internal/types"
)

// Query names. file_text and file_list are inputs owned by the engine;
// everything else is derived.
const (
	QueryFileText      = "file_text"
	QueryFileList      = "file_list"
	QueryParse         = "parse"
	QueryItemTree      = "item_tree"
	QueryItemLocations = "item_locations"
	QueryFileAtoms     = "file_atoms"
	QueryFileRefs      = "file_refs"
	QueryModuleIndex   = "module_index"
	QueryNameIndex     = "name_index"
	QueryIncludes      = "include_resolution"
	QueryVisibleDefs   = "visible_defs"
)

// FileEntry pairs a tracked file with its workspace-relative path.
type FileEntry struct {
	ID   types.FileID `json:"id"`
	Path string       `json:"path"`
}

// ModuleIndex maps module names to their defining files. Derived from item
// trees only, so body edits never change its fingerprint.
type ModuleIndex struct {
	Modules map[string]types.FileID `json:"modules"`
}

// NameIndex maps a name to the files whose token stream mentions it. Used
// to prune the candidate set for find-references so the workspace is never
// scanned exhaustively.
type NameIndex struct {
	Files map[string][]types.FileID `json:"files"`
}

// ResolvedInclude is one -include entry after path resolution. Unresolvable
// includes keep InvalidFileID and analysis continues with a degraded scope.
type ResolvedInclude struct {
	Path       string       `json:"path"`
	FileID     types.FileID `json:"file_id"`
	Ambiguous  bool         `json:"ambiguous,omitempty"`
	Candidates []string     `json:"candidates,omitempty"`
}

// IncludeResolution is the per-file include graph edge set.
type IncludeResolution struct {
	Includes []ResolvedInclude `json:"includes"`
}

// VisibleDefs is the set of records and macros visible in a file: its own
// plus everything reachable through resolved includes.
type VisibleDefs struct {
	Records map[string]types.FileID `json:"records"`
	Macros  map[string]types.FileID `json:"macros"`
}

// Analyzer owns the semantic queries over a query database. Construct one
// per engine; there is no process-wide instance.
type Analyzer struct {
	db *querydb.DB
}

// NewAnalyzer registers the semantic query graph on db.
func NewAnalyzer(db *querydb.DB) *Analyzer {
	a := &Analyzer{db: db}

	db.Register(querydb.QueryDef{Name: QueryFileText, Hash: querydb.HashString})
	db.Register(querydb.QueryDef{Name: QueryFileList, Hash: querydb.HashJSON})

	db.Register(querydb.QueryDef{
		Name: QueryParse,
		// A tree is a pure function of its text, so the text is the
		// cheapest faithful fingerprint.
		Hash: func(v querydb.Value) uint64 {
			return xxhash.Sum64String(v.(*syntax.Node).Text())
		},
		Compute: func(ctx *querydb.Ctx, key querydb.Key) (querydb.Value, error) {
			text, err := ctx.Get(querydb.Key{Query: QueryFileText, File: key.File})
			if err != nil {
				return nil, err
			}
			return syntax.Parse([]byte(text.(string))), nil
		},
	})

	db.Register(querydb.QueryDef{
		Name: QueryItemTree,
		Hash: querydb.HashJSON,
		Compute: func(ctx *querydb.Ctx, key querydb.Key) (querydb.Value, error) {
			tree, err := a.tree(ctx, key.File)
			if err != nil {
				return nil, err
			}
			return extractItemTree(tree), nil
		},
	})

	db.Register(querydb.QueryDef{
		Name: QueryItemLocations,
		Hash: querydb.HashJSON,
		Compute: func(ctx *querydb.Ctx, key querydb.Key) (querydb.Value, error) {
			tree, err := a.tree(ctx, key.File)
			if err != nil {
				return nil, err
			}
			return extractItemLocations(tree), nil
		},
	})

	db.Register(querydb.QueryDef{
		Name: QueryFileAtoms,
		Hash: querydb.HashJSON,
		Compute: func(ctx *querydb.Ctx, key querydb.Key) (querydb.Value, error) {
			tree, err := a.tree(ctx, key.File)
			if err != nil {
				return nil, err
			}
			return collectNames(tree), nil
		},
	})

	db.Register(querydb.QueryDef{
		Name: QueryFileRefs,
		Hash: querydb.HashJSON,
		Compute: func(ctx *querydb.Ctx, key querydb.Key) (querydb.Value, error) {
			tree, err := a.tree(ctx, key.File)
			if err != nil {
				return nil, err
			}
			return extractRefs(tree), nil
		},
	})

	db.Register(querydb.QueryDef{
		Name: QueryModuleIndex,
		Hash: querydb.HashJSON,
		Compute: func(ctx *querydb.Ctx, key querydb.Key) (querydb.Value, error) {
			entries, err := a.files(ctx)
			if err != nil {
				return nil, err
			}
			idx := &ModuleIndex{Modules: map[string]types.FileID{}}
			for _, e := range entries {
				it, err := a.itemTree(ctx, e.ID)
				if err != nil {
					continue // missing input mid-close; skip
				}
				if it.Module == "" {
					continue
				}
				// First definition wins; entries arrive in FileID order
				// so the choice is deterministic.
				if _, dup := idx.Modules[it.Module]; !dup {
					idx.Modules[it.Module] = e.ID
				}
			}
			return idx, nil
		},
	})

	db.Register(querydb.QueryDef{
		Name: QueryNameIndex,
		Hash: querydb.HashJSON,
		Compute: func(ctx *querydb.Ctx, key querydb.Key) (querydb.Value, error) {
			entries, err := a.files(ctx)
			if err != nil {
				return nil, err
			}
			idx := &NameIndex{Files: map[string][]types.FileID{}}
			for _, e := range entries {
				v, err := ctx.Get(querydb.Key{Query: QueryFileAtoms, File: e.ID})
				if err != nil {
					continue
				}
				for _, name := range v.([]string) {
					idx.Files[name] = append(idx.Files[name], e.ID)
				}
			}
			return idx, nil
		},
	})

	db.Register(querydb.QueryDef{
		Name: QueryIncludes,
		Hash: querydb.HashJSON,
		Compute: func(ctx *querydb.Ctx, key querydb.Key) (querydb.Value, error) {
			return a.resolveIncludes(ctx, key.File)
		},
	})

	db.Register(querydb.QueryDef{
		Name: QueryVisibleDefs,
		Hash: querydb.HashJSON,
		Compute: func(ctx *querydb.Ctx, key querydb.Key) (querydb.Value, error) {
			return a.computeVisibleDefs(ctx, key.File)
		},
	})

	return a
}

// DB exposes the underlying database (stats, direct gets in tests).
func (a *Analyzer) DB() *querydb.DB {
	return a.db
}

// SetFileText stores a file's text input.
func (a *Analyzer) SetFileText(id types.FileID, text string) {
	a.db.SetInput(querydb.Key{Query: QueryFileText, File: id}, text)
}

// RemoveFileText drops a file's text input.
func (a *Analyzer) RemoveFileText(id types.FileID) {
	a.db.RemoveInput(querydb.Key{Query: QueryFileText, File: id})
}

// SetFileList stores the workspace file list, sorted by FileID for
// deterministic iteration in workspace-wide queries.
func (a *Analyzer) SetFileList(entries []FileEntry) {
	sorted := append([]FileEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	a.db.SetInput(querydb.Key{Query: QueryFileList}, sorted)
}

// --- internal read helpers (usable from both Ctx and context.Context) ---

type getter interface {
	Get(querydb.Key) (querydb.Value, error)
}

type dbGetter struct {
	ctx context.Context
	db  *querydb.DB
}

func (g dbGetter) Get(key querydb.Key) (querydb.Value, error) {
	return g.db.Get(g.ctx, key)
}

func (a *Analyzer) reader(ctx context.Context) getter {
	return dbGetter{ctx: ctx, db: a.db}
}

func (a *Analyzer) tree(g getter, id types.FileID) (*syntax.Node, error) {
	v, err := g.Get(querydb.Key{Query: QueryParse, File: id})
	if err != nil {
		return nil, err
	}
	return v.(*syntax.Node), nil
}

func (a *Analyzer) itemTree(g getter, id types.FileID) (*ItemTree, error) {
	v, err := g.Get(querydb.Key{Query: QueryItemTree, File: id})
	if err != nil {
		return nil, err
	}
	return v.(*ItemTree), nil
}

func (a *Analyzer) itemLocations(g getter, id types.FileID) (*ItemLocations, error) {
	v, err := g.Get(querydb.Key{Query: QueryItemLocations, File: id})
	if err != nil {
		return nil, err
	}
	return v.(*ItemLocations), nil
}

func (a *Analyzer) files(g getter) ([]FileEntry, error) {
	v, err := g.Get(querydb.Key{Query: QueryFileList})
	if err != nil {
		return nil, err
	}
	return v.([]FileEntry), nil
}

func (a *Analyzer) moduleIndex(g getter) (*ModuleIndex, error) {
	v, err := g.Get(querydb.Key{Query: QueryModuleIndex})
	if err != nil {
		return nil, err
	}
	return v.(*ModuleIndex), nil
}

func (a *Analyzer) nameIndex(g getter) (*NameIndex, error) {
	v, err := g.Get(querydb.Key{Query: QueryNameIndex})
	if err != nil {
		return nil, err
	}
	return v.(*NameIndex), nil
}

func (a *Analyzer) visibleDefs(g getter, id types.FileID) (*VisibleDefs, error) {
	v, err := g.Get(querydb.Key{Query: QueryVisibleDefs, File: id})
	if err != nil {
		return nil, err
	}
	return v.(*VisibleDefs), nil
}

func (a *Analyzer) fileRefs(g getter, id types.FileID) ([]RefSite, error) {
	v, err := g.Get(querydb.Key{Query: QueryFileRefs, File: id})
	if err != nil {
		return nil, err
	}
	return v.([]RefSite), nil
}

// pathOf looks a file's path up in the file list.
func (a *Analyzer) pathOf(g getter, id types.FileID) (string, error) {
	entries, err := a.files(g)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.ID == id {
			return e.Path, nil
		}
	}
	return "", nil
}

// --- public accessors used by the engine and diagnostics passes ---

// ParseTree returns the (memoized) syntax tree for a file.
func (a *Analyzer) ParseTree(ctx context.Context, id types.FileID) (*syntax.Node, error) {
	return a.tree(a.reader(ctx), id)
}

// ItemTreeOf returns the signature summary for a file.
func (a *Analyzer) ItemTreeOf(ctx context.Context, id types.FileID) (*ItemTree, error) {
	return a.itemTree(a.reader(ctx), id)
}

// ItemLocationsOf returns the definition ranges for a file.
func (a *Analyzer) ItemLocationsOf(ctx context.Context, id types.FileID) (*ItemLocations, error) {
	return a.itemLocations(a.reader(ctx), id)
}

// Files returns the tracked workspace file list.
func (a *Analyzer) Files(ctx context.Context) ([]FileEntry, error) {
	return a.files(a.reader(ctx))
}

// Modules returns the module name index.
func (a *Analyzer) Modules(ctx context.Context) (*ModuleIndex, error) {
	return a.moduleIndex(a.reader(ctx))
}

// IncludesOf returns the resolved include edges for a file.
func (a *Analyzer) IncludesOf(ctx context.Context, id types.FileID) (*IncludeResolution, error) {
	v, err := a.reader(ctx).Get(querydb.Key{Query: QueryIncludes, File: id})
	if err != nil {
		return nil, err
	}
	return v.(*IncludeResolution), nil
}

// VisibleDefsOf returns the records and macros visible in a file.
func (a *Analyzer) VisibleDefsOf(ctx context.Context, id types.FileID) (*VisibleDefs, error) {
	return a.visibleDefs(a.reader(ctx), id)
}

// RefsOf returns the reference sites extracted from a file.
func (a *Analyzer) RefsOf(ctx context.Context, id types.FileID) ([]RefSite, error) {
	return a.fileRefs(a.reader(ctx), id)
}

// PathOf returns a file's workspace path.
func (a *Analyzer) PathOf(ctx context.Context, id types.FileID) (string, error) {
	return a.pathOf(a.reader(ctx), id)
}
