package semantic

import (
	"path"
	"sort"
	"strings"

	"github.com/erlscope/erlscope/internal/querydb"
	"github.com/erlscope/erlscope/internal/types"
)

// resolveIncludes maps a file's -include / -include_lib attributes to
// tracked files. Resolution is tolerant: unresolvable entries keep
// InvalidFileID and ambiguous ones pick the lexicographically smallest
// candidate so results stay deterministic.
func (a *Analyzer) resolveIncludes(g getter, id types.FileID) (*IncludeResolution, error) {
	it, err := a.itemTree(g, id)
	if err != nil {
		return nil, err
	}
	res := &IncludeResolution{}
	if len(it.Includes) == 0 {
		return res, nil
	}
	entries, err := a.files(g)
	if err != nil {
		return nil, err
	}
	ownPath := ""
	for _, e := range entries {
		if e.ID == id {
			ownPath = e.Path
			break
		}
	}
	for _, inc := range it.Includes {
		res.Includes = append(res.Includes, resolveOneInclude(inc, ownPath, entries))
	}
	return res, nil
}

func resolveOneInclude(inc IncludeItem, ownPath string, entries []FileEntry) ResolvedInclude {
	out := ResolvedInclude{Path: inc.Path, FileID: types.InvalidFileID}
	target := path.Clean(inc.Path)

	// -include resolves relative to the including file first.
	if !inc.Lib && ownPath != "" {
		rel := path.Join(path.Dir(ownPath), target)
		for _, e := range entries {
			if path.Clean(e.Path) == rel {
				out.FileID = e.ID
				return out
			}
		}
	}

	// -include_lib paths start with an application name that maps to a
	// checkout directory we cannot see, so match on the remaining path.
	suffix := target
	if inc.Lib {
		if i := strings.IndexByte(target, '/'); i >= 0 {
			suffix = target[i+1:]
		}
	}

	var candidates []FileEntry
	for _, e := range entries {
		p := path.Clean(e.Path)
		if p == suffix || strings.HasSuffix(p, "/"+suffix) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		// Last resort: basename match, common when include dirs are
		// not mirrored in the workspace layout.
		base := path.Base(target)
		for _, e := range entries {
			if path.Base(e.Path) == base {
				candidates = append(candidates, e)
			}
		}
	}
	switch len(candidates) {
	case 0:
		return out
	case 1:
		out.FileID = candidates[0].ID
		return out
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Path < candidates[j].Path
	})
	out.FileID = candidates[0].ID
	out.Ambiguous = true
	for _, c := range candidates {
		out.Candidates = append(out.Candidates, c.Path)
	}
	return out
}

// computeVisibleDefs folds the records and macros of a file and all files
// reachable through resolved includes. The traversal keeps its own visited
// set rather than recursing through the query layer, so include cycles
// terminate without tripping the database's cycle detector.
func (a *Analyzer) computeVisibleDefs(g getter, id types.FileID) (*VisibleDefs, error) {
	defs := &VisibleDefs{
		Records: map[string]types.FileID{},
		Macros:  map[string]types.FileID{},
	}
	visited := map[types.FileID]struct{}{}
	queue := []types.FileID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}

		it, err := a.itemTree(g, cur)
		if err != nil {
			if cur == id {
				return nil, err
			}
			continue // stale include edge, skip
		}
		// Nearest definition wins: the file itself, then includes in
		// declaration order, breadth first.
		for _, r := range it.Records {
			if _, dup := defs.Records[r.Name]; !dup {
				defs.Records[r.Name] = cur
			}
		}
		for _, m := range it.Macros {
			if _, dup := defs.Macros[m]; !dup {
				defs.Macros[m] = cur
			}
		}

		v, err := g.Get(querydb.Key{Query: QueryIncludes, File: cur})
		if err != nil {
			continue
		}
		for _, inc := range v.(*IncludeResolution).Includes {
			if inc.FileID != types.InvalidFileID {
				queue = append(queue, inc.FileID)
			}
		}
	}
	return defs, nil
}
