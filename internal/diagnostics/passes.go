package diagnostics

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/erlscope/erlscope/internal/semantic"
	"github.com/erlscope/erlscope/internal/syntax"
	"github.com/erlscope/erlscope/internal/types"
)

// runSyntax reports the parser's error nodes. The parser recovers at form
// terminators, so one broken form yields one finding and its neighbors
// still analyze normally.
func runSyntax(ctx context.Context, a *semantic.Analyzer, file types.FileID) ([]types.Diagnostic, error) {
	tree, err := a.ParseTree(ctx, file)
	if err != nil {
		return nil, err
	}
	var out []types.Diagnostic
	for _, n := range tree.ErrorNodes() {
		out = append(out, types.Diagnostic{
			Pass:     "syntax",
			Severity: types.SeverityError,
			Message:  "syntax error: unparsable form",
			Location: types.Location{FileID: file, Range: n.Range},
		})
	}
	return out, nil
}

// runModuleMismatch checks that -module(name) matches the file name stem.
func runModuleMismatch(ctx context.Context, a *semantic.Analyzer, file types.FileID) ([]types.Diagnostic, error) {
	it, err := a.ItemTreeOf(ctx, file)
	if err != nil {
		return nil, err
	}
	if it.Module == "" {
		return nil, nil // header files carry no -module attribute
	}
	p, err := a.PathOf(ctx, file)
	if err != nil || p == "" {
		return nil, err
	}
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if it.Module == stem {
		return nil, nil
	}
	loc := types.Location{FileID: file}
	if locs, err := a.ItemLocationsOf(ctx, file); err == nil && locs.Module != nil {
		loc.Range = *locs.Module
	}
	return []types.Diagnostic{{
		Pass:     "module_mismatch",
		Severity: types.SeverityError,
		Message:  fmt.Sprintf("module name %q does not match file name %q", it.Module, base),
		Location: loc,
	}}, nil
}

// runInclude reports -include / -include_lib targets that resolve to no
// workspace file, or to more than one. Resolution itself stays tolerant;
// only the diagnostic surfaces the problem.
func runInclude(ctx context.Context, a *semantic.Analyzer, file types.FileID) ([]types.Diagnostic, error) {
	inc, err := a.IncludesOf(ctx, file)
	if err != nil {
		return nil, err
	}
	if len(inc.Includes) == 0 {
		return nil, nil
	}
	tree, err := a.ParseTree(ctx, file)
	if err != nil {
		return nil, err
	}
	ranges := includeTargetRanges(tree)

	var out []types.Diagnostic
	for i, r := range inc.Includes {
		loc := types.Location{FileID: file}
		if i < len(ranges) {
			loc.Range = ranges[i]
		}
		switch {
		case r.FileID == types.InvalidFileID:
			out = append(out, types.Diagnostic{
				Pass:     "include",
				Severity: types.SeverityWarning,
				Message:  fmt.Sprintf("include file %q not found in the workspace", r.Path),
				Location: loc,
			})
		case r.Ambiguous:
			out = append(out, types.Diagnostic{
				Pass:     "include",
				Severity: types.SeverityWarning,
				Message:  fmt.Sprintf("include %q matches %d workspace files", r.Path, len(r.Candidates)),
				Location: loc,
				Related:  "candidates: " + strings.Join(r.Candidates, ", "),
			})
		}
	}
	return out, nil
}

// includeTargetRanges collects the string-literal range of each include
// attribute in form order, matching the order of IncludeResolution entries.
func includeTargetRanges(tree *syntax.Node) []types.Range {
	var out []types.Range
	for _, c := range tree.Children {
		if c.Node == nil || c.Node.Kind != syntax.NodeIncludeAttr {
			continue
		}
		if tok := c.Node.FirstToken(syntax.TokenString); tok != nil {
			out = append(out, tok.Range)
		}
	}
	return out
}

// autoImported lists BIFs callable without a module prefix. Calls to these
// never count as unresolved.
var autoImported = map[string]bool{
	"abs/1": true, "apply/2": true, "apply/3": true, "atom_to_binary/1": true,
	"atom_to_list/1": true, "binary_to_atom/1": true, "binary_to_list/1": true,
	"binary_to_term/1": true, "bit_size/1": true, "byte_size/1": true,
	"element/2": true, "erase/0": true, "erase/1": true, "error/1": true,
	"error/2": true, "error/3": true, "exit/1": true, "exit/2": true,
	"float/1": true, "float_to_list/1": true, "get/0": true, "get/1": true,
	"hd/1": true, "integer_to_binary/1": true, "integer_to_list/1": true,
	"iolist_to_binary/1": true, "is_atom/1": true, "is_binary/1": true,
	"is_boolean/1": true, "is_float/1": true, "is_function/1": true,
	"is_function/2": true, "is_integer/1": true, "is_list/1": true,
	"is_map/1": true, "is_map_key/2": true, "is_number/1": true,
	"is_pid/1": true, "is_process_alive/1": true, "is_record/2": true,
	"is_reference/1": true, "is_tuple/1": true, "length/1": true,
	"link/1": true, "list_to_atom/1": true, "list_to_binary/1": true,
	"list_to_integer/1": true, "list_to_tuple/1": true, "make_ref/0": true,
	"map_get/2": true, "map_size/1": true, "max/2": true, "min/2": true,
	"monitor/2": true, "node/0": true, "node/1": true, "now/0": true,
	"put/2": true, "round/1": true, "self/0": true, "setelement/3": true,
	"size/1": true, "spawn/1": true, "spawn/3": true, "spawn_link/1": true,
	"spawn_link/3": true, "spawn_monitor/1": true, "split_binary/2": true,
	"term_to_binary/1": true, "throw/1": true, "tl/1": true,
	"trunc/1": true, "tuple_size/1": true, "tuple_to_list/1": true,
	"unlink/1": true, "whereis/1": true,
}

// predefinedMacros never need a -define.
var predefinedMacros = map[string]bool{
	"MODULE": true, "MODULE_STRING": true, "FILE": true, "LINE": true,
	"FUNCTION_NAME": true, "FUNCTION_ARITY": true, "MACHINE": true,
	"OTP_RELEASE": true, "FEATURE_AVAILABLE": true, "FEATURE_ENABLED": true,
}

// runUnresolved flags reference sites that resolve nowhere. Remote calls
// into modules outside the workspace are skipped: the target is simply not
// visible, not necessarily wrong.
func runUnresolved(ctx context.Context, a *semantic.Analyzer, file types.FileID) ([]types.Diagnostic, error) {
	refs, err := a.RefsOf(ctx, file)
	if err != nil {
		return nil, err
	}
	idx, err := a.Modules(ctx)
	if err != nil {
		return nil, err
	}
	it, err := a.ItemTreeOf(ctx, file)
	if err != nil {
		return nil, err
	}

	var out []types.Diagnostic
	for _, site := range refs {
		switch site.Kind {
		case semantic.RefLocalCall, semantic.RefFunLocal:
			if autoImported[site.NameArity().String()] {
				continue
			}
		case semantic.RefRemoteCall, semantic.RefFunRemote:
			if site.Module == "" {
				continue // dynamic target
			}
			if _, known := idx.Modules[site.Module]; !known {
				continue // external module
			}
		case semantic.RefMacro:
			if predefinedMacros[site.Name] {
				continue
			}
		}
		res, err := a.ResolveRef(ctx, file, site)
		if err != nil {
			return nil, err
		}
		switch res.Status {
		case semantic.StatusResolved:
			continue
		case semantic.StatusCyclic:
			out = append(out, types.Diagnostic{
				Pass:     "cycle",
				Severity: types.SeverityWarning,
				Message:  fmt.Sprintf("resolution of %s hit a dependency cycle", site.Name),
				Location: types.Location{FileID: file, Range: site.NameRange},
			})
			continue
		}
		out = append(out, unresolvedDiagnostic(file, site, it))
	}
	return out, nil
}

func unresolvedDiagnostic(file types.FileID, site semantic.RefSite, it *semantic.ItemTree) types.Diagnostic {
	d := types.Diagnostic{
		Pass:     "unresolved",
		Severity: types.SeverityWarning,
		Location: types.Location{FileID: file, Range: site.NameRange},
	}
	switch site.Kind {
	case semantic.RefMacro:
		d.Message = fmt.Sprintf("undefined macro ?%s", site.Name)
	case semantic.RefRecord:
		d.Message = fmt.Sprintf("undefined record #%s", site.Name)
	case semantic.RefRemoteCall, semantic.RefFunRemote:
		d.Message = fmt.Sprintf("function %s:%s is not defined", site.Module, site.NameArity())
	default:
		d.Message = fmt.Sprintf("function %s is not defined", site.NameArity())
		if hint := didYouMean(site.Name, it); hint != "" {
			d.Related = hint
		}
	}
	return d
}

// didYouMean suggests the closest same-file function name for an
// unresolved local call.
func didYouMean(name string, it *semantic.ItemTree) string {
	best := ""
	var bestScore float32
	for _, f := range it.Functions {
		if f.Name == name {
			continue // same name, wrong arity; arity is already in the message
		}
		score, err := edlib.StringsSimilarity(name, f.Name, edlib.JaroWinkler)
		if err != nil || score < 0.85 {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = f.NameArity().String()
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf("did you mean %s?", best)
}

// runUnusedFunction flags private functions nothing in their own module
// references. Exported functions are part of the module's surface and are
// never reported.
func runUnusedFunction(ctx context.Context, a *semantic.Analyzer, file types.FileID) ([]types.Diagnostic, error) {
	it, err := a.ItemTreeOf(ctx, file)
	if err != nil {
		return nil, err
	}
	if it.Module == "" {
		return nil, nil
	}
	refs, err := a.RefsOf(ctx, file)
	if err != nil {
		return nil, err
	}

	used := map[string]bool{}
	usedName := map[string]bool{}
	for _, site := range refs {
		local := site.Kind == semantic.RefLocalCall || site.Kind == semantic.RefFunLocal ||
			((site.Kind == semantic.RefRemoteCall || site.Kind == semantic.RefFunRemote) && site.Module == it.Module)
		if !local {
			continue
		}
		if site.Arity >= 0 {
			used[site.NameArity().String()] = true
		} else {
			usedName[site.Name] = true
		}
	}

	locs, err := a.ItemLocationsOf(ctx, file)
	if err != nil {
		return nil, err
	}
	var out []types.Diagnostic
	for _, f := range it.Functions {
		na := f.NameArity()
		if it.IsExported(na) || used[na.String()] || usedName[f.Name] {
			continue
		}
		r, ok := locs.Functions[na.String()]
		if !ok {
			continue
		}
		out = append(out, types.Diagnostic{
			Pass:     "unused_function",
			Severity: types.SeverityWarning,
			Message:  fmt.Sprintf("function %s is never used", na),
			Location: types.Location{FileID: file, Range: r},
		})
	}
	return out, nil
}
