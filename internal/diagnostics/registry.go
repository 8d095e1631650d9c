// Package diagnostics runs analysis passes over single files. Passes are
// independent: one pass failing degrades to an internal finding while the
// rest still report.
package diagnostics

import (
	"context"
	"fmt"
	"sort"

	"github.com/erlscope/erlscope/internal/debug"
	"github.com/erlscope/erlscope/internal/semantic"
	"github.com/erlscope/erlscope/internal/types"
)

// Pass is one diagnostics producer.
type Pass struct {
	ID          string
	Description string
	Run         func(ctx context.Context, a *semantic.Analyzer, file types.FileID) ([]types.Diagnostic, error)
}

// Registry holds the registered passes in registration order.
type Registry struct {
	passes []Pass
}

// NewRegistry returns a registry with the built-in passes installed.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(Pass{ID: "syntax", Description: "syntax errors from the parser", Run: runSyntax})
	r.Register(Pass{ID: "module_mismatch", Description: "-module name must match the file name", Run: runModuleMismatch})
	r.Register(Pass{ID: "include", Description: "includes that resolve nowhere or to more than one file", Run: runInclude})
	r.Register(Pass{ID: "unresolved", Description: "calls, macros and records that resolve nowhere", Run: runUnresolved})
	r.Register(Pass{ID: "unused_function", Description: "private functions with no callers", Run: runUnusedFunction})
	return r
}

// Register appends a pass. Pass IDs should be unique; later findings carry
// the ID verbatim so clients can filter by it.
func (r *Registry) Register(p Pass) {
	r.passes = append(r.passes, p)
}

// Passes lists the registered passes.
func (r *Registry) Passes() []Pass {
	return r.passes
}

// Disable removes passes by ID. Unknown IDs are ignored.
func (r *Registry) Disable(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := r.passes[:0]
	for _, p := range r.passes {
		if !drop[p.ID] {
			kept = append(kept, p)
		}
	}
	r.passes = kept
}

// FileDiagnostics runs every pass against one file and merges the findings,
// sorted by position then pass ID. A pass returning an error contributes a
// single internal finding instead of aborting the request; context
// cancellation still aborts.
func (r *Registry) FileDiagnostics(ctx context.Context, a *semantic.Analyzer, file types.FileID) ([]types.Diagnostic, error) {
	var out []types.Diagnostic
	for _, p := range r.passes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := p.Run(ctx, a, file)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			debug.Logf("diagnostics pass %s failed on file %d: %v", p.ID, file, err)
			out = append(out, types.Diagnostic{
				Pass:     p.ID,
				Severity: types.SeverityInfo,
				Message:  fmt.Sprintf("analysis pass %s failed: %v", p.ID, err),
				Location: types.Location{FileID: file},
			})
			continue
		}
		out = append(out, found...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Location.Range.Start != out[j].Location.Range.Start {
			return out[i].Location.Range.Start < out[j].Location.Range.Start
		}
		return out[i].Pass < out[j].Pass
	})
	return out, nil
}
