package engine

import (
	"context"

	"github.com/erlscope/erlscope/internal/semantic"
	"github.com/erlscope/erlscope/internal/types"
	"github.com/erlscope/erlscope/internal/vfs"
)

// Snapshot is a read handle over the engine at a point in time. Any edit
// cancels every live snapshot: in-flight requests on it return
// context.Canceled and the caller retries on a fresh snapshot. Release
// when done.
type Snapshot struct {
	eng    *Engine
	ctx    context.Context
	cancel context.CancelFunc
	files  *vfs.Snapshot
}

// Snapshot opens a read handle. The parent context bounds every request
// made through it, in addition to edit cancellation.
func (e *Engine) Snapshot(parent context.Context) *Snapshot {
	ctx, cancel := context.WithCancel(parent)
	s := &Snapshot{
		eng:    e,
		ctx:    ctx,
		cancel: cancel,
		files:  e.store.Snapshot(),
	}
	e.snapMu.Lock()
	e.snaps[s] = struct{}{}
	e.snapMu.Unlock()
	return s
}

// Release cancels the snapshot and unregisters it. Safe to call more than
// once.
func (s *Snapshot) Release() {
	s.cancel()
	s.eng.dropSnapshot(s)
}

// Cancelled reports whether the snapshot has been invalidated.
func (s *Snapshot) Cancelled() bool {
	return s.ctx.Err() != nil
}

// File returns the file content captured at snapshot time, for position
// conversion.
func (s *Snapshot) File(id types.FileID) *vfs.FileContent {
	return s.files.File(id)
}

// FileByPath is File keyed by path.
func (s *Snapshot) FileByPath(path string) *vfs.FileContent {
	return s.files.FileByPath(path)
}

// Files lists every open file at snapshot time, in file id order.
func (s *Snapshot) Files() []*vfs.FileContent {
	ids := s.files.FileIDs()
	out := make([]*vfs.FileContent, 0, len(ids))
	for _, id := range ids {
		if fc := s.files.File(id); fc != nil {
			out = append(out, fc)
		}
	}
	return out
}

func (s *Snapshot) read() (func(), error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	s.eng.mu.RLock()
	return s.eng.mu.RUnlock, nil
}

// GotoDefinition resolves the definition site for the position, nil when
// the cursor is not on a resolvable name.
func (s *Snapshot) GotoDefinition(file types.FileID, offset uint32) (*types.Location, error) {
	done, err := s.read()
	if err != nil {
		return nil, err
	}
	defer done()
	return s.eng.analyzer.DefinitionLocation(s.ctx, file, offset)
}

// ResolveAt exposes the full resolution result, status included.
func (s *Snapshot) ResolveAt(file types.FileID, offset uint32) (*semantic.ResolveResult, error) {
	done, err := s.read()
	if err != nil {
		return nil, err
	}
	defer done()
	return s.eng.analyzer.ResolveAt(s.ctx, file, offset)
}

// FindReferences lists every reference to whatever the position resolves
// to, sorted by file then offset.
func (s *Snapshot) FindReferences(file types.FileID, offset uint32) ([]types.Location, error) {
	done, err := s.read()
	if err != nil {
		return nil, err
	}
	defer done()
	return s.eng.analyzer.ReferencesAt(s.ctx, file, offset)
}

// Hover renders a short definition summary for the position.
func (s *Snapshot) Hover(file types.FileID, offset uint32) (string, error) {
	done, err := s.read()
	if err != nil {
		return "", err
	}
	defer done()
	return s.eng.analyzer.HoverInfo(s.ctx, file, offset)
}

// Diagnostics runs every registered pass over one file.
func (s *Snapshot) Diagnostics(file types.FileID) ([]types.Diagnostic, error) {
	done, err := s.read()
	if err != nil {
		return nil, err
	}
	defer done()
	return s.eng.registry.FileDiagnostics(s.ctx, s.eng.analyzer, file)
}

// WorkspaceSymbols lists every definition in the workspace.
func (s *Snapshot) WorkspaceSymbols() ([]semantic.SymbolInfo, error) {
	done, err := s.read()
	if err != nil {
		return nil, err
	}
	defer done()
	return s.eng.analyzer.WorkspaceSymbols(s.ctx)
}
