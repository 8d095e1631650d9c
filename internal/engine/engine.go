// Package engine ties the file store, query database, semantic model and
// diagnostics passes together behind one facade. Edits go through the
// engine; reads go through snapshots, which edits cancel.
package engine

import (
	"sync"

	"github.com/erlscope/erlscope/internal/debug"
	"github.com/erlscope/erlscope/internal/diagnostics"
	"github.com/erlscope/erlscope/internal/errors"
	"github.com/erlscope/erlscope/internal/querydb"
	"github.com/erlscope/erlscope/internal/semantic"
	"github.com/erlscope/erlscope/internal/types"
	"github.com/erlscope/erlscope/internal/vfs"
)

// Options tunes an engine.
type Options struct {
	// MaxCachedNodes caps the derived-value cache; 0 derives a cap from
	// the default memory budget.
	MaxCachedNodes int
	// MaxFileSize rejects larger files on open; 0 uses the default.
	MaxFileSize int
}

// defaultCachedNodes budgets the derived-value cache by memory, assuming
// roughly 4KiB per cached node.
const defaultCachedNodes = types.DefaultMaxMemoryMB * 1024 / 4

// Engine owns the mutable analysis world. Writers take the world lock
// exclusively after cancelling outstanding snapshots; snapshot reads share
// it.
type Engine struct {
	mu       sync.RWMutex
	store    *vfs.Store
	db       *querydb.DB
	analyzer *semantic.Analyzer
	registry *diagnostics.Registry
	maxSize  int

	snapMu sync.Mutex
	snaps  map[*Snapshot]struct{}
}

// New builds an engine with the built-in diagnostics passes.
func New(opts Options) *Engine {
	maxSize := opts.MaxFileSize
	if maxSize == 0 {
		maxSize = types.DefaultMaxFileSize
	}
	maxNodes := opts.MaxCachedNodes
	if maxNodes == 0 {
		maxNodes = defaultCachedNodes
	}
	db := querydb.New(maxNodes)
	e := &Engine{
		store:    vfs.NewStore(),
		db:       db,
		analyzer: semantic.NewAnalyzer(db),
		registry: diagnostics.NewRegistry(),
		maxSize:  maxSize,
		snaps:    map[*Snapshot]struct{}{},
	}
	e.analyzer.SetFileList(nil)
	return e
}

// Analyzer exposes the semantic model for callers that manage their own
// locking, such as the index exporter.
func (e *Engine) Analyzer() *semantic.Analyzer {
	return e.analyzer
}

// Registry exposes the diagnostics registry for custom passes.
func (e *Engine) Registry() *diagnostics.Registry {
	return e.registry
}

// OpenFile adds or replaces a file by path and returns its id. The id is
// stable across subsequent edits to the same path.
func (e *Engine) OpenFile(path string, text []byte) (types.FileID, error) {
	if len(text) > e.maxSize {
		return types.InvalidFileID, errors.NewAnalysisError("open", nil).
			WithType(errors.ErrorTypeFileTooLarge).
			WithFile(types.InvalidFileID, path).
			WithRecoverable(true)
	}
	e.cancelSnapshots()
	e.mu.Lock()
	defer e.mu.Unlock()

	id, rev := e.store.SetFileText(path, text)
	e.analyzer.SetFileText(id, string(text))
	e.syncFileList()
	debug.LogEngine("open %s as file %d (rev %d)", path, id, rev)
	return id, nil
}

// ChangeFile replaces the text of an already open file.
func (e *Engine) ChangeFile(id types.FileID, text []byte) error {
	if len(text) > e.maxSize {
		return errors.NewAnalysisError("change", nil).
			WithType(errors.ErrorTypeFileTooLarge).
			WithFile(id, "").
			WithRecoverable(true)
	}
	e.cancelSnapshots()
	e.mu.Lock()
	defer e.mu.Unlock()

	fc := e.store.Snapshot().File(id)
	if fc == nil {
		return errors.NewAnalysisError("change", nil).
			WithType(errors.ErrorTypeFileNotFound).
			WithFile(id, "")
	}
	_, rev := e.store.SetFileText(fc.Path, text)
	e.analyzer.SetFileText(id, string(text))
	debug.LogEngine("change file %d (rev %d)", id, rev)
	return nil
}

// CloseFile drops a file from the analysis world.
func (e *Engine) CloseFile(id types.FileID) {
	e.cancelSnapshots()
	e.mu.Lock()
	defer e.mu.Unlock()

	fc := e.store.Snapshot().File(id)
	if fc == nil {
		return
	}
	e.store.RemoveFile(fc.Path)
	e.analyzer.RemoveFileText(id)
	e.syncFileList()
	debug.LogEngine("close file %d (%s)", id, fc.Path)
}

// FileID looks up the id for an open path.
func (e *Engine) FileID(path string) (types.FileID, bool) {
	fc := e.store.Snapshot().FileByPath(path)
	if fc == nil {
		return types.InvalidFileID, false
	}
	return fc.FileID, true
}

// syncFileList pushes the store's path set into the query layer. Callers
// hold the world lock.
func (e *Engine) syncFileList() {
	snap := e.store.Snapshot()
	entries := make([]semantic.FileEntry, 0, snap.Len())
	for _, id := range snap.FileIDs() {
		entries = append(entries, semantic.FileEntry{ID: id, Path: snap.File(id).Path})
	}
	e.analyzer.SetFileList(entries)
}

// Stats reports cache behavior counters.
func (e *Engine) Stats() querydb.Stats {
	return e.db.Stats()
}

// FileCount reports how many files are open.
func (e *Engine) FileCount() int {
	return e.store.Snapshot().Len()
}

// Store exposes the file store for position conversion.
func (e *Engine) Store() *vfs.Store {
	return e.store
}

func (e *Engine) cancelSnapshots() {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	for s := range e.snaps {
		s.cancel()
	}
}

func (e *Engine) dropSnapshot(s *Snapshot) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	delete(e.snaps, s)
}
