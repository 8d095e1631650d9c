// Package watcher batches filesystem change notifications for the engine.
// Raw fsnotify events arrive in bursts (editors write, rename and chmod in
// quick succession), so events are debounced and delivered as one batch.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/erlscope/erlscope/internal/debug"
)

// Op classifies a change.
type Op string

const (
	OpWrite  Op = "write"
	OpRemove Op = "remove"
)

// Event is one debounced file change.
type Event struct {
	Path string
	Op   Op
}

// Watcher watches directory trees and delivers debounced batches of
// Erlang source changes.
type Watcher struct {
	fw       *fsnotify.Watcher
	root     string
	debounce time.Duration
	onBatch  func([]Event)

	mu      sync.Mutex
	pending map[string]Event
	timer   *time.Timer
	closed  bool
}

// New builds a watcher. onBatch runs on the watcher goroutine; keep it
// quick or hand off.
func New(root string, debounce time.Duration, onBatch func([]Event)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fw:       fw,
		root:     root,
		debounce: debounce,
		onBatch:  onBatch,
		pending:  map[string]Event{},
	}
	if err := w.addRecursive(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == ".git" || name == "_build" {
			return filepath.SkipDir
		}
		return w.fw.Add(p)
	})
}

// Run pumps events until the context ends or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			debug.LogWatch("fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	// New directories need watching before their contents change.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name)
			return
		}
	}
	if !relevant(ev.Name) {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	op := OpWrite
	if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
		op = OpRemove
	} else if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending[rel] = Event{Path: rel, Op: op}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	} else {
		w.timer.Reset(w.debounce)
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	batch := make([]Event, 0, len(w.pending))
	for _, ev := range w.pending {
		batch = append(batch, ev)
	}
	w.pending = map[string]Event{}
	w.timer = nil
	closed := w.closed
	w.mu.Unlock()

	if closed || len(batch) == 0 {
		return
	}
	debug.LogWatch("flushing %d change(s)", len(batch))
	w.onBatch(batch)
}

// Close stops watching and drops any pending batch.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	return w.fw.Close()
}

func relevant(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".erl" || ext == ".hrl"
}
