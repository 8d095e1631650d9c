package main

import (
	"os"

	"github.com/erlscope/erlscope/internal/debug"
	"github.com/erlscope/erlscope/internal/engine"
	"github.com/erlscope/erlscope/internal/watcher"
)

// applyWatchEvent folds one debounced filesystem event into the engine.
// rel is the workspace-relative slash path used as the engine's file key.
func applyWatchEvent(eng *engine.Engine, rel string, ev watcher.Event) {
	switch ev.Op {
	case watcher.OpRemove:
		if id, ok := eng.FileID(rel); ok {
			eng.CloseFile(id)
			debug.LogWatch("closed %s", rel)
		}
	case watcher.OpWrite:
		data, err := os.ReadFile(ev.Path)
		if err != nil {
			debug.LogWatch("read %s failed: %v", rel, err)
			return
		}
		if id, ok := eng.FileID(rel); ok {
			if err := eng.ChangeFile(id, data); err != nil {
				debug.LogWatch("change %s failed: %v", rel, err)
			}
			return
		}
		if _, err := eng.OpenFile(rel, data); err != nil {
			debug.LogWatch("open %s failed: %v", rel, err)
		}
	}
}
