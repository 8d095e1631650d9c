// Package discovery finds the Erlang sources of a workspace on disk and
// feeds them into the engine.
package discovery

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/erlscope/erlscope/internal/debug"
	"github.com/erlscope/erlscope/internal/engine"
	"github.com/erlscope/erlscope/internal/types"
)

// Options controls a workspace scan.
type Options struct {
	Root string
	// Include are doublestar patterns over slash-separated relative paths.
	// Empty means the default Erlang source set.
	Include []string
	// Exclude patterns win over includes.
	Exclude []string
	// UseGitignore honors the root .gitignore when present.
	UseGitignore bool
	// MaxFileSize skips larger files; 0 means no limit here (the engine
	// still enforces its own).
	MaxFileSize int64
}

// DefaultInclude covers Erlang sources and headers.
var DefaultInclude = []string{"**/*.erl", "**/*.hrl"}

// DefaultExclude skips build output and VCS metadata.
var DefaultExclude = []string{"_build/**", ".git/**", "deps/.git/**", "**/.eunit/**"}

// File is one discovered source file.
type File struct {
	// Path is workspace-relative with forward slashes.
	Path string
	// AbsPath locates the file on disk.
	AbsPath string
}

// Discover walks the root and returns matching files in walk order.
func Discover(opts Options) ([]File, error) {
	include := opts.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	exclude := append([]string{}, DefaultExclude...)
	exclude = append(exclude, opts.Exclude...)

	var gi *ignore.GitIgnore
	if opts.UseGitignore {
		if g, err := ignore.CompileIgnoreFile(filepath.Join(opts.Root, ".gitignore")); err == nil {
			gi = g
		}
	}

	var out []File
	err := filepath.WalkDir(opts.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			debug.Logf("discovery: skipping %s: %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(opts.Root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if matchesAny(exclude, rel+"/") || matchesAny(exclude, rel) {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchesAny(include, rel) || matchesAny(exclude, rel) {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if opts.MaxFileSize > 0 {
			if info, err := d.Info(); err == nil && info.Size() > opts.MaxFileSize {
				debug.Logf("discovery: %s exceeds size limit, skipped", rel)
				return nil
			}
		}
		if len(out) >= types.DefaultMaxFileCount {
			debug.Logf("discovery: file cap reached at %s, stopping", rel)
			return fs.SkipAll
		}
		out = append(out, File{Path: rel, AbsPath: p})
		return nil
	})
	return out, err
}

func matchesAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// looksBinary sniffs for NUL bytes in the head of the content; generated
// or misnamed binary files get skipped rather than parsed into noise.
func looksBinary(data []byte) bool {
	head := data
	if len(head) > types.BinaryPreCheckBytes {
		head = head[:types.BinaryPreCheckBytes]
	}
	return bytes.IndexByte(head, 0) >= 0
}

// LoadWorkspace discovers sources and opens each in the engine. Returns
// how many files were loaded.
func LoadWorkspace(eng *engine.Engine, opts Options) (int, error) {
	files, err := Discover(opts)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, f := range files {
		data, err := os.ReadFile(f.AbsPath)
		if err != nil {
			debug.Logf("discovery: read %s failed: %v", f.Path, err)
			continue
		}
		if looksBinary(data) {
			debug.Logf("discovery: %s looks binary, skipped", f.Path)
			continue
		}
		if _, err := eng.OpenFile(f.Path, data); err != nil {
			debug.Logf("discovery: open %s failed: %v", f.Path, err)
			continue
		}
		loaded++
	}
	debug.LogEngine("workspace load complete: %d of %d files", loaded, len(files))
	return loaded, nil
}
