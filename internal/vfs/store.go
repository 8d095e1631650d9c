package vfs

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/erlscope/erlscope/internal/types"
)

// FileContent holds one file's text at one version, plus pre-computed line
// information. Immutable after construction: edits build a new FileContent
// and a new snapshot, they never touch an existing one.
type FileContent struct {
	FileID      types.FileID
	Path        string
	Text        []byte
	Version     uint64         // per-file edit counter
	Revision    types.Revision // store revision at which this content was set
	FastHash    uint64         // xxhash over Text for quick equality checks
	LineOffsets []uint32       // byte offset of the start of each line
}

// LineCol converts a byte offset into a 1-based line/column position.
func (fc *FileContent) LineCol(offset uint32) types.LineCol {
	lo, hi := 0, len(fc.LineOffsets)
	for lo < hi {
		mid := (lo + hi) / 2
		if fc.LineOffsets[mid] <= offset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	line := lo // 1-based: lo is the count of line starts <= offset
	col := offset - fc.LineOffsets[line-1] + 1
	return types.LineCol{Line: uint32(line), Column: col}
}

// Offset converts a 1-based line/column position back to a byte offset.
// Positions past the end of the file clamp to the file length.
func (fc *FileContent) Offset(pos types.LineCol) uint32 {
	if pos.Line == 0 || int(pos.Line) > len(fc.LineOffsets) {
		return uint32(len(fc.Text))
	}
	off := fc.LineOffsets[pos.Line-1] + pos.Column - 1
	if off > uint32(len(fc.Text)) {
		return uint32(len(fc.Text))
	}
	return off
}

// storeSnapshot is an immutable view of every tracked file. Readers load it
// atomically; the writer replaces it wholesale under the write lock.
type storeSnapshot struct {
	revision types.Revision
	files    map[types.FileID]*FileContent
	pathToID map[string]types.FileID
}

// Store is the versioned source-of-truth for file text.
//
// Concurrency: reads are lock-free against an atomically loaded immutable
// snapshot. Writes are serialized by a mutex and publish a fresh snapshot
// built by shallow-copying the maps, so a reader holding an older snapshot
// keeps observing exactly the text it started with.
type Store struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[storeSnapshot]
	nextID   atomic.Uint32
	revision atomic.Uint64
}

// NewStore creates an empty source store at revision 0.
func NewStore() *Store {
	s := &Store{}
	s.snapshot.Store(&storeSnapshot{
		files:    map[types.FileID]*FileContent{},
		pathToID: map[string]types.FileID{},
	})
	return s
}

// Revision returns the current store generation.
func (s *Store) Revision() types.Revision {
	return types.Revision(s.revision.Load())
}

// SetFileText replaces the full content of the file at path, creating the
// file if it is not yet tracked. Returns the file's ID and the new store
// revision. Replacement is always whole-file; there is no partial mutation.
func (s *Store) SetFileText(path string, text []byte) (types.FileID, types.Revision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.snapshot.Load()
	id, ok := old.pathToID[path]
	if !ok {
		id = types.FileID(s.nextID.Add(1))
	}

	rev := types.Revision(s.revision.Add(1))
	version := uint64(1)
	if prev, ok := old.files[id]; ok {
		version = prev.Version + 1
	}

	fc := &FileContent{
		FileID:      id,
		Path:        path,
		Text:        text,
		Version:     version,
		Revision:    rev,
		FastHash:    xxhash.Sum64(text),
		LineOffsets: computeLineOffsets(text),
	}

	next := &storeSnapshot{
		revision: rev,
		files:    make(map[types.FileID]*FileContent, len(old.files)+1),
		pathToID: make(map[string]types.FileID, len(old.pathToID)+1),
	}
	for k, v := range old.files {
		next.files[k] = v
	}
	for k, v := range old.pathToID {
		next.pathToID[k] = v
	}
	next.files[id] = fc
	next.pathToID[path] = id

	s.snapshot.Store(next)
	return id, rev
}

// RemoveFile drops a file from the store. Returns the removed file's ID and
// the new revision, or InvalidFileID if the path was not tracked.
func (s *Store) RemoveFile(path string) (types.FileID, types.Revision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.snapshot.Load()
	id, ok := old.pathToID[path]
	if !ok {
		return types.InvalidFileID, types.Revision(s.revision.Load())
	}

	rev := types.Revision(s.revision.Add(1))
	next := &storeSnapshot{
		revision: rev,
		files:    make(map[types.FileID]*FileContent, len(old.files)),
		pathToID: make(map[string]types.FileID, len(old.pathToID)),
	}
	for k, v := range old.files {
		if k != id {
			next.files[k] = v
		}
	}
	for k, v := range old.pathToID {
		if v != id {
			next.pathToID[k] = v
		}
	}

	s.snapshot.Store(next)
	return id, rev
}

// Snapshot pins the current store state. The returned view is immutable and
// remains valid (and unchanged) for as long as the caller retains it.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{inner: s.snapshot.Load()}
}

// Snapshot is an immutable, revision-pinned view of the store.
type Snapshot struct {
	inner *storeSnapshot
}

// Revision returns the store generation this snapshot was taken at.
func (v *Snapshot) Revision() types.Revision {
	return v.inner.revision
}

// File returns the content of a file by ID, or nil if untracked.
func (v *Snapshot) File(id types.FileID) *FileContent {
	return v.inner.files[id]
}

// FileByPath returns the content of a file by path, or nil if untracked.
func (v *Snapshot) FileByPath(path string) *FileContent {
	id, ok := v.inner.pathToID[path]
	if !ok {
		return nil
	}
	return v.inner.files[id]
}

// FileIDs returns the IDs of all tracked files in ascending order.
// Deterministic ordering keeps workspace-wide query results stable.
func (v *Snapshot) FileIDs() []types.FileID {
	ids := make([]types.FileID, 0, len(v.inner.files))
	for id := range v.inner.files {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// Len returns the number of tracked files.
func (v *Snapshot) Len() int {
	return len(v.inner.files)
}

func computeLineOffsets(text []byte) []uint32 {
	offsets := make([]uint32, 1, 16)
	offsets[0] = 0
	for i, b := range text {
		if b == '\n' {
			offsets = append(offsets, uint32(i+1))
		}
	}
	return offsets
}
