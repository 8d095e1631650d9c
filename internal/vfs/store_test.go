package vfs

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlscope/erlscope/internal/types"
)

func TestSetFileTextAssignsStableIDs(t *testing.T) {
	s := NewStore()

	idA, rev1 := s.SetFileText("a.erl", []byte("-module(a).\n"))
	idB, rev2 := s.SetFileText("b.erl", []byte("-module(b).\n"))
	require.NotEqual(t, idA, idB)
	assert.Greater(t, rev2, rev1)

	// Re-setting the same path keeps the ID and bumps version.
	idA2, rev3 := s.SetFileText("a.erl", []byte("-module(a).\n%% edited\n"))
	assert.Equal(t, idA, idA2)
	assert.Greater(t, rev3, rev2)

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.File(idA).Version)
	assert.Equal(t, uint64(1), snap.File(idB).Version)
}

func TestSnapshotIsImmutableUnderEdits(t *testing.T) {
	s := NewStore()
	id, _ := s.SetFileText("a.erl", []byte("old"))

	snap := s.Snapshot()
	s.SetFileText("a.erl", []byte("new"))

	// The pinned snapshot still observes the old text.
	assert.Equal(t, "old", string(snap.File(id).Text))
	assert.Equal(t, "new", string(s.Snapshot().File(id).Text))
	assert.Less(t, snap.Revision(), s.Snapshot().Revision())
}

func TestRemoveFile(t *testing.T) {
	s := NewStore()
	id, _ := s.SetFileText("a.erl", []byte("x"))

	removed, _ := s.RemoveFile("a.erl")
	assert.Equal(t, id, removed)
	assert.Nil(t, s.Snapshot().File(id))
	assert.Nil(t, s.Snapshot().FileByPath("a.erl"))

	// Removing an untracked path is a no-op.
	gone, _ := s.RemoveFile("missing.erl")
	assert.Equal(t, types.InvalidFileID, gone)
}

func TestFastHashChangesWithContent(t *testing.T) {
	s := NewStore()
	id, _ := s.SetFileText("a.erl", []byte("foo() -> ok."))
	h1 := s.Snapshot().File(id).FastHash

	s.SetFileText("a.erl", []byte("foo() -> ok.")) // identical text
	assert.Equal(t, h1, s.Snapshot().File(id).FastHash)

	s.SetFileText("a.erl", []byte("foo() -> nok."))
	assert.NotEqual(t, h1, s.Snapshot().File(id).FastHash)
}

func TestLineColRoundTrip(t *testing.T) {
	s := NewStore()
	text := []byte("-module(a).\nfoo() ->\n    ok.\n")
	id, _ := s.SetFileText("a.erl", text)
	fc := s.Snapshot().File(id)

	tests := []struct {
		offset uint32
		want   types.LineCol
	}{
		{0, types.LineCol{Line: 1, Column: 1}},
		{8, types.LineCol{Line: 1, Column: 9}},
		{12, types.LineCol{Line: 2, Column: 1}},
		{13, types.LineCol{Line: 2, Column: 2}},
		{21, types.LineCol{Line: 3, Column: 1}},
	}
	for _, tt := range tests {
		got := fc.LineCol(tt.offset)
		assert.Equal(t, tt.want, got, "offset %d", tt.offset)
		assert.Equal(t, tt.offset, fc.Offset(got), "offset %d round trip", tt.offset)
	}
}

func TestOffsetClampsOutOfRange(t *testing.T) {
	s := NewStore()
	id, _ := s.SetFileText("a.erl", []byte("ok."))
	fc := s.Snapshot().File(id)

	assert.Equal(t, uint32(3), fc.Offset(types.LineCol{Line: 99, Column: 1}))
	assert.Equal(t, uint32(3), fc.Offset(types.LineCol{Line: 1, Column: 99}))
}

func TestConcurrentReadersSingleWriter(t *testing.T) {
	s := NewStore()
	s.SetFileText("a.erl", []byte("v0"))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				fc := snap.FileByPath("a.erl")
				if fc == nil {
					t.Error("file vanished from snapshot")
					return
				}
				// Text and revision must be mutually consistent.
				if fc.Revision > snap.Revision() {
					t.Error("content newer than its snapshot")
					return
				}
			}
		}()
	}

	for i := 1; i <= 200; i++ {
		s.SetFileText("a.erl", []byte(fmt.Sprintf("v%d", i)))
	}
	close(stop)
	wg.Wait()
}

func TestFileIDsSorted(t *testing.T) {
	s := NewStore()
	for _, p := range []string{"c.erl", "a.erl", "b.erl", "d.erl"} {
		s.SetFileText(p, []byte(p))
	}

	ids := s.Snapshot().FileIDs()
	require.Len(t, ids, 4)
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}
