package engine

import (
	"context"
	goerrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/erlscope/erlscope/internal/errors"
	"github.com/erlscope/erlscope/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const libSrc = `-module(lib).
-export([add/2]).

add(A, B) -> A + B.
`

const appSrc = `-module(app).
-export([run/0]).

run() -> lib:add(1, 2).
`

func newEngine(t *testing.T) (*Engine, types.FileID, types.FileID) {
	t.Helper()
	e := New(Options{})
	lib, err := e.OpenFile("src/lib.erl", []byte(libSrc))
	require.NoError(t, err)
	app, err := e.OpenFile("src/app.erl", []byte(appSrc))
	require.NoError(t, err)
	return e, lib, app
}

func offsetOf(t *testing.T, src, needle string) uint32 {
	t.Helper()
	i := strings.Index(src, needle)
	require.GreaterOrEqual(t, i, 0)
	return uint32(i)
}

func TestGotoDefinitionAcrossFiles(t *testing.T) {
	e, lib, app := newEngine(t)
	snap := e.Snapshot(context.Background())
	defer snap.Release()

	loc, err := snap.GotoDefinition(app, offsetOf(t, appSrc, "add(1, 2)"))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, lib, loc.FileID)
	assert.Equal(t, offsetOf(t, libSrc, "add(A, B)"), loc.Range.Start)
}

func TestStableFileIDAcrossEdits(t *testing.T) {
	e, lib, _ := newEngine(t)

	again, err := e.OpenFile("src/lib.erl", []byte(libSrc+"\n% trailing\n"))
	require.NoError(t, err)
	assert.Equal(t, lib, again)

	require.NoError(t, e.ChangeFile(lib, []byte(libSrc)))
	id, ok := e.FileID("src/lib.erl")
	require.True(t, ok)
	assert.Equal(t, lib, id)
}

func TestEditCancelsLiveSnapshot(t *testing.T) {
	e, lib, app := newEngine(t)
	snap := e.Snapshot(context.Background())
	defer snap.Release()

	require.NoError(t, e.ChangeFile(lib, []byte(libSrc+"\n")))
	assert.True(t, snap.Cancelled())

	_, err := snap.GotoDefinition(app, offsetOf(t, appSrc, "add(1, 2)"))
	assert.ErrorIs(t, err, context.Canceled)

	// A fresh snapshot sees the post-edit world.
	fresh := e.Snapshot(context.Background())
	defer fresh.Release()
	loc, err := fresh.GotoDefinition(app, offsetOf(t, appSrc, "add(1, 2)"))
	require.NoError(t, err)
	require.NotNil(t, loc)
}

func TestCloseFileMakesCallUnresolved(t *testing.T) {
	e, lib, app := newEngine(t)
	e.CloseFile(lib)

	snap := e.Snapshot(context.Background())
	defer snap.Release()
	loc, err := snap.GotoDefinition(app, offsetOf(t, appSrc, "add(1, 2)"))
	require.NoError(t, err)
	assert.Nil(t, loc)
}

// Renaming a function: old references disappear, old goto targets nothing,
// and nothing crashes or reports stale positions.
func TestRenameScenario(t *testing.T) {
	e, lib, app := newEngine(t)

	snap := e.Snapshot(context.Background())
	refs, err := snap.FindReferences(app, offsetOf(t, appSrc, "add(1, 2)"))
	require.NoError(t, err)
	require.Len(t, refs, 2) // export entry + remote call
	snap.Release()

	require.NoError(t, e.ChangeFile(lib, []byte(strings.ReplaceAll(libSrc, "add", "sum"))))

	snap = e.Snapshot(context.Background())
	defer snap.Release()

	res, err := snap.ResolveAt(app, offsetOf(t, appSrc, "add(1, 2)"))
	require.NoError(t, err)
	assert.Nil(t, res.Def)

	refs, err = snap.FindReferences(app, offsetOf(t, appSrc, "add(1, 2)"))
	require.NoError(t, err)
	assert.Empty(t, refs)

	diags, err := snap.Diagnostics(app)
	require.NoError(t, err)
	found := false
	for _, d := range diags {
		if d.Pass == "unresolved" {
			found = true
			assert.Contains(t, d.Message, "lib:add/2")
		}
	}
	assert.True(t, found, "expected an unresolved finding for the stale call")
}

func TestDiagnosticsCleanFile(t *testing.T) {
	e, lib, _ := newEngine(t)
	snap := e.Snapshot(context.Background())
	defer snap.Release()

	diags, err := snap.Diagnostics(lib)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestWorkspaceSymbolsThroughSnapshot(t *testing.T) {
	e, _, _ := newEngine(t)
	snap := e.Snapshot(context.Background())
	defer snap.Release()

	syms, err := snap.WorkspaceSymbols()
	require.NoError(t, err)

	var names []string
	for _, s := range syms {
		names = append(names, s.ID.String())
	}
	assert.Contains(t, names, "lib:add/2")
	assert.Contains(t, names, "app:run/0")
}

func TestFileTooLarge(t *testing.T) {
	e := New(Options{MaxFileSize: 16})
	_, err := e.OpenFile("src/big.erl", []byte(strings.Repeat("x", 32)))
	require.Error(t, err)

	var ae *errors.AnalysisError
	require.True(t, goerrors.As(err, &ae))
	assert.Equal(t, errors.ErrorTypeFileTooLarge, ae.Type)
	assert.True(t, ae.IsRecoverable())
}

// Readers racing a writer: requests either succeed or fail with
// cancellation, never panic, and every snapshot drains cleanly.
func TestConcurrentReadersAndWriter(t *testing.T) {
	e, _, app := newEngine(t)
	off := offsetOf(t, appSrc, "add(1, 2)")

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
				snap := e.Snapshot(context.Background())
				_, err := snap.GotoDefinition(app, off)
				if err != nil && !goerrors.Is(err, context.Canceled) {
					t.Errorf("unexpected error: %v", err)
				}
				snap.Release()
			}
		}()
	}

	lib, _ := e.FileID("src/lib.erl")
	for i := 0; i < 50; i++ {
		body := libSrc
		if i%2 == 1 {
			body = strings.Replace(libSrc, "A + B", "B + A", 1)
		}
		require.NoError(t, e.ChangeFile(lib, []byte(body)))
	}
	close(stop)
	wg.Wait()
}
