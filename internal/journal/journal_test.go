package journal

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowfs/internal/filesystem"
	"shadowfs/internal/shadow"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "sub", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	version, err := j.SchemaInfo(context.Background(), "version")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
	require.NoError(t, j.Close())

	// Reopening keeps the data and the schema.
	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	missing, err := j.SchemaInfo(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := testJournal(t)
	start := time.Unix(1700000000, 0)

	require.NoError(t, j.BeginSession(ctx, "aaaa", start))
	require.NoError(t, j.BeginSession(ctx, "bbbb", start.Add(time.Minute)))
	require.NoError(t, j.RecordChange(ctx, "bbbb", "views", shadow.Change{Path: "a.txt", Op: shadow.OpWrite}, nil, start))
	require.NoError(t, j.RecordChange(ctx, "bbbb", "views", shadow.Change{Path: "b.txt", Op: shadow.OpDelete}, errors.New("boom"), start))

	applyErr := &shadow.ApplyError{Completed: true, Failures: []*shadow.PathError{{Path: "b.txt", Op: shadow.OpDelete, Err: errors.New("boom")}}}
	require.NoError(t, j.EndSession(ctx, "bbbb", true, applyErr, start.Add(2*time.Minute)))
	require.NoError(t, j.EndSession(ctx, "aaaa", false, nil, start.Add(3*time.Minute)))

	sessions, err := j.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "bbbb", sessions[0].ID)
	assert.Equal(t, StatusFailed, sessions[0].Status)
	assert.EqualValues(t, 1, sessions[0].Failures)
	assert.Contains(t, sessions[0].Error, "b.txt")
	assert.Equal(t, "aaaa", sessions[1].ID)
	assert.Equal(t, StatusAborted, sessions[1].Status)
	assert.Empty(t, sessions[1].Error)
	assert.Equal(t, start, sessions[1].Started())
	assert.Equal(t, start.Add(3*time.Minute), sessions[1].Ended())

	limited, err := j.Sessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	changes, err := j.Changes(ctx, "bbbb")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "a.txt", changes[0].Path)
	assert.Empty(t, changes[0].Error)
	assert.Equal(t, "delete", changes[1].Op)
	assert.Equal(t, "boom", changes[1].Error)

	_, err = j.Session(ctx, "zzzz")
	assert.Error(t, err)
}

func TestMarkInterrupted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := testJournal(t)
	now := time.Now()

	require.NoError(t, j.BeginSession(ctx, "live", now))
	require.NoError(t, j.BeginSession(ctx, "done", now))
	require.NoError(t, j.EndSession(ctx, "done", true, nil, now))

	n, err := j.MarkInterrupted(ctx, []string{"live", "done", "unknown"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	s, err := j.Session(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, s.Status)
	assert.False(t, s.Ended().IsZero())

	s, err = j.Session(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, s.Status)

	n, err = j.MarkInterrupted(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestObserver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := testJournal(t)

	inner, err := filesystem.NewPhysical(t.TempDir(), "/css")
	require.NoError(t, err)
	m := shadow.NewManager(shadow.Options{Root: t.TempDir(), Observer: j})
	w := shadow.NewWrapper("stylesheets", inner)
	require.NoError(t, m.Register(w))

	scope, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, w.AddFile("site.css", strings.NewReader("body{}"), false))
	scope.Complete()
	require.NoError(t, scope.Close())

	s, err := j.Session(ctx, scope.ID())
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, s.Status)

	changes, err := j.Changes(ctx, scope.ID())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "stylesheets", changes[0].Filesystem)
	assert.Equal(t, "site.css", changes[0].Path)
	assert.Equal(t, "write", changes[0].Op)
}
