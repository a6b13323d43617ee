package shadow

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gofrs/flock"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu      sync.Mutex
	started []string
	applied []string
	ended   []bool
}

func (r *recordingObserver) SessionStarted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *recordingObserver) ChangeApplied(id, fs string, c Change, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, fs+":"+string(c.Op)+":"+c.Path)
}

func (r *recordingObserver) SessionEnded(id string, completed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, completed)
}

func sequenceIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestShortID(t *testing.T) {
	t.Parallel()
	a, b := shortID(), shortID()
	assert.Len(t, a, 8)
	assert.Regexp(t, `^[a-z2-7]{8}$`, a)
	assert.NotEqual(t, a, b)
}

func TestManagerSession(t *testing.T) {
	t.Parallel()

	t.Run("scope commits only when completed", func(t *testing.T) {
		g := NewWithT(t)
		root := t.TempDir()
		inner := newDiskFS(t)
		m := NewManager(Options{Root: root})
		w := NewWrapper("views", inner)
		g.Expect(m.Register(w)).To(Succeed())

		scope, err := m.Begin()
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(m.Current()).To(Equal(scope.ID()))
		g.Expect(filepath.Join(root, scope.ID(), "views")).To(BeADirectory())
		g.Expect(filepath.Join(root, scope.ID()+".lock")).To(BeARegularFile())

		put(t, w, "draft.cshtml", "draft")
		g.Expect(scope.Close()).To(Succeed())
		g.Expect(inner.FileExists("draft.cshtml")).To(BeFalse())
		g.Expect(m.Current()).To(BeEmpty())
		g.Expect(filepath.Join(root, scope.ID())).NotTo(BeAnExistingFile())
		g.Expect(filepath.Join(root, scope.ID()+".lock")).NotTo(BeAnExistingFile())

		scope, err = m.Begin()
		g.Expect(err).NotTo(HaveOccurred())
		put(t, w, "final.cshtml", "final")
		scope.Complete()
		g.Expect(scope.Close()).To(Succeed())
		g.Expect(scope.Close()).To(Succeed())
		g.Expect(read(t, inner, "final.cshtml")).To(Equal("final"))
	})

	t.Run("second begin fails and keeps the first session", func(t *testing.T) {
		t.Parallel()
		m := NewManager(Options{Root: t.TempDir()})
		w := NewWrapper("views", newDiskFS(t))
		require.NoError(t, m.Register(w))

		scope, err := m.Begin()
		require.NoError(t, err)
		put(t, w, "a.txt", "a")

		_, err = m.Begin()
		assert.ErrorIs(t, err, ErrAlreadyShadowing)
		assert.Equal(t, scope.ID(), m.Current())
		assert.True(t, w.IsShadowing())
		assert.Equal(t, "a", read(t, w, "a.txt"))
		require.NoError(t, scope.Close())
	})

	t.Run("end validates the session", func(t *testing.T) {
		t.Parallel()
		m := NewManager(Options{Root: t.TempDir()})

		assert.ErrorIs(t, m.End("nope", true), ErrNotShadowing)

		scope, err := m.Begin()
		require.NoError(t, err)
		assert.ErrorIs(t, m.End("nope", true), ErrShadowMismatch)
		assert.Equal(t, scope.ID(), m.Current())
		require.NoError(t, m.End(scope.ID(), false))
	})

	t.Run("late registration is shadowed immediately", func(t *testing.T) {
		t.Parallel()
		m := NewManager(Options{Root: t.TempDir()})
		scope, err := m.Begin()
		require.NoError(t, err)

		inner := newDiskFS(t)
		w := NewWrapper("late", inner)
		require.NoError(t, m.Register(w))
		assert.True(t, w.IsShadowing())

		put(t, w, "x.txt", "x")
		assert.False(t, inner.FileExists("x.txt"))
		scope.Complete()
		require.NoError(t, scope.Close())
		assert.True(t, inner.FileExists("x.txt"))
	})

	t.Run("duplicate names are rejected", func(t *testing.T) {
		t.Parallel()
		m := NewManager(Options{Root: t.TempDir()})
		w := NewWrapper("views", newDiskFS(t))
		require.NoError(t, m.Register(w))
		require.NoError(t, m.Register(w))
		assert.Error(t, m.Register(NewWrapper("Views", newDiskFS(t))))
		assert.Len(t, m.Wrappers(), 1)
	})

	t.Run("failures from every filesystem are aggregated", func(t *testing.T) {
		g := NewWithT(t)
		obs := &recordingObserver{}
		m := NewManager(Options{Root: t.TempDir(), Observer: obs})
		one := &failingFS{Physical: newDiskFS(t), fail: "bad.txt"}
		two := &failingFS{Physical: newDiskFS(t), fail: "worse.txt"}
		w1, w2 := NewWrapper("one", one), NewWrapper("two", two)
		g.Expect(m.Register(w1)).To(Succeed())
		g.Expect(m.Register(w2)).To(Succeed())

		scope, err := m.Begin()
		g.Expect(err).NotTo(HaveOccurred())
		put(t, w1, "bad.txt", "1")
		put(t, w1, "ok.txt", "1")
		put(t, w2, "worse.txt", "2")

		scope.Complete()
		err = scope.Close()

		var applyErr *ApplyError
		g.Expect(err).To(BeAssignableToTypeOf(applyErr))
		g.Expect(err).To(MatchError(ContainSubstring("2 failures")))
		applyErr = err.(*ApplyError)
		g.Expect(applyErr.Failures).To(HaveLen(2))
		g.Expect(applyErr.Failures[0].Filesystem).To(Equal("one"))
		g.Expect(applyErr.Failures[1].Filesystem).To(Equal("two"))
		g.Expect(read(t, one, "ok.txt")).To(Equal("1"))

		g.Expect(m.Current()).To(BeEmpty())
		g.Expect(w1.IsShadowing()).To(BeFalse())
		g.Expect(w2.IsShadowing()).To(BeFalse())

		g.Expect(obs.started).To(HaveLen(1))
		g.Expect(obs.ended).To(Equal([]bool{true}))
		g.Expect(obs.applied).To(ConsistOf("one:write:bad.txt", "one:write:ok.txt", "two:write:worse.txt"))

		scope, err = m.Begin()
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(scope.Close()).To(Succeed())
	})
}

func TestManagerSessionID(t *testing.T) {
	t.Parallel()

	t.Run("skips identifiers already on disk", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, "taken"), 0o755))
		m := NewManager(Options{Root: root, NewID: sequenceIDs("taken", "taken", "fresh")})

		scope, err := m.Begin()
		require.NoError(t, err)
		assert.Equal(t, "fresh", scope.ID())
		require.NoError(t, scope.Close())
		assert.DirExists(t, filepath.Join(root, "taken"))
		assert.NoFileExists(t, filepath.Join(root, "taken.lock"))
	})

	t.Run("skips identifiers locked by another session", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		held := flock.New(filepath.Join(root, "held.lock"))
		locked, err := held.TryLock()
		require.NoError(t, err)
		require.True(t, locked)
		defer held.Unlock()
		m := NewManager(Options{Root: root, NewID: sequenceIDs("held", "fresh")})

		scope, err := m.Begin()
		require.NoError(t, err)
		defer scope.Close()
		assert.Equal(t, "fresh", scope.ID())
		assert.NoDirExists(t, filepath.Join(root, "held"))
		assert.FileExists(t, filepath.Join(root, "held.lock"))
	})

	t.Run("session directory is locked from creation", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		m := NewManager(Options{Root: root, NewID: sequenceIDs("s1")})

		scope, err := m.Begin()
		require.NoError(t, err)
		swept, err := Sweep(root)
		require.NoError(t, err)
		assert.Empty(t, swept)
		assert.DirExists(t, filepath.Join(root, "s1"))
		live, err := LiveSessions(root)
		require.NoError(t, err)
		assert.Equal(t, []string{"s1"}, live)
		require.NoError(t, scope.Close())
	})

	t.Run("gives up after the attempt limit", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, "taken"), 0o755))
		m := NewManager(Options{Root: root, NewID: sequenceIDs("taken"), MaxIDAttempts: 3})

		_, err := m.Begin()
		assert.ErrorContains(t, err, "after 3 attempts")
		assert.Empty(t, m.Current())
	})

	t.Run("defaults to the system temp directory", func(t *testing.T) {
		t.Parallel()
		m := NewManager(Options{})
		assert.Equal(t, filepath.Join(os.TempDir(), "ShadowFs"), m.Root())
	})
}
