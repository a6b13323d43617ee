package shadow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	t.Parallel()

	t.Run("lookup ignores case and separators", func(t *testing.T) {
		t.Parallel()
		l := NewLedger()
		l.Set(`Views\Home.cshtml`, false, false)

		n, ok := l.Get("views/home.CSHTML")
		require.True(t, ok)
		assert.Equal(t, "Views/Home.cshtml", n.Path)
		assert.True(t, n.Exists())
		assert.True(t, n.IsFile())
	})

	t.Run("set replaces the whole node", func(t *testing.T) {
		t.Parallel()
		l := NewLedger()
		l.Set("a", false, true)
		l.Set("A", true, false)

		n, ok := l.Get("a")
		require.True(t, ok)
		assert.Equal(t, Node{Path: "A", IsDeleted: true}, n)
		assert.Equal(t, 1, l.Len())
	})

	t.Run("children are direct only", func(t *testing.T) {
		t.Parallel()
		l := NewLedger()
		l.Set("a", false, true)
		l.Set("a/c.txt", false, false)
		l.Set("a/b", false, true)
		l.Set("a/b/d.txt", false, false)
		l.Set("ab.txt", false, false)

		var paths []string
		for _, n := range l.Children("A") {
			paths = append(paths, n.Path)
		}
		assert.Equal(t, []string{"a/b", "a/c.txt"}, paths)

		var root []string
		for _, n := range l.Children("") {
			root = append(root, n.Path)
		}
		assert.Equal(t, []string{"a", "ab.txt"}, root)
	})

	t.Run("remove descendants keeps the directory", func(t *testing.T) {
		t.Parallel()
		l := NewLedger()
		l.Set("a", false, true)
		l.Set("a/b", false, true)
		l.Set("a/b/c.txt", false, false)
		l.Set("ab.txt", false, false)

		l.RemoveDescendants("a")

		_, ok := l.Get("a")
		assert.True(t, ok)
		_, ok = l.Get("a/b/c.txt")
		assert.False(t, ok)
		_, ok = l.Get("ab.txt")
		assert.True(t, ok)
		assert.Equal(t, 2, l.Len())
	})

	t.Run("entries and clear", func(t *testing.T) {
		t.Parallel()
		l := NewLedger()
		l.Set("b", true, false)
		l.Set("a", false, false)

		entries := l.Entries()
		require.Len(t, entries, 2)
		assert.Equal(t, "a", entries[0].Path)
		assert.Equal(t, "b", entries[1].Path)

		l.Clear()
		assert.Equal(t, 0, l.Len())
	})
}
