package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileWildcard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filter string
		name   string
		want   bool
	}{
		{"*.css", "site.css", true},
		{"*.css", "SITE.CSS", true},
		{"*.css", "site.less", false},
		{"*.css,*.less", "site.less", true},
		{"*.css, *.less", "site.less", true},
		{"a?c.txt", "abc.txt", true},
		{"a?c.txt", "ac.txt", false},
		{"*", "anything", true},
		{"file.txt", "fileXtxt", false},
		{"[x].txt", "[x].txt", true},
		{"[x].txt", "x.txt", false},
	}

	for _, tt := range tests {
		w, err := CompileWildcard(tt.filter)
		require.NoError(t, err)
		assert.Equal(t, tt.want, w.Match(tt.name), "%q matches %q", tt.filter, tt.name)
	}
}

func TestCompileWildcardEmpty(t *testing.T) {
	t.Parallel()

	for _, filter := range []string{"", "  ", ",,"} {
		w, err := CompileWildcard(filter)
		require.NoError(t, err)
		assert.Nil(t, w)
		assert.True(t, w.Match("whatever.txt"), "nil wildcard matches everything")
	}
}

func TestIgnoreMatcher(t *testing.T) {
	t.Parallel()

	m := NewIgnoreMatcher("*.tmp", "thumbs/", "", "  ")
	require.NotNil(t, m)

	assert.True(t, m.Ignored("a.tmp", false))
	assert.True(t, m.Ignored("media/b.tmp", false))
	assert.True(t, m.Ignored("thumbs", true))
	assert.False(t, m.Ignored("thumbs", false))
	assert.False(t, m.Ignored("a.txt", false))
	assert.False(t, m.Ignored("", true))

	var none *IgnoreMatcher
	assert.Nil(t, NewIgnoreMatcher())
	assert.False(t, none.Ignored("a.tmp", false))
}
