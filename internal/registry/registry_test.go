package registry

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/uuid"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowfs/internal/config"
	"shadowfs/internal/filesystem"
	"shadowfs/internal/shadow"
)

func newTestRegistry(t *testing.T) (*Registry, *config.Config) {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.ContentRoot = t.TempDir()
	cfg.ShadowRoot = t.TempDir()

	r, err := New(cfg, shadow.NewManager(shadow.Options{Root: cfg.ShadowRoot}))
	require.NoError(t, err)
	return r, cfg
}

func TestNew(t *testing.T) {
	t.Parallel()
	r, cfg := newTestRegistry(t)

	assert.Equal(t, config.WellKnown, r.Names())
	for _, w := range []*shadow.Wrapper{
		r.Views(), r.PartialViews(), r.MacroPartials(), r.Scripts(), r.Stylesheets(), r.Media(),
	} {
		require.NotNil(t, w)
	}
	assert.DirExists(t, filepath.Join(cfg.ContentRoot, "wwwroot", "css"))

	url, err := r.Stylesheets().GetURL("site.css")
	require.NoError(t, err)
	assert.Equal(t, "/css/site.css", url)

	_, err = r.MustGet("nope")
	assert.Error(t, err)
}

func TestIgnorePatterns(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	scripts := r.Scripts()
	require.NoError(t, scripts.AddFile("app.js", strings.NewReader("js"), false))
	require.NoError(t, scripts.AddFile("app.js.map", strings.NewReader("{}"), false))

	files, err := scripts.GetFiles("", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"app.js"}, files)
}

func TestShadowFansOut(t *testing.T) {
	g := NewWithT(t)
	r, _ := newTestRegistry(t)

	scope, err := r.Shadow()
	g.Expect(err).NotTo(HaveOccurred())
	for _, name := range r.Names() {
		w, _ := r.Get(name)
		g.Expect(w.IsShadowing()).To(BeTrue(), name)
	}

	late, err := r.Register("uploads", filesystem.NewPhysicalFromBilly(memfs.New(), "/uploads"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(late.IsShadowing()).To(BeTrue())

	g.Expect(r.Views().AddFile("Home/Index.cshtml", strings.NewReader("<h1/>"), false)).To(Succeed())
	g.Expect(late.AddFile("a.txt", strings.NewReader("a"), false)).To(Succeed())
	g.Expect(filesystem.Unwrap(r.Views()).FileExists("Home/Index.cshtml")).To(BeFalse())

	scope.Complete()
	g.Expect(scope.Close()).To(Succeed())
	g.Expect(filesystem.Unwrap(r.Views()).FileExists("Home/Index.cshtml")).To(BeTrue())
	g.Expect(late.Inner().FileExists("a.txt")).To(BeTrue())

	_, err = r.Register("VIEWS", filesystem.NewPhysicalFromBilly(memfs.New(), ""))
	g.Expect(err).To(HaveOccurred())
}

func TestMediaFiles(t *testing.T) {
	t.Parallel()
	r, cfg := newTestRegistry(t)
	mf, err := r.MediaFiles()
	require.NoError(t, err)
	again, err := r.MediaFiles()
	require.NoError(t, err)
	assert.Same(t, mf, again)

	scope, err := r.Shadow()
	require.NoError(t, err)
	p, err := mf.Store(uuid.New(), uuid.New(), "logo.png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(cfg.ContentRoot, "wwwroot", "media", filepath.FromSlash(p)))
	require.NoError(t, scope.Close())
	assert.NoFileExists(t, filepath.Join(cfg.ContentRoot, "wwwroot", "media", filepath.FromSlash(p)))

	cfg.Filesystems = cfg.Filesystems[:1]
	bare, err := New(cfg, shadow.NewManager(shadow.Options{Root: t.TempDir()}))
	require.NoError(t, err)
	assert.Nil(t, bare.Media())
	_, err = bare.MediaFiles()
	assert.Error(t, err)
}
