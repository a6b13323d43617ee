package shadow

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"shadowfs/internal/common"
	"shadowfs/internal/filesystem"
)

func newDiskFS(t *testing.T) *filesystem.Physical {
	t.Helper()
	fs, err := filesystem.NewPhysical(t.TempDir(), "/media")
	require.NoError(t, err)
	return fs
}

func newTestOverlay(t *testing.T) (*Overlay, *filesystem.Physical) {
	t.Helper()
	inner := newDiskFS(t)
	return NewOverlay(inner, newDiskFS(t)), inner
}

func put(t *testing.T, fs filesystem.FileSystem, path, content string) {
	t.Helper()
	require.NoError(t, fs.AddFile(path, strings.NewReader(content), true))
}

func read(t *testing.T, fs filesystem.FileSystem, path string) string {
	t.Helper()
	rc, err := fs.OpenFile(path)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// tree returns every file visible through fs, keyed by normalized path.
func tree(t *testing.T, fs filesystem.FileSystem) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for p, content := range rawTree(t, fs) {
		out[common.NormalizePath(p)] = content
	}
	return out
}

// rawTree returns every file visible through fs, keyed by the path exactly
// as listed.
func rawTree(t *testing.T, fs filesystem.FileSystem) map[string]string {
	t.Helper()
	out := make(map[string]string)
	var walk func(dir string)
	walk = func(dir string) {
		files, err := fs.GetFiles(dir, "")
		require.NoError(t, err)
		for _, f := range files {
			out[f] = read(t, fs, f)
		}
		dirs, err := fs.GetDirectories(dir)
		require.NoError(t, err)
		for _, d := range dirs {
			walk(d)
		}
	}
	walk("")
	return out
}

var errInjected = errors.New("injected failure")

// failingFS fails every write to one path.
type failingFS struct {
	*filesystem.Physical
	fail string
}

func (f *failingFS) AddFile(path string, r io.Reader, overrideIfExists bool) error {
	if common.NormalizePath(path) == common.NormalizePath(f.fail) {
		return errInjected
	}
	return f.Physical.AddFile(path, r, overrideIfExists)
}

func (f *failingFS) AddPhysicalFile(path, physicalPath string, overrideIfExists, copy bool) error {
	if common.NormalizePath(path) == common.NormalizePath(f.fail) {
		return errInjected
	}
	return f.Physical.AddPhysicalFile(path, physicalPath, overrideIfExists, copy)
}
