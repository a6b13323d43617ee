package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"shadowfs/internal/common"
)

const (
	defaultDirMode  = 0o755
	defaultFileMode = 0o644
)

// Physical is a FileSystem rooted at a directory of a billy filesystem.
// Roots created with NewPhysical live on local disk and can ingest files by
// physical path; roots created with NewPhysicalFromBilly cannot.
type Physical struct {
	fs      billy.Filesystem
	root    string
	rootURL string
	ignore  *IgnoreMatcher
	onDisk  bool
}

// PhysicalOption configures a Physical filesystem.
type PhysicalOption func(*Physical)

// WithIgnore hides entries matching the gitignore-style patterns from
// GetFiles and GetDirectories.
func WithIgnore(patterns ...string) PhysicalOption {
	return func(p *Physical) {
		p.ignore = NewIgnoreMatcher(patterns...)
	}
}

// NewPhysical creates root if needed and returns a filesystem serving it.
// rootURL is the public URL prefix GetURL prepends, for example "/media".
func NewPhysical(root, rootURL string, opts ...PhysicalOption) (*Physical, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, defaultDirMode); err != nil {
		return nil, fmt.Errorf("failed to create root %s: %w", abs, err)
	}
	p := &Physical{
		fs:      osfs.New(abs),
		root:    abs,
		rootURL: normalizeURL(rootURL),
		onDisk:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewPhysicalFromBilly serves an arbitrary billy filesystem, typically memfs
// in tests.
func NewPhysicalFromBilly(fs billy.Filesystem, rootURL string, opts ...PhysicalOption) *Physical {
	p := &Physical{
		fs:      fs,
		root:    fs.Root(),
		rootURL: normalizeURL(rootURL),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Root returns the root directory.
func (p *Physical) Root() string {
	return p.root
}

// RootURL returns the URL prefix.
func (p *Physical) RootURL() string {
	return p.rootURL
}

func normalizeURL(u string) string {
	u = strings.ReplaceAll(u, "\\", "/")
	return strings.TrimRight(u, "/")
}

// billyPath converts a relative path to the rooted form billy expects.
func billyPath(path string) string {
	return "/" + common.CleanPath(path)
}

func (p *Physical) stat(path string) (os.FileInfo, bool) {
	info, err := p.fs.Stat(billyPath(path))
	if err != nil {
		return nil, false
	}
	return info, true
}

func (p *Physical) list(path string, dirs bool, w *Wildcard) ([]string, error) {
	dir := common.CleanPath(path)
	info, ok := p.stat(dir)
	if !ok || !info.IsDir() {
		return []string{}, nil
	}
	entries, err := p.fs.ReadDir(billyPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() != dirs {
			continue
		}
		rel := common.JoinPath(dir, e.Name())
		if p.ignore.Ignored(rel, e.IsDir()) {
			continue
		}
		if !dirs && !w.Match(e.Name()) {
			continue
		}
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

func (p *Physical) GetDirectories(path string) ([]string, error) {
	return p.list(path, true, nil)
}

func (p *Physical) GetFiles(path, filter string) ([]string, error) {
	w, err := CompileWildcard(filter)
	if err != nil {
		return nil, err
	}
	return p.list(path, false, w)
}

func (p *Physical) IsIgnored(path string, isDir bool) bool {
	return p.ignore.Ignored(common.CleanPath(path), isDir)
}

func (p *Physical) DirectoryExists(path string) bool {
	info, ok := p.stat(path)
	return ok && info.IsDir()
}

func (p *Physical) FileExists(path string) bool {
	info, ok := p.stat(path)
	return ok && !info.IsDir()
}

// checkWritable verifies that path can receive a file: no directory sits at
// path, no file sits at any ancestor, and an existing file may be replaced
// only when overrideIfExists is set.
func (p *Physical) checkWritable(path string, overrideIfExists bool) error {
	if info, ok := p.stat(path); ok {
		if info.IsDir() {
			return fmt.Errorf("add %s: directory exists at path: %w", path, common.ErrConflict)
		}
		if !overrideIfExists {
			return fmt.Errorf("add %s: %w", path, common.ErrExists)
		}
	}
	for _, anc := range common.Ancestors(path) {
		if info, ok := p.stat(anc); ok && !info.IsDir() {
			return fmt.Errorf("add %s: file exists at %s: %w", path, anc, common.ErrConflict)
		}
	}
	return nil
}

func (p *Physical) AddFile(path string, r io.Reader, overrideIfExists bool) error {
	path = common.CleanPath(path)
	if path == "" {
		return fmt.Errorf("add: empty path: %w", common.ErrInvalidPath)
	}
	if err := p.checkWritable(path, overrideIfExists); err != nil {
		return err
	}
	if parent := common.ParentPath(path); parent != "" {
		if err := p.fs.MkdirAll(billyPath(parent), defaultDirMode); err != nil {
			return fmt.Errorf("failed to create %s: %w", parent, err)
		}
	}

	f, err := p.fs.OpenFile(billyPath(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFileMode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func (p *Physical) CanAddPhysical() bool {
	return p.onDisk
}

// AddPhysicalFile moves (or copies) physicalPath into the filesystem at path.
func (p *Physical) AddPhysicalFile(path, physicalPath string, overrideIfExists, copy bool) error {
	if !p.onDisk {
		return fmt.Errorf("add %s from %s: %w", path, physicalPath, common.ErrNotSupported)
	}
	path = common.CleanPath(path)
	if path == "" {
		return fmt.Errorf("add: empty path: %w", common.ErrInvalidPath)
	}
	src, err := os.Stat(physicalPath)
	if err != nil {
		return fmt.Errorf("add %s: source %s: %w", path, physicalPath, err)
	}
	if src.IsDir() {
		return fmt.Errorf("add %s: source %s: %w", path, physicalPath, common.ErrIsDir)
	}
	if err := p.checkWritable(path, overrideIfExists); err != nil {
		return err
	}

	target := filepath.Join(p.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(target), defaultDirMode); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}
	if !copy {
		if err := os.Rename(physicalPath, target); err == nil {
			return nil
		}
		// Cross-device moves fall back to copy + remove.
	}
	if err := copyPhysical(physicalPath, target); err != nil {
		return err
	}
	if !copy {
		return os.Remove(physicalPath)
	}
	return nil
}

func copyPhysical(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFileMode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// DeleteFile removes the file at path. A missing file is not an error.
func (p *Physical) DeleteFile(path string) error {
	info, ok := p.stat(path)
	if !ok || info.IsDir() {
		return nil
	}
	if err := p.fs.Remove(billyPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// DeleteDirectory removes the directory at path. A missing directory is not an
// error. Deleting the root removes its content but keeps the root itself.
func (p *Physical) DeleteDirectory(path string, recursive bool) error {
	path = common.CleanPath(path)
	info, ok := p.stat(path)
	if !ok || !info.IsDir() {
		return nil
	}

	if !recursive {
		entries, err := p.fs.ReadDir(billyPath(path))
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", path, err)
		}
		if len(entries) > 0 {
			return fmt.Errorf("delete %s: %w", path, common.ErrNotEmpty)
		}
		if path == "" {
			return nil
		}
		return p.fs.Remove(billyPath(path))
	}

	if path != "" {
		if err := util.RemoveAll(p.fs, billyPath(path)); err != nil {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
		return nil
	}
	entries, err := p.fs.ReadDir(billyPath(path))
	if err != nil {
		return fmt.Errorf("failed to list root: %w", err)
	}
	for _, e := range entries {
		if err := util.RemoveAll(p.fs, billyPath(e.Name())); err != nil {
			return fmt.Errorf("failed to delete %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (p *Physical) OpenFile(path string) (io.ReadCloser, error) {
	info, ok := p.stat(path)
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, common.ErrNotFound)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open %s: %w", path, common.ErrIsDir)
	}
	f, err := p.fs.Open(billyPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

func (p *Physical) GetFullPath(path string) (string, error) {
	if p.onDisk {
		return filepath.Join(p.root, filepath.FromSlash(common.CleanPath(path))), nil
	}
	return p.fs.Join(p.root, common.CleanPath(path)), nil
}

// GetRelativePath strips the root URL or the root directory from
// fullPathOrURL. Input that matches neither is cleaned and returned.
func (p *Physical) GetRelativePath(fullPathOrURL string) string {
	s := strings.ReplaceAll(fullPathOrURL, "\\", "/")
	if p.rootURL != "" {
		if rest, ok := trimPrefixFold(s, p.rootURL); ok {
			return common.CleanPath(rest)
		}
	}
	root := strings.TrimRight(filepath.ToSlash(p.root), "/")
	if root != "" {
		if rest, ok := trimPrefixFold(s, root); ok {
			return common.CleanPath(rest)
		}
	}
	return common.CleanPath(s)
}

// trimPrefixFold strips prefix from s when s equals prefix or continues with
// a separator.
func trimPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	rest := s[len(prefix):]
	if rest != "" && rest[0] != '/' {
		return "", false
	}
	return rest, true
}

func (p *Physical) GetURL(path string) (string, error) {
	return p.rootURL + "/" + common.CleanPath(path), nil
}

func (p *Physical) GetLastModified(path string) (time.Time, error) {
	info, ok := p.stat(path)
	if !ok {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, common.ErrNotFound)
	}
	return info.ModTime(), nil
}

// GetCreated returns the modification time: billy exposes no birth time.
func (p *Physical) GetCreated(path string) (time.Time, error) {
	return p.GetLastModified(path)
}

func (p *Physical) GetSize(path string) (int64, error) {
	info, ok := p.stat(path)
	if !ok {
		return 0, fmt.Errorf("stat %s: %w", path, common.ErrNotFound)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("size %s: %w", path, common.ErrIsDir)
	}
	return info.Size(), nil
}
