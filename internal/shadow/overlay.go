package shadow

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"shadowfs/internal/common"
	"shadowfs/internal/filesystem"
)

// Overlay answers reads by laying the ledger over the wrapped filesystem and
// records writes in the ledger and the shadow store only.
type Overlay struct {
	inner  filesystem.FileSystem
	store  filesystem.FileSystem
	ledger *Ledger
	log    log.FieldLogger
}

// NewOverlay shadows inner, writing new content into store.
func NewOverlay(inner, store filesystem.FileSystem) *Overlay {
	return &Overlay{
		inner:  inner,
		store:  store,
		ledger: NewLedger(),
		log:    log.StandardLogger(),
	}
}

func (o *Overlay) Inner() filesystem.FileSystem { return o.inner }
func (o *Overlay) Store() filesystem.FileSystem { return o.store }
func (o *Overlay) Ledger() *Ledger              { return o.ledger }

// listing merges wrapped-filesystem entries with ledger children, keyed by
// normalized path and sorted.
type listing map[string]string

func (l listing) sorted() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = l[k]
	}
	return out
}

// addReal keeps a wrapped-filesystem entry unless the ledger says otherwise.
// keep decides whether a ledger node still shows the entry.
func (o *Overlay) addReal(l listing, paths []string, keep func(Node) bool) {
	for _, p := range paths {
		if n, ok := o.ledger.Get(p); ok && !keep(n) {
			continue
		}
		l[common.NormalizePath(p)] = p
	}
}

func (o *Overlay) GetDirectories(path string) ([]string, error) {
	real, err := o.inner.GetDirectories(path)
	if err != nil {
		return nil, err
	}
	l := make(listing)
	isDir := func(n Node) bool { return n.Exists() && n.IsDir }
	o.addReal(l, real, isDir)
	for _, n := range o.ledger.Children(path) {
		if isDir(n) && !o.inner.IsIgnored(n.Path, true) {
			l[common.NormalizePath(n.Path)] = n.Path
		}
	}
	return l.sorted(), nil
}

func (o *Overlay) GetFiles(path, filter string) ([]string, error) {
	w, err := filesystem.CompileWildcard(filter)
	if err != nil {
		return nil, err
	}
	real, err := o.inner.GetFiles(path, filter)
	if err != nil {
		return nil, err
	}
	l := make(listing)
	isFile := func(n Node) bool { return n.Exists() && n.IsFile() }
	o.addReal(l, real, isFile)
	for _, n := range o.ledger.Children(path) {
		if isFile(n) && w.Match(common.BaseName(n.Path)) && !o.inner.IsIgnored(n.Path, false) {
			l[common.NormalizePath(n.Path)] = n.Path
		}
	}
	return l.sorted(), nil
}

// IsIgnored follows the wrapped filesystem, so the overlay hides exactly
// what the wrapped filesystem will hide after commit.
func (o *Overlay) IsIgnored(path string, isDir bool) bool {
	return o.inner.IsIgnored(path, isDir)
}

func (o *Overlay) DirectoryExists(path string) bool {
	if n, ok := o.ledger.Get(path); ok {
		return n.Exists() && n.IsDir
	}
	return o.inner.DirectoryExists(path)
}

func (o *Overlay) FileExists(path string) bool {
	if n, ok := o.ledger.Get(path); ok {
		return n.Exists() && n.IsFile()
	}
	return o.inner.FileExists(path)
}

// canonical rewrites path segment by segment to the case already recorded in
// the ledger or present in the wrapped filesystem, so that paths differing
// only in case reach one store entry and one real entry.
func (o *Overlay) canonical(path string) string {
	out := ""
	for _, part := range common.SplitPath(path) {
		next := common.JoinPath(out, part)
		if n, ok := o.ledger.Get(next); ok {
			next = n.Path
		} else if name, ok := o.realName(out, part); ok {
			next = common.JoinPath(out, name)
		}
		out = next
	}
	return out
}

// realName finds the entry of dir in the wrapped filesystem whose name
// equals name ignoring case. An exact match wins.
func (o *Overlay) realName(dir, name string) (string, bool) {
	p := common.JoinPath(dir, name)
	if o.inner.FileExists(p) || o.inner.DirectoryExists(p) {
		return name, true
	}
	dirs, err := o.inner.GetDirectories(dir)
	if err != nil {
		return "", false
	}
	files, err := o.inner.GetFiles(dir, "")
	if err != nil {
		return "", false
	}
	for _, e := range append(dirs, files...) {
		if base := common.BaseName(e); strings.EqualFold(base, name) {
			return base, true
		}
	}
	return "", false
}

// shadowed returns the ledger node when path must be served by the shadow
// store. Paths the ledger records as deleted or as directories are invalid
// for file calls.
func (o *Overlay) shadowed(op, path string) (Node, bool, error) {
	n, ok := o.ledger.Get(path)
	if !ok {
		return Node{}, false, nil
	}
	if n.IsDeleted || n.IsDir {
		return Node{}, false, fmt.Errorf("%s %s: %w", op, path, common.ErrInvalidPath)
	}
	return n, true, nil
}

func (o *Overlay) OpenFile(path string) (io.ReadCloser, error) {
	n, inStore, err := o.shadowed("open", path)
	if err != nil {
		return nil, err
	}
	if inStore {
		return o.store.OpenFile(n.Path)
	}
	return o.inner.OpenFile(path)
}

// AddFile writes r into the shadow store and records path and every missing
// ancestor directory in the ledger. Nothing is recorded if validation fails.
func (o *Overlay) AddFile(path string, r io.Reader, overrideIfExists bool) error {
	clean := common.CleanPath(path)
	if clean == "" {
		return fmt.Errorf("add: empty path: %w", common.ErrInvalidPath)
	}
	clean = o.canonical(clean)

	if n, ok := o.ledger.Get(clean); ok {
		if n.Exists() && n.IsDir {
			return fmt.Errorf("add %s: directory exists at path: %w", clean, common.ErrConflict)
		}
		if n.Exists() && !overrideIfExists {
			return fmt.Errorf("add %s: %w", clean, common.ErrExists)
		}
	} else {
		if o.inner.DirectoryExists(clean) {
			return fmt.Errorf("add %s: directory exists at path: %w", clean, common.ErrConflict)
		}
		if !overrideIfExists && o.inner.FileExists(clean) {
			return fmt.Errorf("add %s: %w", clean, common.ErrExists)
		}
	}

	var dirs []string
	for _, anc := range common.Ancestors(clean) {
		if n, ok := o.ledger.Get(anc); ok {
			switch {
			case n.IsDeleted:
				dirs = append(dirs, anc)
			case n.IsFile():
				return fmt.Errorf("add %s: file exists at %s: %w", clean, anc, common.ErrConflict)
			}
			continue
		}
		if o.inner.DirectoryExists(anc) {
			continue
		}
		if o.inner.FileExists(anc) {
			return fmt.Errorf("add %s: file exists at %s: %w", clean, anc, common.ErrConflict)
		}
		dirs = append(dirs, anc)
	}

	// Stale store entries left by earlier, now superseded, operations.
	for _, d := range dirs {
		if o.store.FileExists(d) {
			if err := o.store.DeleteFile(d); err != nil {
				return err
			}
		}
	}
	if o.store.DirectoryExists(clean) {
		if err := o.store.DeleteDirectory(clean, true); err != nil {
			return err
		}
	}
	if err := o.store.AddFile(clean, r, true); err != nil {
		return err
	}

	for _, d := range dirs {
		o.ledger.Set(d, false, true)
	}
	o.ledger.Set(clean, false, false)
	o.log.Tracef("[Shadow] add %s", clean)
	return nil
}

func (o *Overlay) CanAddPhysical() bool {
	return true
}

// AddPhysicalFile shadows the content of a local file. Unless copy is set
// the source is removed once shadowed.
func (o *Overlay) AddPhysicalFile(path, physicalPath string, overrideIfExists, copy bool) error {
	f, err := os.Open(physicalPath)
	if err != nil {
		return fmt.Errorf("add %s: %w", path, err)
	}
	err = o.AddFile(path, f, overrideIfExists)
	f.Close()
	if err != nil {
		return err
	}
	if !copy {
		if err := os.Remove(physicalPath); err != nil {
			return fmt.Errorf("add %s: failed to remove source: %w", path, err)
		}
	}
	return nil
}

// DeleteFile records path as deleted. A path that does not exist in the
// overlay view is ignored.
func (o *Overlay) DeleteFile(path string) error {
	if !o.FileExists(path) {
		return nil
	}
	clean := o.canonical(common.CleanPath(path))
	o.ledger.Set(clean, true, false)
	o.log.Tracef("[Shadow] delete %s", clean)
	return nil
}

// DeleteDirectory records path as deleted. A recursive delete also records
// every file and directory of the wrapped filesystem below path and drops
// ledger nodes it supersedes. A non-recursive delete keeps the deleted nodes
// already recorded below path so real entries stay deleted.
func (o *Overlay) DeleteDirectory(path string, recursive bool) error {
	if !o.DirectoryExists(path) {
		return nil
	}
	clean := o.canonical(common.CleanPath(path))

	if !recursive {
		files, err := o.GetFiles(clean, "")
		if err != nil {
			return err
		}
		dirs, err := o.GetDirectories(clean)
		if err != nil {
			return err
		}
		if len(files) > 0 || len(dirs) > 0 {
			return fmt.Errorf("delete %s: %w", clean, common.ErrNotEmpty)
		}
		// Only hidden entries can remain below an empty view.
		o.ledger.RemoveLiveDescendants(clean)
		o.ledger.Set(clean, true, true)
		o.log.Tracef("[Shadow] rmdir %s", clean)
		return nil
	}

	var below []Node
	if err := o.collect(clean, &below); err != nil {
		return err
	}
	o.ledger.RemoveDescendants(clean)
	o.ledger.Set(clean, true, true)
	for _, n := range below {
		o.ledger.Set(n.Path, true, n.IsDir)
	}
	o.log.Tracef("[Shadow] rmdir %s (%d below)", clean, len(below))
	return nil
}

// collect walks the wrapped filesystem below dir.
func (o *Overlay) collect(dir string, out *[]Node) error {
	files, err := o.inner.GetFiles(dir, "")
	if err != nil {
		return err
	}
	for _, f := range files {
		*out = append(*out, Node{Path: f})
	}
	dirs, err := o.inner.GetDirectories(dir)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		*out = append(*out, Node{Path: d, IsDir: true})
		if err := o.collect(d, out); err != nil {
			return err
		}
	}
	return nil
}

func (o *Overlay) GetFullPath(path string) (string, error) {
	n, inStore, err := o.shadowed("fullpath", path)
	if err != nil {
		return "", err
	}
	if inStore {
		return o.store.GetFullPath(n.Path)
	}
	return o.inner.GetFullPath(path)
}

// GetRelativePath resolves full paths inside the shadow store against the
// store and everything else against the wrapped filesystem.
func (o *Overlay) GetRelativePath(fullPathOrURL string) string {
	if root, err := o.store.GetFullPath(""); err == nil && root != "" {
		root = strings.TrimRight(filepath.ToSlash(root), "/") + "/"
		if strings.HasPrefix(filepath.ToSlash(fullPathOrURL), root) {
			return o.store.GetRelativePath(fullPathOrURL)
		}
	}
	return o.inner.GetRelativePath(fullPathOrURL)
}

func (o *Overlay) GetURL(path string) (string, error) {
	n, inStore, err := o.shadowed("url", path)
	if err != nil {
		return "", err
	}
	if inStore {
		return o.store.GetURL(n.Path)
	}
	return o.inner.GetURL(path)
}

func (o *Overlay) GetLastModified(path string) (time.Time, error) {
	n, inStore, err := o.shadowed("stat", path)
	if err != nil {
		return time.Time{}, err
	}
	if inStore {
		return o.store.GetLastModified(n.Path)
	}
	return o.inner.GetLastModified(path)
}

func (o *Overlay) GetCreated(path string) (time.Time, error) {
	n, inStore, err := o.shadowed("stat", path)
	if err != nil {
		return time.Time{}, err
	}
	if inStore {
		return o.store.GetCreated(n.Path)
	}
	return o.inner.GetCreated(path)
}

func (o *Overlay) GetSize(path string) (int64, error) {
	n, inStore, err := o.shadowed("size", path)
	if err != nil {
		return 0, err
	}
	if inStore {
		return o.store.GetSize(n.Path)
	}
	return o.inner.GetSize(path)
}
