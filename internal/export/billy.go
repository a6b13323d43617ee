package export

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"
	nfsfile "github.com/willscott/go-nfs/file"

	"shadowfs/internal/cache"
	"shadowfs/internal/common"
	"shadowfs/internal/filesystem"
)

// BillyAdapter exposes a FileSystem as a billy.Filesystem. Files are
// buffered in memory and written back with AddFile when closed. Directories
// created through MkdirAll stay pending until a file lands below them, since
// a FileSystem only knows directories that hold files.
type BillyAdapter struct {
	fs    filesystem.FileSystem
	attrs *cache.AttrCache
	uid   uint32
	gid   uint32

	mu      sync.Mutex
	pending map[string]string // normalized path -> clean path
}

// Attribute cache settings. The TTL bounds how long changes made to the
// filesystem outside the adapter stay invisible.
const (
	attrTTL      = time.Second
	attrCacheMax = 4096
)

// NewBillyAdapter creates a billy adapter for fs.
func NewBillyAdapter(fs filesystem.FileSystem) *BillyAdapter {
	return &BillyAdapter{
		fs:      fs,
		attrs:   cache.NewAttrCache(attrTTL, attrCacheMax),
		uid:     uint32(os.Getuid()),
		gid:     uint32(os.Getgid()),
		pending: make(map[string]string),
	}
}

func pathErr(op, name string, err error) error {
	return &os.PathError{Op: op, Path: name, Err: err}
}

func (b *BillyAdapter) isPending(p string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[common.NormalizePath(p)]
	return ok
}

// settle drops pending directories the filesystem now knows about.
func (b *BillyAdapter) settle(p string) {
	b.attrs.InvalidateTree(p)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, common.NormalizePath(p))
	for _, anc := range common.Ancestors(p) {
		delete(b.pending, common.NormalizePath(anc))
	}
}

func (b *BillyAdapter) pendingChildren(dir string) []string {
	key := common.NormalizePath(dir)
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k, p := range b.pending {
		if common.IsChild(key, k) {
			out = append(out, p)
		}
	}
	return out
}

func (b *BillyAdapter) isDir(p string) bool {
	return p == "" || b.fs.DirectoryExists(p) || b.isPending(p)
}

func (b *BillyAdapter) Create(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
}

func (b *BillyAdapter) Open(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_RDONLY, 0)
}

func (b *BillyAdapter) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	p := common.CleanPath(filename)
	if b.isDir(p) {
		return nil, pathErr("open", filename, common.ErrIsDir)
	}

	writable := flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0
	exists := b.fs.FileExists(p)
	if !exists && flag&os.O_CREATE == 0 {
		return nil, pathErr("open", filename, os.ErrNotExist)
	}
	if exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0 {
		return nil, pathErr("open", filename, os.ErrExist)
	}

	f := &BillyFile{adapter: b, name: filename, path: p, writable: writable}
	if exists && flag&os.O_TRUNC == 0 {
		rc, err := b.fs.OpenFile(p)
		if err != nil {
			return nil, pathErr("open", filename, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, pathErr("read", filename, err)
		}
		f.data = data
	}
	if flag&os.O_APPEND != 0 {
		f.offset = int64(len(f.data))
	}
	// A created or truncated file exists as soon as it is opened.
	if writable && (!exists || flag&os.O_TRUNC != 0) {
		f.dirty = true
		if err := f.flush(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (b *BillyAdapter) Stat(filename string) (os.FileInfo, error) {
	p := common.CleanPath(filename)
	if fi, ok := b.attrs.Get(p); ok {
		return fi, nil
	}
	if b.fs.FileExists(p) {
		fi, err := b.fileInfo(p)
		if err != nil {
			return nil, err
		}
		b.attrs.Set(p, fi)
		return fi, nil
	}
	if b.isDir(p) {
		fi := b.dirInfo(p)
		b.attrs.Set(p, fi)
		return fi, nil
	}
	return nil, pathErr("stat", filename, os.ErrNotExist)
}

func (b *BillyAdapter) Lstat(filename string) (os.FileInfo, error) {
	return b.Stat(filename)
}

func (b *BillyAdapter) fileInfo(p string) (*FileInfo, error) {
	size, err := b.fs.GetSize(p)
	if err != nil {
		return nil, pathErr("stat", p, err)
	}
	mtime, err := b.fs.GetLastModified(p)
	if err != nil {
		mtime = time.Now()
	}
	return &FileInfo{name: path.Base("/" + p), path: p, size: size, modTime: mtime, mode: 0o644, adapter: b}, nil
}

func (b *BillyAdapter) dirInfo(p string) *FileInfo {
	mtime, err := b.fs.GetLastModified(p)
	if err != nil {
		mtime = time.Now()
	}
	name := path.Base("/" + p)
	return &FileInfo{name: name, path: p, modTime: mtime, mode: os.ModeDir | 0o755, dir: true, adapter: b}
}

func (b *BillyAdapter) ReadDir(dirname string) ([]os.FileInfo, error) {
	p := common.CleanPath(dirname)
	if !b.isDir(p) {
		if b.fs.FileExists(p) {
			return nil, pathErr("readdir", dirname, common.ErrNotDir)
		}
		return nil, pathErr("readdir", dirname, os.ErrNotExist)
	}

	dirs, err := b.fs.GetDirectories(p)
	if err != nil {
		return nil, err
	}
	files, err := b.fs.GetFiles(p, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []os.FileInfo
	for _, d := range append(dirs, b.pendingChildren(p)...) {
		if key := common.NormalizePath(d); !seen[key] {
			seen[key] = true
			fi := b.dirInfo(d)
			b.attrs.Set(d, fi)
			out = append(out, fi)
		}
	}
	for _, f := range files {
		fi, err := b.fileInfo(f)
		if err != nil {
			log.Debugf("[NFS] skipping %s: %v", f, err)
			continue
		}
		b.attrs.Set(f, fi)
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (b *BillyAdapter) MkdirAll(filename string, perm os.FileMode) error {
	p := common.CleanPath(filename)
	if p == "" || b.fs.DirectoryExists(p) {
		return nil
	}
	if b.fs.FileExists(p) {
		return pathErr("mkdir", filename, common.ErrConflict)
	}
	b.attrs.InvalidateTree(p)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range append(common.Ancestors(p), p) {
		if !b.fs.DirectoryExists(d) {
			b.pending[common.NormalizePath(d)] = d
		}
	}
	return nil
}

func (b *BillyAdapter) Remove(filename string) error {
	p := common.CleanPath(filename)
	defer b.attrs.InvalidateTree(p)
	switch {
	case b.fs.FileExists(p):
		return b.fs.DeleteFile(p)
	case b.fs.DirectoryExists(p):
		return b.fs.DeleteDirectory(p, false)
	case b.isPending(p):
		if len(b.pendingChildren(p)) > 0 {
			return pathErr("remove", filename, common.ErrNotEmpty)
		}
		b.mu.Lock()
		delete(b.pending, common.NormalizePath(p))
		b.mu.Unlock()
		return nil
	}
	return pathErr("remove", filename, os.ErrNotExist)
}

// Rename moves a file. Directories cannot be renamed.
func (b *BillyAdapter) Rename(oldpath, newpath string) error {
	from, to := common.CleanPath(oldpath), common.CleanPath(newpath)
	if !b.fs.FileExists(from) {
		if b.isDir(from) {
			return pathErr("rename", oldpath, billy.ErrNotSupported)
		}
		return pathErr("rename", oldpath, os.ErrNotExist)
	}
	rc, err := b.fs.OpenFile(from)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return err
	}
	if err := b.fs.AddFile(to, bytes.NewReader(data), true); err != nil {
		return err
	}
	b.settle(to)
	b.attrs.InvalidateTree(from)
	return b.fs.DeleteFile(from)
}

func (b *BillyAdapter) Join(elem ...string) string {
	return path.Join(elem...)
}

func (b *BillyAdapter) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

func (b *BillyAdapter) Symlink(target, link string) error {
	return billy.ErrNotSupported
}

func (b *BillyAdapter) Readlink(link string) (string, error) {
	return "", billy.ErrNotSupported
}

func (b *BillyAdapter) Chroot(path string) (billy.Filesystem, error) {
	return nil, billy.ErrNotSupported
}

func (b *BillyAdapter) Root() string {
	return "/"
}

// billy.Change interface. Modes, owners and times are not stored.
func (b *BillyAdapter) Chmod(name string, mode os.FileMode) error         { return nil }
func (b *BillyAdapter) Lchown(name string, uid, gid int) error            { return nil }
func (b *BillyAdapter) Chown(name string, uid, gid int) error             { return nil }
func (b *BillyAdapter) Chtimes(name string, atime, mtime time.Time) error { return nil }

func (b *BillyAdapter) Capabilities() billy.Capability {
	return billy.WriteCapability | billy.ReadCapability |
		billy.ReadAndWriteCapability | billy.SeekCapability | billy.TruncateCapability
}

// BillyFile is an in-memory copy of a file, written back on Close.
type BillyFile struct {
	adapter  *BillyAdapter
	name     string
	path     string
	writable bool

	mu     sync.Mutex
	data   []byte
	offset int64
	dirty  bool
	closed bool
}

func (f *BillyFile) Name() string {
	return f.name
}

func (f *BillyFile) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.readAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *BillyFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readAt(p, off)
}

func (f *BillyFile) readAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *BillyFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.writeAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *BillyFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeAt(p, off)
}

func (f *BillyFile) writeAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if !f.writable {
		return 0, pathErr("write", f.name, os.ErrPermission)
	}
	if end := off + int64(len(p)); end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], p)
	f.dirty = true
	return len(p), nil
}

func (f *BillyFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.offset + offset
	case io.SeekEnd:
		next = int64(len(f.data)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek: negative position")
	}
	f.offset = next
	return next, nil
}

func (f *BillyFile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.writable {
		return pathErr("truncate", f.name, os.ErrPermission)
	}
	if size < int64(len(f.data)) {
		f.data = f.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	f.dirty = true
	return nil
}

// flush writes the buffer back. Callers hold f.mu or own f exclusively.
func (f *BillyFile) flush() error {
	if !f.dirty {
		return nil
	}
	if err := f.adapter.fs.AddFile(f.path, bytes.NewReader(f.data), true); err != nil {
		return pathErr("write", f.name, err)
	}
	f.adapter.settle(f.path)
	f.dirty = false
	return nil
}

func (f *BillyFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return os.ErrClosed
	}
	err := f.flush()
	f.closed = true
	return err
}

func (f *BillyFile) Lock() error   { return nil }
func (f *BillyFile) Unlock() error { return nil }

// FileInfo describes a file or directory of the adapted filesystem.
type FileInfo struct {
	name    string
	path    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	dir     bool
	adapter *BillyAdapter
}

func (fi *FileInfo) Name() string       { return fi.name }
func (fi *FileInfo) Size() int64        { return fi.size }
func (fi *FileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *FileInfo) ModTime() time.Time { return fi.modTime }
func (fi *FileInfo) IsDir() bool        { return fi.dir }

// Sys returns the go-nfs file info. Fileid is derived from the normalized
// path so it stays stable across calls.
func (fi *FileInfo) Sys() interface{} {
	return &nfsfile.FileInfo{
		Nlink:  1,
		UID:    fi.adapter.uid,
		GID:    fi.adapter.gid,
		Fileid: fileID(fi.path),
	}
}

func fileID(p string) uint64 {
	key := common.NormalizePath(p)
	if key == "" {
		return 1
	}
	h := fnv.New64a()
	h.Write([]byte(key))
	if id := h.Sum64(); id > 1 {
		return id
	}
	return 2
}

var (
	_ billy.Filesystem = (*BillyAdapter)(nil)
	_ billy.Change     = (*BillyAdapter)(nil)
	_ billy.File       = (*BillyFile)(nil)
	_ io.WriterAt      = (*BillyFile)(nil)
)
