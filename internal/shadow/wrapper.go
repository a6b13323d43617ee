package shadow

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"shadowfs/internal/filesystem"
	"shadowfs/internal/util"
)

// Wrapper is a named filesystem that passes through to its inner filesystem
// until shadowed, and to an Overlay while a session is active.
type Wrapper struct {
	name   string
	inner  filesystem.FileSystem
	logger log.FieldLogger

	mu          sync.RWMutex
	overlay     *Overlay
	dir         string // shadow store root, <sessionRoot>/<name>
	sessionRoot string
}

// NewWrapper wraps inner under name. The name becomes the directory holding
// the wrapper's shadow store.
func NewWrapper(name string, inner filesystem.FileSystem) *Wrapper {
	return &Wrapper{name: name, inner: inner, logger: log.StandardLogger()}
}

func (w *Wrapper) setLogger(l log.FieldLogger) {
	w.mu.Lock()
	w.logger = l
	w.mu.Unlock()
}

func (w *Wrapper) Name() string                 { return w.name }
func (w *Wrapper) Inner() filesystem.FileSystem { return w.inner }

// IsShadowing reports whether an overlay is attached.
func (w *Wrapper) IsShadowing() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.overlay != nil
}

// Overlay returns the attached overlay, or nil.
func (w *Wrapper) Overlay() *Overlay {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.overlay
}

func (w *Wrapper) current() filesystem.FileSystem {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.overlay != nil {
		return w.overlay
	}
	return w.inner
}

// Shadow attaches a fresh overlay whose store lives under sessionRoot.
func (w *Wrapper) Shadow(sessionRoot string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.overlay != nil {
		return fmt.Errorf("shadow %s: %w", w.name, ErrAlreadyShadowing)
	}

	dir := filepath.Join(sessionRoot, w.name)
	storeURL := ""
	if u, err := w.inner.GetURL(""); err == nil {
		storeURL = strings.TrimSuffix(u, "/")
	}
	store, err := filesystem.NewPhysical(dir, storeURL)
	if err != nil {
		return fmt.Errorf("shadow %s: %w", w.name, err)
	}

	w.overlay = NewOverlay(w.inner, store)
	w.overlay.log = w.logger
	w.dir = dir
	w.sessionRoot = sessionRoot
	w.logger.Debugf("[Shadow] %s shadowed in %s", w.name, dir)
	return nil
}

// Unshadow detaches the overlay, replays its changes when completed is set,
// and removes the shadow store. Cleanup failures are logged only.
func (w *Wrapper) Unshadow(completed bool, report ReportFunc) error {
	w.mu.Lock()
	overlay, dir, sessionRoot, logger := w.overlay, w.dir, w.sessionRoot, w.logger
	w.overlay, w.dir, w.sessionRoot = nil, "", ""
	w.mu.Unlock()

	if overlay == nil {
		return fmt.Errorf("unshadow %s: %w", w.name, ErrNotShadowing)
	}

	var err error
	if completed {
		err = overlay.Complete(report)
	} else {
		overlay.Abort()
	}
	cleanup(dir, sessionRoot, logger)
	logger.Debugf("[Shadow] %s unshadowed (completed=%v)", w.name, completed)
	return err
}

// cleanup removes dir, then every ancestor strictly below sessionRoot that
// is left empty.
func cleanup(dir, sessionRoot string, logger log.FieldLogger) {
	ctx := context.Background()
	err := util.Retry(ctx, func() error {
		return os.RemoveAll(dir)
	}, util.CleanupRetryOptions(ctx)...)
	if err != nil {
		logger.WithError(err).Warnf("[Shadow] failed to remove %s", dir)
		return
	}

	root := filepath.Clean(sessionRoot)
	for parent := filepath.Dir(dir); parent != root && strings.HasPrefix(parent, root+string(filepath.Separator)); parent = filepath.Dir(parent) {
		entries, err := os.ReadDir(parent)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(parent); err != nil {
			logger.WithError(err).Warnf("[Shadow] failed to remove %s", parent)
			return
		}
	}
}

func (w *Wrapper) GetDirectories(path string) ([]string, error) {
	return w.current().GetDirectories(path)
}

func (w *Wrapper) GetFiles(path, filter string) ([]string, error) {
	return w.current().GetFiles(path, filter)
}

func (w *Wrapper) IsIgnored(path string, isDir bool) bool {
	return w.inner.IsIgnored(path, isDir)
}

func (w *Wrapper) DirectoryExists(path string) bool {
	return w.current().DirectoryExists(path)
}

func (w *Wrapper) FileExists(path string) bool {
	return w.current().FileExists(path)
}

func (w *Wrapper) AddFile(path string, r io.Reader, overrideIfExists bool) error {
	return w.current().AddFile(path, r, overrideIfExists)
}

func (w *Wrapper) CanAddPhysical() bool {
	return w.current().CanAddPhysical()
}

func (w *Wrapper) AddPhysicalFile(path, physicalPath string, overrideIfExists, copy bool) error {
	return w.current().AddPhysicalFile(path, physicalPath, overrideIfExists, copy)
}

func (w *Wrapper) DeleteFile(path string) error {
	return w.current().DeleteFile(path)
}

func (w *Wrapper) DeleteDirectory(path string, recursive bool) error {
	return w.current().DeleteDirectory(path, recursive)
}

func (w *Wrapper) OpenFile(path string) (io.ReadCloser, error) {
	return w.current().OpenFile(path)
}

func (w *Wrapper) GetFullPath(path string) (string, error) {
	return w.current().GetFullPath(path)
}

func (w *Wrapper) GetRelativePath(fullPathOrURL string) string {
	return w.current().GetRelativePath(fullPathOrURL)
}

func (w *Wrapper) GetURL(path string) (string, error) {
	return w.current().GetURL(path)
}

func (w *Wrapper) GetLastModified(path string) (time.Time, error) {
	return w.current().GetLastModified(path)
}

func (w *Wrapper) GetCreated(path string) (time.Time, error) {
	return w.current().GetCreated(path)
}

func (w *Wrapper) GetSize(path string) (int64, error) {
	return w.current().GetSize(path)
}

var _ filesystem.Wrapper = (*Wrapper)(nil)
