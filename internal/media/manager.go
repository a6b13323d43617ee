package media

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"shadowfs/internal/filesystem"
)

// deleteConcurrency bounds parallel deletes in DeleteMediaFiles.
const deleteConcurrency = 8

// Manager stores and deletes media files through a filesystem, usually the
// shadowed media wrapper.
type Manager struct {
	fs     filesystem.FileSystem
	scheme PathScheme
}

func NewManager(fs filesystem.FileSystem, scheme PathScheme) *Manager {
	return &Manager{fs: fs, scheme: scheme}
}

func (m *Manager) FileSystem() filesystem.FileSystem { return m.fs }
func (m *Manager) Scheme() PathScheme                { return m.scheme }

// FilePath returns where the scheme places filename for item and property.
func (m *Manager) FilePath(item, property uuid.UUID, filename string) string {
	return m.scheme.FilePath(item, property, filename)
}

// Store writes r as filename for item and property, replacing any previous
// file at that path, and returns the relative path.
func (m *Manager) Store(item, property uuid.UUID, filename string, r io.Reader) (string, error) {
	p := m.FilePath(item, property, filename)
	if err := m.fs.AddFile(p, r, true); err != nil {
		return "", fmt.Errorf("failed to store media %s: %w", p, err)
	}
	log.Debugf("[Media] stored %s", p)
	return p, nil
}

// StoreFile stores a local file. The file is moved unless copy is set.
func (m *Manager) StoreFile(item, property uuid.UUID, physicalPath string, copy bool) (string, error) {
	p := m.FilePath(item, property, physicalPath)
	if m.fs.CanAddPhysical() {
		if err := m.fs.AddPhysicalFile(p, physicalPath, true, copy); err != nil {
			return "", fmt.Errorf("failed to store media %s: %w", p, err)
		}
		return p, nil
	}

	f, err := os.Open(physicalPath)
	if err != nil {
		return "", err
	}
	_, err = m.Store(item, property, physicalPath, f)
	f.Close()
	if err != nil {
		return "", err
	}
	if !copy {
		if err := os.Remove(physicalPath); err != nil {
			return "", err
		}
	}
	return p, nil
}

// URL returns the public URL of a stored file.
func (m *Manager) URL(p string) (string, error) {
	return m.fs.GetURL(p)
}

// PathFromURL maps a public URL or full path back to a relative path.
func (m *Manager) PathFromURL(url string) string {
	return m.fs.GetRelativePath(url)
}

// DeleteMediaFiles deletes every file in paths together with the directory
// the scheme created for it. Every path is attempted unless ctx is done; the
// first error is returned.
func (m *Manager) DeleteMediaFiles(ctx context.Context, paths []string) error {
	var g errgroup.Group
	g.SetLimit(deleteConcurrency)
	for _, p := range paths {
		if p == "" {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.deleteOne(p); err != nil {
				log.WithError(err).Warnf("[Media] failed to delete %s", p)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) deleteOne(p string) error {
	if err := m.fs.DeleteFile(p); err != nil {
		return err
	}
	if dir := m.scheme.DeleteDirectory(p); dir != "" {
		return m.fs.DeleteDirectory(dir, true)
	}
	return nil
}
