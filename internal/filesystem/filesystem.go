// Package filesystem defines the filesystem contract shared by the physical
// roots and the shadow overlays layered on top of them.
//
// Paths are relative to the filesystem root and may use either separator.
// Existence queries never fail: a missing path is simply false. Operations
// that act on a path in an unusable state return common.ErrInvalidPath.
package filesystem

import (
	"io"
	"time"
)

// FileSystem is implemented by Physical and by every shadow layer.
type FileSystem interface {
	// GetDirectories returns the relative paths of the directories directly
	// under path. A missing directory yields an empty result.
	GetDirectories(path string) ([]string, error)
	// GetFiles returns the relative paths of the files directly under path
	// whose names match filter (see CompileWildcard). An empty filter matches
	// every file.
	GetFiles(path, filter string) ([]string, error)
	// IsIgnored reports whether listings hide path. Ignored paths can still
	// be read and written directly.
	IsIgnored(path string, isDir bool) bool

	DirectoryExists(path string) bool
	FileExists(path string) bool

	AddFile(path string, r io.Reader, overrideIfExists bool) error
	DeleteFile(path string) error
	DeleteDirectory(path string, recursive bool) error
	OpenFile(path string) (io.ReadCloser, error)

	GetFullPath(path string) (string, error)
	GetRelativePath(fullPathOrURL string) string
	GetURL(path string) (string, error)
	GetLastModified(path string) (time.Time, error)
	GetCreated(path string) (time.Time, error)
	GetSize(path string) (int64, error)

	// CanAddPhysical reports whether AddPhysicalFile can ingest a file that
	// already lives on local disk.
	CanAddPhysical() bool
	AddPhysicalFile(path, physicalPath string, overrideIfExists, copy bool) error
}

// Wrapper is implemented by filesystems that decorate another one.
type Wrapper interface {
	FileSystem
	Inner() FileSystem
}

const maxUnwrapDepth = 16

// Unwrap walks Wrapper.Inner until it reaches a filesystem that wraps
// nothing. The walk is bounded so a wrapper cycle cannot hang the caller.
func Unwrap(fs FileSystem) FileSystem {
	for i := 0; i < maxUnwrapDepth; i++ {
		w, ok := fs.(Wrapper)
		if !ok {
			return fs
		}
		inner := w.Inner()
		if inner == nil {
			return fs
		}
		fs = inner
	}
	return fs
}
