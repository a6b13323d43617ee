// Package media places uploaded files in the media filesystem.
package media

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"shadowfs/internal/common"
	"shadowfs/internal/config"
)

// PathScheme maps an upload to a path in the media filesystem. item and
// property identify the content item and property owning the file.
type PathScheme interface {
	FilePath(item, property uuid.UUID, filename string) string
	// DeleteDirectory returns the directory to remove along with the file at
	// filePath, or "" to keep it.
	DeleteDirectory(filePath string) string
}

// NewScheme returns the scheme configured under name.
func NewScheme(name string) (PathScheme, error) {
	switch name {
	case config.SchemeUnique, "":
		return UniqueScheme{}, nil
	case config.SchemeCombined:
		return CombinedScheme{}, nil
	case config.SchemeTwoGuids:
		return TwoGuidsScheme{}, nil
	}
	return nil, fmt.Errorf("unknown media scheme %q", name)
}

var lowerBase32 = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// combine XORs two identifiers.
func combine(a, b uuid.UUID) uuid.UUID {
	var out uuid.UUID
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// UniqueScheme stores files under an 8-character directory derived from the
// item and property: "<dir>/<file>".
type UniqueScheme struct{}

func (UniqueScheme) FilePath(item, property uuid.UUID, filename string) string {
	c := combine(item, property)
	return path.Join(lowerBase32.EncodeToString(c[:])[:8], SafeFileName(filename))
}

func (UniqueScheme) DeleteDirectory(filePath string) string {
	return common.ParentPath(filePath)
}

// CombinedScheme stores files under the hex form of the combined
// identifiers: "<combined>/<file>".
type CombinedScheme struct{}

func (CombinedScheme) FilePath(item, property uuid.UUID, filename string) string {
	c := combine(item, property)
	return path.Join(hex.EncodeToString(c[:]), SafeFileName(filename))
}

func (CombinedScheme) DeleteDirectory(filePath string) string {
	return common.ParentPath(filePath)
}

// TwoGuidsScheme stores files as "<item>/<property>/<file>".
type TwoGuidsScheme struct{}

func (TwoGuidsScheme) FilePath(item, property uuid.UUID, filename string) string {
	return path.Join(
		hex.EncodeToString(item[:]),
		hex.EncodeToString(property[:]),
		SafeFileName(filename),
	)
}

// DeleteDirectory keeps the item directory, which other properties share.
func (TwoGuidsScheme) DeleteDirectory(filePath string) string {
	return common.ParentPath(filePath)
}

// SafeFileName strips any directory from name and replaces characters that
// are unsafe in URLs with '-'.
func SafeFileName(name string) string {
	name = common.BaseName(name)
	var b strings.Builder
	dash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = true
		}
	}
	out := strings.Trim(strings.ReplaceAll(b.String(), "-.", "."), "-.")
	if out == "" {
		return "file"
	}
	return out
}
