// Copyright 2024 LatentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"path"
	"strings"
)

// CleanPath turns a caller-supplied relative path into the slash-separated
// form used for on-disk calls. Case is preserved.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// NormalizePath returns the ledger key for a path: cleaned, forward slashes
// and lower-case. It must never be used for on-disk calls.
func NormalizePath(p string) string {
	return strings.ToLower(CleanPath(p))
}

// SplitPath splits a path into its components
func SplitPath(p string) []string {
	p = CleanPath(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// JoinPath joins path components
func JoinPath(parts ...string) string {
	return CleanPath(path.Join(parts...))
}

// ParentPath returns the parent directory of a path
func ParentPath(p string) string {
	p = CleanPath(p)
	if p == "" {
		return ""
	}
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

// BaseName returns the base name of a path
func BaseName(p string) string {
	p = CleanPath(p)
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// Ancestors returns every proper ancestor of p, shallowest first.
// Ancestors("a/b/c.txt") is ["a", "a/b"].
func Ancestors(p string) []string {
	parts := SplitPath(p)
	if len(parts) < 2 {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "/"))
	}
	return out
}

// Depth returns the number of components in p ("" has depth 0).
func Depth(p string) int {
	return len(SplitPath(p))
}

// IsChild reports whether key is a direct child of dir. Both must already be
// normalized.
func IsChild(dir, key string) bool {
	rest, ok := underDir(dir, key)
	return ok && !strings.Contains(rest, "/")
}

// IsDescendant reports whether key lies anywhere below dir. Both must already
// be normalized.
func IsDescendant(dir, key string) bool {
	_, ok := underDir(dir, key)
	return ok
}

func underDir(dir, key string) (string, bool) {
	if key == "" || key == dir {
		return "", false
	}
	if dir == "" {
		return key, true
	}
	if !strings.HasPrefix(key, dir+"/") {
		return "", false
	}
	return key[len(dir)+1:], true
}
