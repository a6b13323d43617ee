package cache

import (
	"os"
	"sync"
	"time"

	"shadowfs/internal/common"
)

// AttrCache caches file/directory attributes with TTL-based expiration.
//
// Thread-safe: Uses RWMutex for concurrent access.
type AttrCache struct {
	mu      sync.RWMutex
	entries map[string]*attrEntry
	ttl     time.Duration
	maxSize int
}

type attrEntry struct {
	info    os.FileInfo
	expires time.Time
}

// NewAttrCache creates a new attribute cache.
// ttl: Time-to-live for cached entries (use 0 for no expiration)
// maxSize: Maximum number of entries (use 0 for unlimited)
func NewAttrCache(ttl time.Duration, maxSize int) *AttrCache {
	return &AttrCache{
		entries: make(map[string]*attrEntry, 256),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns the cached attributes for path, if present and fresh.
func (c *AttrCache) Get(path string) (os.FileInfo, bool) {
	if Disabled {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[common.NormalizePath(path)]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.info, true
}

// Set stores attributes for path. At capacity, new paths are not added.
func (c *AttrCache) Set(path string, info os.FileInfo) {
	if Disabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := common.NormalizePath(path)
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		if _, exists := c.entries[key]; !exists {
			return
		}
	}

	expires := time.Time{}
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}
	c.entries[key] = &attrEntry{info: info, expires: expires}
}

// Invalidate clears all entries from the cache.
func (c *AttrCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > 0 {
		c.entries = make(map[string]*attrEntry, 256)
	}
}

// InvalidatePath removes a specific path from the cache.
func (c *AttrCache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, common.NormalizePath(path))
}

// InvalidateTree removes path, every entry below it and every ancestor.
// Used for any mutation: adding a file can create its parents and a
// recursive delete removes a subtree.
func (c *AttrCache) InvalidateTree(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := common.NormalizePath(path)
	delete(c.entries, key)
	delete(c.entries, "")
	for _, anc := range common.Ancestors(key) {
		delete(c.entries, anc)
	}
	for k := range c.entries {
		if common.IsDescendant(key, k) {
			delete(c.entries, k)
		}
	}
}

// Size returns the current number of entries in the cache.
func (c *AttrCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// AttrCacheStats describes a cache.
type AttrCacheStats struct {
	Size    int
	MaxSize int
	TTL     time.Duration
}

// Stats returns current cache statistics.
func (c *AttrCache) Stats() AttrCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return AttrCacheStats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		TTL:     c.ttl,
	}
}

var _ Invalidator = (*AttrCache)(nil)
