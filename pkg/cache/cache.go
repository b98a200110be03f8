// Package cache provides a client-side LRU cache of downloaded files.
// Entries are keyed by tenant, path, and the file's last-modified
// stamp, so a file republished on the server misses cleanly instead of
// serving stale bytes.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry records one cached download.
type Entry struct {
	Tenant       string
	Path         string
	LastModified int64
	LocalPath    string
	Size         int64
	lastAccess   time.Time
}

// Cache manages locally cached downloads under one directory.
type Cache struct {
	dir     string
	maxSize int64

	mu      sync.RWMutex
	entries map[string]*Entry
	size    int64
}

// New creates a cache rooted at dir, creating it if needed.
func New(dir string, maxSize int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:     dir,
		maxSize: maxSize,
		entries: make(map[string]*Entry),
	}, nil
}

func key(tenant, path string, lastModified int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%s@%d", tenant, path, lastModified)))
	return hex.EncodeToString(sum[:16])
}

// Get returns the local path of a cached download whose last-modified
// stamp still matches.
func (c *Cache) Get(tenant, path string, lastModified int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key(tenant, path, lastModified)]
	if !ok {
		return "", false
	}
	entry.lastAccess = time.Now()
	return entry.LocalPath, true
}

// Put stores downloaded content. The bytes land in a temp file and
// are renamed into place, so a crashed download never leaves a
// half-written cache entry behind.
func (c *Cache) Put(tenant, path string, lastModified int64, r io.Reader) (string, error) {
	k := key(tenant, path, lastModified)
	localPath := filepath.Join(c.dir, k)
	tempPath := localPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	written, err := io.Copy(f, r)
	f.Close()
	if err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("write content: %w", err)
	}
	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename temp file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[k]; ok {
		c.size -= old.Size
	}
	c.entries[k] = &Entry{
		Tenant:       tenant,
		Path:         path,
		LastModified: lastModified,
		LocalPath:    localPath,
		Size:         written,
		lastAccess:   time.Now(),
	}
	c.size += written

	for c.size > c.maxSize {
		if !c.evictOldest() {
			break
		}
	}
	return localPath, nil
}

// evictOldest removes the least recently used entry. Lock held.
func (c *Cache) evictOldest() bool {
	var oldest *Entry
	var oldestKey string
	for k, entry := range c.entries {
		if oldest == nil || entry.lastAccess.Before(oldest.lastAccess) {
			oldest = entry
			oldestKey = k
		}
	}
	if oldest == nil {
		return false
	}
	os.Remove(oldest.LocalPath)
	c.size -= oldest.Size
	delete(c.entries, oldestKey)
	return true
}

// Evict removes one entry if present.
func (c *Cache) Evict(tenant, path string, lastModified int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(tenant, path, lastModified)
	if entry, ok := c.entries[k]; ok {
		os.Remove(entry.LocalPath)
		c.size -= entry.Size
		delete(c.entries, k)
	}
}

// Clear removes every entry and returns how many were dropped.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := len(c.entries)
	for k, entry := range c.entries {
		os.Remove(entry.LocalPath)
		delete(c.entries, k)
	}
	c.size = 0
	return count
}

// Stats returns current size, the size limit, and the entry count.
func (c *Cache) Stats() (size, maxSize int64, count int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size, c.maxSize, len(c.entries)
}

// IsCached reports whether an up-to-date entry exists.
func (c *Cache) IsCached(tenant, path string, lastModified int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key(tenant, path, lastModified)]
	return ok
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string { return c.dir }
