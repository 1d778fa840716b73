// Package dircache is a path-keyed, time-bounded cache of directory
// listings, shielding the FTP adapter from a listing round-trip on every
// filesystem lookup.
package dircache

import (
	"strings"
	"sync"
	"time"

	"github.com/ftpmount/ftpmount/listing"
)

// Entry is the cached listing of one remote directory.
type Entry struct {
	Path       string
	Entries    []listing.Entry
	InsertedAt time.Time
}

// Cache maps an absolute remote directory path to its cached listing.
// All operations hold a single mutex from entry to exit; it must never be
// held across an FTP call.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
	timeout time.Duration
}

// New returns an empty cache with the given TTL.
func New(timeout time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		timeout: timeout,
	}
}

// Get returns the cached listing for path if present and not stale. A
// stale hit is evicted before returning absent, so the next Get for the
// same path misses cleanly.
func (c *Cache) Get(path string) ([]listing.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	if time.Since(e.InsertedAt) > c.timeout {
		delete(c.entries, path)
		return nil, false
	}
	return e.Entries, true
}

// Put replaces any prior entry for path with entries, timestamped now.
// The cache takes ownership of entries; callers must not mutate the
// slice afterwards.
func (c *Cache) Put(path string, entries []listing.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[path] = Entry{
		Path:       path,
		Entries:    entries,
		InsertedAt: time.Now(),
	}
}

// Invalidate removes every cached entry at or below prefix, compared as
// path components rather than raw byte prefix: invalidating "/foo" does
// not remove an entry for "/foobar".
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if isSelfOrDescendant(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// isSelfOrDescendant reports whether key equals prefix or is a
// path-component descendant of prefix.
func isSelfOrDescendant(key, prefix string) bool {
	if key == prefix {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		// prefix is the root: everything is a descendant of "/".
		return true
	}
	return strings.HasPrefix(key, prefix+"/")
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}
