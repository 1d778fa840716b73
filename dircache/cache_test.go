package dircache

import (
	"testing"
	"time"

	"github.com/ftpmount/ftpmount/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func someEntries() []listing.Entry {
	return []listing.Entry{{Name: "a", Kind: listing.File}}
}

func TestCacheTTL(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Put("/a", someEntries())

	_, ok := c.Get("/a")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	_, ok = c.Get("/a")
	assert.False(t, ok)

	// the stale read must have evicted the entry.
	c.mu.Lock()
	_, stillThere := c.entries["/a"]
	c.mu.Unlock()
	assert.False(t, stillThere)
}

func TestCacheInvalidatePathComponent(t *testing.T) {
	c := New(time.Minute)
	c.Put("/a", someEntries())
	c.Put("/a/b", someEntries())
	c.Put("/ab", someEntries())

	c.Invalidate("/a")

	_, ok := c.Get("/a")
	assert.False(t, ok)
	_, ok = c.Get("/a/b")
	assert.False(t, ok)

	// "/ab" is not a path-component descendant of "/a" and must survive.
	_, ok = c.Get("/ab")
	assert.True(t, ok)
}

func TestCachePutReplaces(t *testing.T) {
	c := New(time.Minute)
	c.Put("/a", someEntries())
	c.Put("/a", nil)

	entries, ok := c.Get("/a")
	assert.True(t, ok)
	assert.Empty(t, entries)
}

func TestCacheClear(t *testing.T) {
	c := New(time.Minute)
	c.Put("/a", someEntries())
	c.Clear()

	_, ok := c.Get("/a")
	assert.False(t, ok)
}

func TestCacheInvalidateRoot(t *testing.T) {
	c := New(time.Minute)
	c.Put("/a", someEntries())
	c.Put("/b/c", someEntries())

	c.Invalidate("/")

	_, ok := c.Get("/a")
	assert.False(t, ok)
	_, ok = c.Get("/b/c")
	assert.False(t, ok)
}
