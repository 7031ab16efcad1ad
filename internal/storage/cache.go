package storage

import (
	"sort"
	"sync"
)

// Entry is one cached object.
type Entry struct {
	Path    string
	Content Content
}

// Cache is the in-memory write-back cache owned by one backend adapter.
//
// The embedded mutex is the adapter's lock. Every public adapter operation
// takes it exactly once; the other Cache methods never lock and must only
// be called while it is held.
type Cache struct {
	sync.Mutex

	items   map[string]Content
	enabled bool
}

// NewCache creates a cache. A disabled cache never stores anything.
func NewCache(enabled bool) *Cache {
	return &Cache{
		items:   make(map[string]Content),
		enabled: enabled,
	}
}

// Enabled reports whether reads and writes go through the cache.
func (c *Cache) Enabled() bool { return c.enabled }

// SetEnabled toggles caching. Used to bypass the cache while flushing.
func (c *Cache) SetEnabled(v bool) { c.enabled = v }

// Get retrieves a cached object.
func (c *Cache) Get(path string) (Content, bool) {
	v, ok := c.items[path]
	return v, ok
}

// Put stores an object in the cache.
func (c *Cache) Put(path string, v Content) {
	c.items[path] = v
}

// Has checks if path is cached.
func (c *Cache) Has(path string) bool {
	_, ok := c.items[path]
	return ok
}

// Remove drops path from the cache.
func (c *Cache) Remove(path string) {
	delete(c.items, path)
}

// Len returns the number of cached objects.
func (c *Cache) Len() int { return len(c.items) }

// Size returns the total cached payload in bytes.
func (c *Cache) Size() int64 {
	var total int64
	for _, v := range c.items {
		total += v.Len()
	}
	return total
}

// Snapshot returns the cached entries ordered by path.
func (c *Cache) Snapshot() []Entry {
	out := make([]Entry, 0, len(c.items))
	for p, v := range c.items {
		out = append(out, Entry{Path: p, Content: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.items = make(map[string]Content)
}
