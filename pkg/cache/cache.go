// Package cache provides a small in-memory TTL cache used to avoid
// redundant filesystem reads. Entries expire lazily: an expired entry is
// evicted on the lookup that observes it.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value   any
	written time.Time
	ttl     time.Duration
}

// Cache maps string keys to values with a per-entry TTL.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock (for testing).
func (c *Cache) SetNowFunc(f func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowFunc = f
}

// Set stores value under key for ttl. A non-positive ttl stores an entry
// that is already expired.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, written: c.nowFunc(), ttl: ttl}
}

// Get returns the value for key if present and fresh. An expired entry is
// treated as absent and removed.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.nowFunc().Sub(e.written) > e.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, expired ones included (they
// are only reaped on lookup).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
