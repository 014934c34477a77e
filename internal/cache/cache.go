// Package cache implements the proxy's in-memory response cache.
//
// Entries are keyed by the request target URL and expire lazily: a stale
// entry is ignored by Lookup and replaced by the next Store, but never
// removed in the background.
package cache

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// DefaultTTL is how long a stored response stays eligible for reuse.
const DefaultTTL = 60 * time.Second

// Entry is a cached origin response.
type Entry struct {
	Key      string
	Body     []byte
	StoredAt time.Time
}

// Cache maps request keys to complete origin responses. A single lock guards
// the whole table.
type Cache struct {
	ttl   time.Duration
	clock quartz.Clock

	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty Cache. A zero ttl uses DefaultTTL and a nil clock uses
// the real wall clock.
func New(ttl time.Duration, clock quartz.Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]Entry),
	}
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Lookup returns the body stored under key if it is younger than the TTL.
// The returned slice is shared and must not be modified.
func (c *Cache) Lookup(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.clock.Now().Sub(e.StoredAt) >= c.ttl {
		return nil, false
	}
	return e.Body, true
}

// Store replaces any entry under key with body, timestamped now. The cache
// takes ownership of body.
func (c *Cache) Store(key string, body []byte) {
	if body == nil {
		body = []byte{}
	}
	e := Entry{Key: key, Body: body, StoredAt: c.clock.Now()}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Len returns the number of entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops every entry and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	clear(c.entries)
	return n
}
