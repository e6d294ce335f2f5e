// Package cache provides an in-memory result cache keyed by query
// digest and validation level. It is consulted only after the ethics
// filter has accepted a query, so a rejected request can never be
// answered from a previously cached reply.
package cache

import (
	"sync"
	"time"

	"github.com/veriquery/veriquery/internal/models"
)

// Key identifies a cached result. The digest is the SHA-256 of the
// query text; the level is part of the key because validation changes
// the report embedded in the result.
type Key struct {
	Digest string
	Level  models.ValidationLevel
}

type item struct {
	result    models.QueryResult
	expiresAt time.Time
	storedAt  time.Time
}

// ResultCache is a bounded TTL cache of successful query results.
// The zero value is unusable; construct with New. A nil *ResultCache
// behaves as a disabled cache.
type ResultCache struct {
	mu      sync.Mutex
	data    map[Key]*item
	ttl     time.Duration
	maxSize int
}

// New creates a cache with the given TTL and entry cap. A
// non-positive maxSize allows unbounded growth within the TTL.
func New(ttl time.Duration, maxSize int) *ResultCache {
	return &ResultCache{
		data:    make(map[Key]*item),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns a cached result if it is present and unexpired.
func (c *ResultCache) Get(key Key) (models.QueryResult, bool) {
	if c == nil {
		return models.QueryResult{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.data[key]
	if !ok {
		return models.QueryResult{}, false
	}
	if time.Now().After(it.expiresAt) {
		delete(c.data, key)
		return models.QueryResult{}, false
	}
	return it.result, true
}

// Set stores a result. Only successful results belong in the cache;
// callers are expected to filter.
func (c *ResultCache) Set(key Key, result models.QueryResult) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.data) >= c.maxSize {
		if _, exists := c.data[key]; !exists {
			c.evictOldest()
		}
	}
	now := time.Now()
	c.data[key] = &item{
		result:    result,
		expiresAt: now.Add(c.ttl),
		storedAt:  now,
	}
}

// Clear drops every entry, used on configuration reload.
func (c *ResultCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[Key]*item)
}

// Len reports the current entry count.
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// evictOldest removes the entry stored longest ago. Caller holds the
// lock.
func (c *ResultCache) evictOldest() {
	var oldestKey Key
	var oldestAt time.Time
	first := true
	for k, it := range c.data {
		if first || it.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, it.storedAt
			first = false
		}
	}
	if !first {
		delete(c.data, oldestKey)
	}
}
