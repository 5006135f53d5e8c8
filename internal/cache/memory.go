package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache implements in-memory TTL caching
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &MemoryCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves an entry from the cache
func (c *MemoryCache) Get(key string) (*Entry, bool) {
	if val, found := c.cache.Get(key); found {
		return val.(*Entry), true
	}
	return nil, false
}

// Set stores an entry with the given TTL (0 uses the default)
func (c *MemoryCache) Set(key string, entry *Entry, ttl time.Duration) {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(key, entry, ttl)
}

// Delete removes an entry from the cache
func (c *MemoryCache) Delete(key string) {
	c.cache.Delete(key)
}

// DeletePrefix removes every entry whose key starts with prefix
func (c *MemoryCache) DeletePrefix(prefix string) int {
	removed := 0
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries from the cache
func (c *MemoryCache) Clear() {
	c.cache.Flush()
}

// Len returns the number of unexpired entries
func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}
