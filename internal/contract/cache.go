package contract

import (
	"strings"
	"sync"
	"time"
)

// ListingCache keeps recent query results so repeated listings do not each spawn a process
type ListingCache struct {
	data    map[string]*cacheEntry
	ttl     time.Duration
	mu      sync.RWMutex
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once

	hits   int64
	misses int64
}

type cacheEntry struct {
	value      interface{}
	expiration time.Time
}

// CacheStats is a snapshot of cache usage
type CacheStats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// NewListingCache creates a cache whose entries live for ttl. Call Close to stop the sweeper.
func NewListingCache(ttl time.Duration) *ListingCache {
	sweep := ttl
	if sweep < time.Second {
		sweep = time.Second
	}
	cache := &ListingCache{
		data:    make(map[string]*cacheEntry),
		ttl:     ttl,
		cleanup: time.NewTicker(sweep),
		done:    make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

// Get returns a live entry
func (c *ListingCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok || time.Now().After(entry.expiration) {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.value, true
}

// Set stores a value under key
func (c *ListingCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &cacheEntry{
		value:      value,
		expiration: time.Now().Add(c.ttl),
	}
}

// DeleteByPrefix drops every entry whose key starts with prefix
func (c *ListingCache) DeleteByPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
}

// Clear removes all entries
func (c *ListingCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*cacheEntry)
}

// Stats returns the current size and hit counters
func (c *ListingCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{Size: len(c.data), Hits: c.hits, Misses: c.misses}
}

func (c *ListingCache) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *ListingCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, key)
		}
	}
}

// Close stops the background sweeper. It is safe to call more than once.
func (c *ListingCache) Close() {
	c.once.Do(func() {
		c.cleanup.Stop()
		close(c.done)
	})
}
