package choice

import (
	"sync"
	"time"
)

// cacheEntry holds the last successful fetch for a dynamic choice URL.
type cacheEntry struct {
	options   []string
	fetchedAt time.Time
}

// Cache is the single explicit cache actor for dynamic choice option lists,
// keyed by fetch URL with an explicit TTL per entry — owned here rather than
// as teacher-style package-private globals (spec §9 design notes call out
// `_VERSION_FETCH_CACHE`/`_PROBE_CACHE` as an anti-pattern to avoid).
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached options for url and whether the entry is still
// within ttl. found is true even for an expired entry, letting the caller
// fall back to stale data on a fetch failure (§4.3).
func (c *Cache) Get(url string, ttl time.Duration) (options []string, fresh bool, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok {
		return nil, false, false
	}
	return e.options, time.Since(e.fetchedAt) < ttl, true
}

// Set stores a fresh fetch result for url.
func (c *Cache) Set(url string, options []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = cacheEntry{options: options, fetchedAt: time.Now()}
}
