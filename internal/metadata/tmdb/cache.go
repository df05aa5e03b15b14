package tmdb

import (
	"sync"
	"time"

	"github.com/vadimtrunov/moviefinder/internal/core"
)

type cacheEntry struct {
	image     *core.Image
	expiresAt time.Time
}

// imageCache keeps downloaded images for a short time so that scrolling back
// over a row does not download its poster again.
type imageCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
}

func newImageCache(ttl time.Duration, maxEntries int) *imageCache {
	return &imageCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

func (c *imageCache) Get(url string) (*core.Image, bool) {
	now := time.Now()
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if !now.After(entry.expiresAt) {
		return entry.image, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check under the write lock; a concurrent Set may have refreshed it.
	if e, exists := c.entries[url]; exists {
		if time.Now().After(e.expiresAt) {
			delete(c.entries, url)
			return nil, false
		}
		return e.image, true
	}
	return nil, false
}

func (c *imageCache) Set(url string, img *core.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[url]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	c.entries[url] = cacheEntry{
		image:     img,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *imageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLocked drops expired entries, or the entry closest to expiry when
// nothing has expired yet.
func (c *imageCache) evictLocked() {
	now := time.Now()
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
