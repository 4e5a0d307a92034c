package cache

import (
	"sync"
	"time"
)

// Cache is a small TTL cache. The email worker uses it to keep per-domain
// DKIM lookups out of the hot path; entries expire by TTL, never by LRU.
type Cache interface {
	// Get retrieves a value, returning false when absent or expired.
	Get(key string) (interface{}, bool)

	// Set stores a value with the specified TTL.
	Set(key string, value interface{}, ttl time.Duration)

	// GetOrSet atomically gets a value or computes and caches it if not found.
	// The compute function is only called on a miss.
	GetOrSet(key string, ttl time.Duration, compute func() (interface{}, error)) (interface{}, error)

	// Delete removes a specific key.
	Delete(key string)

	// Size returns the number of items currently held, expired included.
	Size() int

	// Stop shuts down the background cleanup goroutine.
	Stop()
}

type item struct {
	value      interface{}
	expiration time.Time
}

func (it *item) expired() bool {
	return time.Now().After(it.expiration)
}

// InMemoryCache is a thread-safe in-memory Cache implementation.
type InMemoryCache struct {
	mu          sync.RWMutex
	items       map[string]*item
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewInMemoryCache creates a cache whose expired entries are swept every
// cleanupInterval.
func NewInMemoryCache(cleanupInterval time.Duration) *InMemoryCache {
	c := &InMemoryCache{
		items:       make(map[string]*item),
		stopCleanup: make(chan struct{}),
	}

	go c.runCleanup(cleanupInterval)

	return c
}

func (c *InMemoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, found := c.items[key]
	if !found || it.expired() {
		return nil, false
	}
	return it.value, true
}

func (c *InMemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &item{value: value, expiration: time.Now().Add(ttl)}
}

func (c *InMemoryCache) GetOrSet(key string, ttl time.Duration, compute func() (interface{}, error)) (interface{}, error) {
	c.mu.RLock()
	it, found := c.items[key]
	if found && !it.expired() {
		c.mu.RUnlock()
		return it.value, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the write lock; another goroutine may have computed it.
	it, found = c.items[key]
	if found && !it.expired() {
		return it.value, nil
	}

	value, err := compute()
	if err != nil {
		return nil, err
	}

	c.items[key] = &item{value: value, expiration: time.Now().Add(ttl)}
	return value, nil
}

func (c *InMemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

func (c *InMemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

func (c *InMemoryCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

func (c *InMemoryCache) runCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, it := range c.items {
				if now.After(it.expiration) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}
