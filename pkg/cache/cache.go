package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// item is one cached value with its expiry.
type item[V any] struct {
	value     V
	expiresAt time.Time
}

func (it item[V]) expired() bool {
	return time.Now().After(it.expiresAt)
}

// Cache is a TTL map safe for concurrent use. Expired entries stop being
// served immediately and are swept in the background until Stop is called.
type Cache[V any] struct {
	items      map[string]item[V]
	mu         sync.RWMutex
	defaultTTL time.Duration
	stopSweep  chan struct{}
}

// New creates a cache. Entries written without an explicit TTL expire
// after defaultTTL.
func New[V any](defaultTTL time.Duration) *Cache[V] {
	c := &Cache[V]{
		items:      make(map[string]item[V]),
		defaultTTL: defaultTTL,
		stopSweep:  make(chan struct{}),
	}

	interval := defaultTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	go c.sweep(interval)

	return c
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || it.expired() {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores a value with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with a custom TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// GetOrSet returns the cached value for key, running fill on a miss and
// caching its result. A ttl <= 0 uses the default. Concurrent misses may
// each run fill; the last result wins.
func (c *Cache[V]) GetOrSet(ctx context.Context, key string, ttl time.Duration, fill func(context.Context) (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err := fill(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.SetWithTTL(key, value, ttl)
	return value, nil
}

// Delete removes a key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidatePrefix drops every entry whose key starts with prefix.
func (c *Cache[V]) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item[V])
}

// Size returns the number of stored entries, expired ones included until
// the next sweep.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stop ends the background sweep goroutine.
func (c *Cache[V]) Stop() {
	close(c.stopSweep)
}

func (c *Cache[V]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *Cache[V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, it := range c.items {
		if it.expired() {
			delete(c.items, key)
		}
	}
}
