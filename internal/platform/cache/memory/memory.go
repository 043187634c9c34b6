// Package memory provides an in-memory cache implementation with TTL support.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/cache"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/config"
)

// Options is the [cache.drivers.memory] section.
type Options struct {
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ApplyDefaults fills unset fields.
func (o *Options) ApplyDefaults() {
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = cache.TTLDiscovery
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 5 * time.Minute
	}
}

func init() {
	cache.RegisterDriver("memory", func(raw map[string]any) (cache.Cache, error) {
		var o Options
		if err := config.DecodeOptionsStrict(raw, &o); err != nil {
			return nil, err
		}
		return New(o.DefaultTTL, o.CleanupInterval), nil
	})
}

type item struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

func (i *item) isExpired(now time.Time) bool {
	return now.After(i.expiresAt)
}

// Cache is an in-memory cache with TTL support.
type Cache struct {
	mu         sync.RWMutex
	items      map[string]*item
	defaultTTL time.Duration
	stopClean  chan struct{}
	stopOnce   sync.Once
	now        func() time.Time
}

var (
	_ cache.Cache   = (*Cache)(nil)
	_ cache.Counter = (*Cache)(nil)
)

// New creates a new in-memory cache.
// cleanupInterval specifies how often to run the cleanup goroutine (0 disables).
func New(defaultTTL time.Duration, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		items:      make(map[string]*item),
		defaultTTL: defaultTTL,
		stopClean:  make(chan struct{}),
		now:        time.Now,
	}

	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}

	return c
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopClean:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, v := range c.items {
		if v.isExpired(now) {
			delete(c.items, k)
		}
	}
}

// Get retrieves a copy of the value stored under key.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if it.isExpired(c.now()) {
		return nil, cache.ErrExpired
	}

	result := make([]byte, len(it.value))
	copy(result, it.value)
	return result, nil
}

// Set stores a copy of value with the given TTL.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &item{value: valueCopy, expiresAt: c.now().Add(ttl)}
	return nil
}

// Increment adds delta to the counter under key, starting a new window when
// the key is absent or expired.
func (c *Cache) Increment(_ context.Context, key string, delta int64, window time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	it, ok := c.items[key]
	if !ok || it.isExpired(now) {
		it = &item{expiresAt: now.Add(window)}
		c.items[key] = it
	}
	it.count += delta
	return it.count, it.expiresAt, nil
}

// Delete removes a key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stopClean) })
	return nil
}
