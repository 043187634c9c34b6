// Package cache provides TTL key-value caching with pluggable drivers.
// Discovery documents are the main tenant; rate-limit counters share the
// same backend through Counter.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

// Counter provides fixed-window counters for rate limiting.
type Counter interface {
	// Increment adds delta to key and returns the new count. The window
	// starts at the first increment; resetAt is when the count drops back
	// to zero.
	Increment(ctx context.Context, key string, delta int64, window time.Duration) (count int64, resetAt time.Time, err error)
}

// TTLDiscovery is the default lifetime of a cached discovery document.
const TTLDiscovery = 15 * time.Minute

// Factory creates a cache from its raw [cache.drivers.<name>] section.
type Factory func(options map[string]any) (Cache, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// RegisterDriver registers a cache driver. Called from init() in driver
// packages.
func RegisterDriver(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = f
}

// New creates a cache using the named driver.
func New(driver string, options map[string]any) (Cache, error) {
	driversMu.RLock()
	f, ok := drivers[driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache driver: %s", driver)
	}
	return f(options)
}

// AvailableDrivers returns the registered driver names, sorted.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
