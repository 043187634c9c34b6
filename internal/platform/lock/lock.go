// Package lock provides short-lived, per-key exclusive claims.
//
// A claim gives its holder at-most-one-in-flight execution for a key (a
// delivery job id, an invitation token). Claims expire after their TTL so a
// crashed holder cannot wedge a key forever.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrHeld is returned by TryAcquire when another owner holds the key.
var ErrHeld = errors.New("lock: key is held by another owner")

// Lease is a held claim.
type Lease interface {
	// Release gives the claim up. Releasing an expired or already released
	// lease is not an error.
	Release(ctx context.Context) error
}

// Locker hands out claims. Implementations must be safe for concurrent use.
type Locker interface {
	// TryAcquire claims key for ttl without blocking. It returns ErrHeld when
	// the key is already claimed.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)

	// Close releases resources held by the locker.
	Close() error
}

// DriverConfig selects and configures a lock driver.
type DriverConfig struct {
	// Driver is the driver name: memory, valkey.
	Driver string

	// Options holds the raw driver section ([lock.drivers.<name>]), decoded
	// by the driver itself.
	Options map[string]any
}

// DriverFactory creates a Locker from its configuration.
type DriverFactory func(cfg *DriverConfig) (Locker, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register registers a driver factory by name. Called from init() in driver
// packages.
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a Locker for cfg.Driver.
func New(cfg *DriverConfig) (Locker, error) {
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown lock driver: %s", cfg.Driver)
	}
	return factory(cfg)
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
