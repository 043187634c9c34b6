// Package valkey provides a cache driver backed by Valkey so that several
// ocmbridge processes share discovery results.
package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/cache"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/valkeyconn"
)

func init() {
	cache.RegisterDriver("valkey", func(raw map[string]any) (cache.Cache, error) {
		opts, err := valkeyconn.ParseOptions(raw)
		if err != nil {
			return nil, err
		}
		client, err := valkeyconn.Connect(opts)
		if err != nil {
			return nil, err
		}
		return New(client, opts.KeyPrefix, cache.TTLDiscovery), nil
	})
}

// Cache stores values as plain strings with PX expiry.
type Cache struct {
	client     valkey.Client
	prefix     string
	defaultTTL time.Duration
}

var (
	_ cache.Cache   = (*Cache)(nil)
	_ cache.Counter = (*Cache)(nil)
)

// New wraps an open client. The cache owns the client.
func New(client valkey.Client, prefix string, defaultTTL time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix + "cache:", defaultTTL: defaultTTL}
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(c.prefix+key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return b, nil
}

// Set stores value with the given TTL, or the default TTL when ttl is 0.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	cmd := c.client.B().Set().Key(c.prefix + key).Value(valkey.BinaryString(value)).PxMilliseconds(ttl.Milliseconds()).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Increment runs INCRBY and sets the window expiry when the key is new.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, window time.Duration) (int64, time.Time, error) {
	k := c.prefix + key
	count, err := c.client.Do(ctx, c.client.B().Incrby().Key(k).Increment(delta).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("cache incr %s: %w", key, err)
	}
	if count == delta {
		if err := c.client.Do(ctx, c.client.B().Pexpire().Key(k).Milliseconds(window.Milliseconds()).Build()).Error(); err != nil {
			return 0, time.Time{}, fmt.Errorf("cache expire %s: %w", key, err)
		}
		return count, time.Now().Add(window), nil
	}

	ttl, err := c.client.Do(ctx, c.client.B().Pttl().Key(k).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("cache ttl %s: %w", key, err)
	}
	if ttl < 0 {
		// Expiry lost (key created by an older writer); restart the window.
		if err := c.client.Do(ctx, c.client.B().Pexpire().Key(k).Milliseconds(window.Milliseconds()).Build()).Error(); err != nil {
			return 0, time.Time{}, fmt.Errorf("cache expire %s: %w", key, err)
		}
		ttl = window.Milliseconds()
	}
	return count, time.Now().Add(time.Duration(ttl) * time.Millisecond), nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Do(ctx, c.client.B().Del().Key(c.prefix+key).Build()).Error(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}
