package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/cache"
)

func TestCache_SetGetDelete(t *testing.T) {
	c := New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "discovery:example.org", []byte(`{"enabled":true}`), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := c.Get(ctx, "discovery:example.org")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != `{"enabled":true}` {
		t.Errorf("unexpected value %q", val)
	}

	if err := c.Delete(ctx, "discovery:example.org"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "discovery:example.org"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCache_Expiration(t *testing.T) {
	now := time.Unix(5000, 0)
	c := New(time.Minute, 0)
	c.now = func() time.Time { return now }
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), 10*time.Second)

	now = now.Add(11 * time.Second)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}

	c.deleteExpired()
	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound after cleanup, got %v", err)
	}
}

func TestCache_ValueIsolation(t *testing.T) {
	c := New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	original := []byte("original")
	_ = c.Set(ctx, "key1", original, time.Minute)
	original[0] = 'X'

	val, _ := c.Get(ctx, "key1")
	if string(val) != "original" {
		t.Errorf("cache value was mutated: %q", val)
	}
	val[0] = 'Y'

	val2, _ := c.Get(ctx, "key1")
	if string(val2) != "original" {
		t.Errorf("cache value was mutated via returned slice: %q", val2)
	}
}

func TestRegisteredDriver(t *testing.T) {
	c, err := cache.New("memory", map[string]any{"default_ttl": "30s"})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer c.Close()

	mc, ok := c.(*Cache)
	if !ok {
		t.Fatalf("unexpected type %T", c)
	}
	if mc.defaultTTL != 30*time.Second {
		t.Errorf("defaultTTL = %v", mc.defaultTTL)
	}

	if _, err := cache.New("memory", map[string]any{"ttl": "30s"}); err == nil {
		t.Error("expected unknown option to be rejected")
	}
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, time.Hour)
	_ = c.Close()
	_ = c.Close()
}

func TestCache_IncrementWindow(t *testing.T) {
	now := time.Unix(5000, 0)
	c := New(time.Minute, 0)
	c.now = func() time.Time { return now }
	defer c.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, resetAt, err := c.Increment(ctx, "rl:1.2.3.4", 1, 10*time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if got != want || !resetAt.Equal(now.Add(10*time.Second)) {
			t.Errorf("Increment = %d, %v; want %d", got, resetAt, want)
		}
	}

	now = now.Add(11 * time.Second)
	got, resetAt, _ := c.Increment(ctx, "rl:1.2.3.4", 1, 10*time.Second)
	if got != 1 || !resetAt.Equal(now.Add(10*time.Second)) {
		t.Errorf("after window: Increment = %d, %v; want a fresh window", got, resetAt)
	}
}
