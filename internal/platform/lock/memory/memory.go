// Package memory provides an in-process lock driver.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/lock"
)

func init() {
	lock.Register("memory", func(*lock.DriverConfig) (lock.Locker, error) {
		return New(), nil
	})
}

type claim struct {
	owner     uint64
	expiresAt time.Time
}

// Locker is a map of claims guarded by a mutex. Expired claims are replaced
// lazily on the next acquisition.
type Locker struct {
	mu     sync.Mutex
	claims map[string]claim
	next   uint64
	now    func() time.Time
}

var _ lock.Locker = (*Locker)(nil)

// New creates an empty in-process locker.
func New() *Locker {
	return &Locker{claims: make(map[string]claim), now: time.Now}
}

// TryAcquire claims key for ttl, or returns lock.ErrHeld.
func (l *Locker) TryAcquire(_ context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if c, ok := l.claims[key]; ok && now.Before(c.expiresAt) {
		return nil, lock.ErrHeld
	}

	l.next++
	l.claims[key] = claim{owner: l.next, expiresAt: now.Add(ttl)}
	return &lease{locker: l, key: key, owner: l.next}, nil
}

// Close drops all claims.
func (l *Locker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claims = make(map[string]claim)
	return nil
}

type lease struct {
	locker *Locker
	key    string
	owner  uint64
}

// Release removes the claim only if it still belongs to this lease.
func (le *lease) Release(context.Context) error {
	le.locker.mu.Lock()
	defer le.locker.mu.Unlock()

	if c, ok := le.locker.claims[le.key]; ok && c.owner == le.owner {
		delete(le.locker.claims, le.key)
	}
	return nil
}
