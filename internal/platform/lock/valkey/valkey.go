// Package valkey provides a lock driver backed by Valkey, for deployments
// that run more than one ocmbridge process against the same store.
package valkey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/lock"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/valkeyconn"
)

func init() {
	lock.Register("valkey", func(cfg *lock.DriverConfig) (lock.Locker, error) {
		opts, err := valkeyconn.ParseOptions(cfg.Options)
		if err != nil {
			return nil, err
		}
		client, err := valkeyconn.Connect(opts)
		if err != nil {
			return nil, err
		}
		return New(client, opts.KeyPrefix), nil
	})
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker claims keys with SET NX PX.
type Locker struct {
	client valkey.Client
	prefix string
}

var _ lock.Locker = (*Locker)(nil)

// New wraps an open client. The locker owns the client and closes it on
// Close.
func New(client valkey.Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix + "lock:"}
}

// TryAcquire claims key for ttl, or returns lock.ErrHeld.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ms := ttl.Milliseconds()
	if ms <= 0 {
		ms = 1
	}

	full := l.prefix + key
	cmd := l.client.B().Set().Key(full).Value(token).Nx().PxMilliseconds(ms).Build()
	if err := l.client.Do(ctx, cmd).Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, lock.ErrHeld
		}
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return &lease{client: l.client, key: full, token: token}, nil
}

// Close closes the underlying client.
func (l *Locker) Close() error {
	l.client.Close()
	return nil
}

type lease struct {
	client valkey.Client
	key    string
	token  string
}

func (le *lease) Release(ctx context.Context) error {
	if err := releaseScript.Exec(ctx, le.client, []string{le.key}, []string{le.token}).Error(); err != nil {
		return fmt.Errorf("unlock %s: %w", le.key, err)
	}
	return nil
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
