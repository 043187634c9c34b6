// Package memory implements an in-process store driver. State is lost on
// restart; use it for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/delivery"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/invites"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/outgoing"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store"
)

func init() {
	store.Register("memory", func(*store.DriverConfig) (store.Driver, error) {
		return New(), nil
	})
}

// Driver keeps jobs, tokens and sent shares in maps guarded by one RWMutex.
type Driver struct {
	mu     sync.RWMutex
	jobs   map[string]delivery.Job
	tokens map[string]invites.Token
	sent   map[string]outgoing.Share
}

var (
	_ store.Driver       = (*Driver)(nil)
	_ delivery.Queue     = (*Driver)(nil)
	_ invites.TokenStore = (*Driver)(nil)
	_ outgoing.Store     = (*Driver)(nil)
)

// New creates an empty driver.
func New() *Driver {
	return &Driver{
		jobs:   make(map[string]delivery.Job),
		tokens: make(map[string]invites.Token),
		sent:   make(map[string]outgoing.Share),
	}
}

// Name returns the driver name.
func (d *Driver) Name() string { return "memory" }

// Init is a no-op.
func (d *Driver) Init(context.Context) error { return nil }

// Close is a no-op.
func (d *Driver) Close() error { return nil }

// Enqueue stores a new job.
func (d *Driver) Enqueue(_ context.Context, job delivery.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.jobs[job.ID]; ok {
		return fmt.Errorf("job %s: %w", job.ID, store.ErrAlreadyExists)
	}
	d.jobs[job.ID] = job
	return nil
}

// Get returns a job by id.
func (d *Driver) Get(_ context.Context, id string) (delivery.Job, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	job, ok := d.jobs[id]
	if !ok {
		return delivery.Job{}, store.ErrNotFound
	}
	return job, nil
}

// Due returns up to limit jobs last run before the given time, oldest first.
func (d *Driver) Due(_ context.Context, before time.Time, limit int) ([]delivery.Job, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var due []delivery.Job
	for _, job := range d.jobs {
		if job.LastRun.Before(before) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].LastRun.Equal(due[j].LastRun) {
			return due[i].ID < due[j].ID
		}
		return due[i].LastRun.Before(due[j].LastRun)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Reschedule updates Try and LastRun if the stored Try equals expectTry.
func (d *Driver) Reschedule(_ context.Context, id string, expectTry, try int, lastRun time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	job, ok := d.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if job.Try != expectTry {
		return fmt.Errorf("job %s try is %d, expected %d: %w", id, job.Try, expectTry, store.ErrConflict)
	}
	job.Try = try
	job.LastRun = lastRun
	d.jobs[id] = job
	return nil
}

// Remove deletes a job.
func (d *Driver) Remove(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(d.jobs, id)
	return nil
}

// CreateToken stores a new token.
func (d *Driver) CreateToken(_ context.Context, t invites.Token) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.tokens[t.ID]; ok {
		return fmt.Errorf("token %s: %w", t.ID, store.ErrAlreadyExists)
	}
	d.tokens[t.ID] = t
	return nil
}

// FindTokens returns every token matching the triple.
func (d *Driver) FindTokens(_ context.Context, token, userID, recipientProvider string) ([]invites.Token, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []invites.Token
	for _, t := range d.tokens {
		if t.Token == token && t.UserID == userID && t.RecipientProvider == recipientProvider {
			out = append(out, t)
		}
	}
	return out, nil
}

// UpdateTokenStatus moves a token from one status to another.
func (d *Driver) UpdateTokenStatus(_ context.Context, id string, from, to invites.Status) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tokens[id]
	if !ok {
		return store.ErrNotFound
	}
	if t.Status != from {
		return fmt.Errorf("token %s is %s, expected %s: %w", id, t.Status, from, store.ErrConflict)
	}
	t.Status = to
	d.tokens[id] = t
	return nil
}

// CreateOutgoingShare stores a new sent-share record.
func (d *Driver) CreateOutgoingShare(_ context.Context, share outgoing.Share) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sent[share.ProviderID]; ok {
		return fmt.Errorf("outgoing share %s: %w", share.ProviderID, store.ErrAlreadyExists)
	}
	d.sent[share.ProviderID] = share
	return nil
}

// GetOutgoingShare returns a sent-share record by providerId.
func (d *Driver) GetOutgoingShare(_ context.Context, providerID string) (outgoing.Share, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	share, ok := d.sent[providerID]
	if !ok {
		return outgoing.Share{}, store.ErrNotFound
	}
	return share, nil
}

// ListOutgoingShares returns every sent-share record in no particular order.
func (d *Driver) ListOutgoingShares(context.Context) ([]outgoing.Share, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]outgoing.Share, 0, len(d.sent))
	for _, share := range d.sent {
		out = append(out, share)
	}
	return out, nil
}

// UpdateOutgoingShareStatus moves a record from one status to another.
func (d *Driver) UpdateOutgoingShareStatus(_ context.Context, providerID string, from, to outgoing.Status, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	share, ok := d.sent[providerID]
	if !ok {
		return store.ErrNotFound
	}
	if share.Status != from {
		return fmt.Errorf("outgoing share %s is %s, expected %s: %w", providerID, share.Status, from, store.ErrConflict)
	}
	share.Status = to
	share.UpdatedAt = at
	d.sent[providerID] = share
	return nil
}
