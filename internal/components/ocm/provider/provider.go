// Package provider defines resource-type handlers and the registry that
// routes shares and notifications to them.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
)

// Result is the provider's answer to a notification, returned to the
// notifying server as the response body.
type Result map[string]any

// Provider materializes shares of one resource type.
//
// Errors carrying an ocmerr kind (typically ocmerr.Rejected) are surfaced
// verbatim; any other error is treated as an internal fault.
type Provider interface {
	// ShareReceived accepts an inbound share and returns the recipient's
	// display name.
	ShareReceived(ctx context.Context, share shares.FederatedShareRequest) (string, error)
	NotificationReceived(ctx context.Context, notificationType, providerID string, payload map[string]any) (Result, error)
	SupportedShareTypes() []string
}

// Registry resolves the provider for a resource type.
type Registry interface {
	Resolve(resourceType string) (Provider, bool)
}

// MapRegistry is a Registry backed by a map.
type MapRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

var (
	_ Registry               = (*MapRegistry)(nil)
	_ shares.ShareTypeConfig = (*MapRegistry)(nil)
)

// NewMapRegistry creates an empty registry.
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{providers: make(map[string]Provider)}
}

// Register binds p to resourceType, replacing any previous binding.
func (r *MapRegistry) Register(resourceType string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[resourceType] = p
}

// Resolve returns the provider for resourceType.
func (r *MapRegistry) Resolve(resourceType string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[resourceType]
	return p, ok
}

// SupportedShareTypes asks the registered provider, so a registry can stand
// in for configured share types.
func (r *MapRegistry) SupportedShareTypes(resourceType string) []string {
	p, ok := r.Resolve(resourceType)
	if !ok {
		return nil
	}
	return p.SupportedShareTypes()
}

// ResourceTypes returns the registered resource types, sorted.
func (r *MapRegistry) ResourceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for rt := range r.providers {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out
}
