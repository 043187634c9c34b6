// Package services holds the HTTP service registry and the dependencies
// shared by all services.
package services

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/delivery"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/invites"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/notifications"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/outgoing"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/provider"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/provider/inbox"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/transport"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/config"
)

// Service represents an HTTP service that can be registered and mounted.
type Service interface {
	Handler() http.Handler
	Prefix() string
	Close() error
}

// NewService is the constructor function type for services.
type NewService func(d *Deps, log *slog.Logger) (Service, error)

// Notifier sends an OCM notification to a remote server.
type Notifier interface {
	Notify(ctx context.Context, host string, n transport.Notification) error
}

// Deps holds the components services are built from. It is assembled once
// at startup.
type Deps struct {
	Config     *config.Config
	Builder    *shares.Builder
	Providers  provider.Registry
	Dispatcher *notifications.Dispatcher
	Submitter  *delivery.Submitter
	Invites    *invites.Workflow
	// Outgoing records sent shares. Nil leaves them unrecorded.
	Outgoing  *outgoing.Ledger
	Notifier  Notifier
	Discovery transport.Discoverer
	// Inboxes are the built-in providers keyed by resource type.
	Inboxes map[string]*inbox.Inbox
	// RateLimit guards the inbound federation endpoints. Nil disables it.
	RateLimit func(http.Handler) http.Handler
}
