// Package notifications routes inbound OCM lifecycle notifications to the
// provider registered for their resource type.
package notifications

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/provider"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// Notification types handled by the bundled providers. Unknown types are
// still routed; the provider decides.
const (
	TypeShareAccepted           = "SHARE_ACCEPTED"
	TypeShareDeclined           = "SHARE_DECLINED"
	TypeShareUnshared           = "SHARE_UNSHARED"
	TypeRequestReshare          = "REQUEST_RESHARE"
	TypeReshareUndo             = "RESHARE_UNDO"
	TypeReshareChangePermission = "RESHARE_CHANGE_PERMISSION"
)

// IsKnownType reports whether t is one of the notification types above.
func IsKnownType(t string) bool {
	switch t {
	case TypeShareAccepted, TypeShareDeclined, TypeShareUnshared,
		TypeRequestReshare, TypeReshareUndo, TypeReshareChangePermission:
		return true
	}
	return false
}

var dispatchedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ocm_notifications_dispatched_total",
		Help: "Inbound notifications by dispatch result (ok or error kind).",
	},
	[]string{"result"},
)

// Dispatcher is a pure router and error translator.
type Dispatcher struct {
	registry provider.Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry provider.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logutil.NoopIfNil(logger)}
}

// Dispatch hands the notification to the resource type's provider.
//
// Provider errors that carry an ocmerr kind pass through unchanged; any
// other provider error becomes ocmerr.KindInternal.
func (d *Dispatcher) Dispatch(ctx context.Context, notificationType, resourceType, providerID string, payload map[string]any) (provider.Result, error) {
	res, err := d.dispatch(ctx, notificationType, resourceType, providerID, payload)
	if err != nil {
		dispatchedTotal.WithLabelValues(ocmerr.KindOf(err).String()).Inc()
		return nil, err
	}
	dispatchedTotal.WithLabelValues("ok").Inc()
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, notificationType, resourceType, providerID string, payload map[string]any) (provider.Result, error) {
	var missing []string
	if notificationType == "" {
		missing = append(missing, "notificationType")
	}
	if resourceType == "" {
		missing = append(missing, "resourceType")
	}
	if providerID == "" {
		missing = append(missing, "providerId")
	}
	if payload == nil {
		missing = append(missing, "notification")
	}
	if len(missing) > 0 {
		return nil, ocmerr.MissingArguments(missing...)
	}

	p, ok := d.registry.Resolve(resourceType)
	if !ok {
		return nil, ocmerr.New(ocmerr.KindProviderNotFound, "no provider for resource type "+resourceType)
	}

	log := d.logger.With("notification_type", notificationType, "resource_type", resourceType, "provider_id", providerID)
	if !IsKnownType(notificationType) {
		log.Debug("routing unknown notification type")
	}

	res, err := p.NotificationReceived(ctx, notificationType, providerID, payload)
	if err != nil {
		if ocmerr.IsClassified(err) {
			log.Info("provider declined notification", "kind", ocmerr.KindOf(err).String(), "error", err)
			return nil, err
		}
		log.Error("provider failed to handle notification", "error", err)
		return nil, ocmerr.Wrap(ocmerr.KindInternal, "provider failure", err)
	}
	if res == nil {
		res = provider.Result{}
	}
	return res, nil
}
