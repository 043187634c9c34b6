package outgoing

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/address"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/notifications"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store"
)

// Ledger records sent shares and moves them through their lifecycle.
type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a ledger over st.
func NewLedger(st Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: st, logger: logutil.NoopIfNil(logger), now: time.Now}
}

// WithClock returns a copy of l using now instead of time.Now.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	c := *l
	c.now = now
	return &c
}

// Record stores share as pending. A providerId that was already sent is
// rejected.
func (l *Ledger) Record(ctx context.Context, share shares.FederatedShareRequest) (Share, error) {
	host, err := address.ProviderHost(share.ShareWith)
	if err != nil {
		return Share{}, ocmerr.Wrap(ocmerr.KindMissingArguments, "shareWith is not an OCM address", err)
	}
	now := l.now()
	rec := Share{
		ProviderID:   share.ProviderID,
		ShareWith:    share.ShareWith,
		ReceiverHost: host,
		Name:         share.Name,
		ResourceType: share.ResourceType,
		ShareType:    share.ShareType,
		Owner:        share.Owner,
		Sender:       share.Sender,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		SharedSecret: share.SharedSecret(),
	}
	if err := l.store.CreateOutgoingShare(ctx, rec); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return Share{}, ocmerr.Rejected("share " + share.ProviderID + " was already sent")
		}
		return Share{}, ocmerr.Wrap(ocmerr.KindInternal, "record outgoing share", err)
	}
	l.logger.Info("outgoing share recorded", "provider_id", rec.ProviderID, "receiver", host)
	return rec, nil
}

// Apply moves the record for providerID to accepted or declined.
//
// The payload must carry the share's secret when the share has one, and a
// payload sender must live on the share's receiver host; otherwise the
// notification is UntrustedServer. Repeating the current answer is a no-op.
// An unshared record accepts no further answers.
func (l *Ledger) Apply(ctx context.Context, notificationType, providerID string, payload map[string]any) (Share, error) {
	var next Status
	switch notificationType {
	case notifications.TypeShareAccepted:
		next = StatusAccepted
	case notifications.TypeShareDeclined:
		next = StatusDeclined
	default:
		return Share{}, ocmerr.Rejected("notification type " + notificationType + " does not apply to sent shares")
	}

	rec, err := l.get(ctx, providerID)
	if err != nil {
		return Share{}, err
	}
	log := l.logger.With("provider_id", providerID, "receiver", rec.ReceiverHost)

	if rec.SharedSecret != "" && notifications.PayloadString(payload, notifications.PayloadSharedSecret) != rec.SharedSecret {
		log.Warn("notification secret mismatch")
		return Share{}, ocmerr.New(ocmerr.KindUntrustedServer, "notification does not carry the share secret")
	}
	if host := notifications.SenderHost(payload); host != "" && host != rec.ReceiverHost {
		log.Warn("notification sender mismatch", "got", host)
		return Share{}, ocmerr.New(ocmerr.KindUntrustedServer, "notification sender does not match share receiver")
	}

	switch rec.Status {
	case next:
		return rec, nil
	case StatusUnshared:
		return Share{}, ocmerr.Rejected("share " + providerID + " was unshared")
	}
	return l.move(ctx, rec, next)
}

// Unshare withdraws a sent share. Unsharing twice is rejected.
func (l *Ledger) Unshare(ctx context.Context, providerID string) (Share, error) {
	rec, err := l.get(ctx, providerID)
	if err != nil {
		return Share{}, err
	}
	if rec.Status == StatusUnshared {
		return Share{}, ocmerr.Rejected("share " + providerID + " was already unshared")
	}
	return l.move(ctx, rec, StatusUnshared)
}

// List returns every record, newest first.
func (l *Ledger) List(ctx context.Context) ([]Share, error) {
	list, err := l.store.ListOutgoingShares(ctx)
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.KindInternal, "list outgoing shares", err)
	}
	sort.Slice(list, func(a, b int) bool {
		if list[a].CreatedAt.Equal(list[b].CreatedAt) {
			return list[a].ProviderID > list[b].ProviderID
		}
		return list[a].CreatedAt.After(list[b].CreatedAt)
	})
	return list, nil
}

func (l *Ledger) get(ctx context.Context, providerID string) (Share, error) {
	rec, err := l.store.GetOutgoingShare(ctx, providerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Share{}, ocmerr.Wrap(ocmerr.KindProviderRejected, "share "+providerID, ErrUnknownShare)
		}
		return Share{}, ocmerr.Wrap(ocmerr.KindInternal, "load outgoing share", err)
	}
	return rec, nil
}

func (l *Ledger) move(ctx context.Context, rec Share, next Status) (Share, error) {
	at := l.now()
	if err := l.store.UpdateOutgoingShareStatus(ctx, rec.ProviderID, rec.Status, next, at); err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return Share{}, ocmerr.Rejected("share " + rec.ProviderID + " changed concurrently")
		}
		return Share{}, ocmerr.Wrap(ocmerr.KindInternal, "update outgoing share", err)
	}
	l.logger.Info("outgoing share status changed", "provider_id", rec.ProviderID, "from", string(rec.Status), "to", string(next))
	rec.Status = next
	rec.UpdatedAt = at
	return rec, nil
}
