// Package inbox is a file-share provider that keeps received shares in
// memory and applies lifecycle notifications to them. Received shares are
// keyed by sender host and providerId.
package inbox

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/address"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/notifications"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/outgoing"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/provider"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// ErrUnknownShare is wrapped by Respond when no share has the given id.
var ErrUnknownShare = errors.New("unknown share")

// Status of a received share.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusUnshared Status = "unshared"
)

// Share is a received share as the inbox stores it.
type Share struct {
	ID         string `json:"id"`
	ProviderID string `json:"providerId"`
	ShareWith  string `json:"shareWith"`
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	Sender     string `json:"sender"`
	ShareType  string `json:"shareType"`
	// ResourceType is the resource type the share arrived for.
	ResourceType string    `json:"resourceType"`
	Status       Status    `json:"status"`
	ReceivedAt   time.Time `json:"receivedAt"`
	// SharedSecret is kept for WebDAV access and never serialized.
	SharedSecret string `json:"-"`
}

// SentShares applies the receiver's answers to shares this server sent.
type SentShares interface {
	Apply(ctx context.Context, notificationType, providerID string, payload map[string]any) (outgoing.Share, error)
}

// receivedKey scopes a providerId to the host that sent it; two senders may
// use the same providerId.
type receivedKey struct {
	host       string
	providerID string
}

// Inbox implements provider.Provider.
type Inbox struct {
	mu         sync.RWMutex
	received   map[receivedKey]*Share
	shareTypes []string
	sent       SentShares
	logger     *slog.Logger
	now        func() time.Time
}

var _ provider.Provider = (*Inbox)(nil)

// Option customizes an Inbox.
type Option func(*Inbox)

// WithSentShares routes SHARE_ACCEPTED and SHARE_DECLINED to sent. Without
// it those notifications are rejected.
func WithSentShares(sent SentShares) Option {
	return func(i *Inbox) { i.sent = sent }
}

// New creates an inbox accepting the given share types.
func New(shareTypes []string, logger *slog.Logger, opts ...Option) *Inbox {
	i := &Inbox{
		received:   make(map[receivedKey]*Share),
		shareTypes: append([]string(nil), shareTypes...),
		logger:     logutil.NoopIfNil(logger),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SupportedShareTypes returns the configured share types.
func (i *Inbox) SupportedShareTypes() []string {
	return append([]string(nil), i.shareTypes...)
}

// ShareReceived stores share as pending. A second share with the same
// providerId from the same sender host, or a share that has already expired,
// is rejected.
func (i *Inbox) ShareReceived(_ context.Context, share shares.FederatedShareRequest) (string, error) {
	if share.Expiration != nil && share.Expiration.Before(i.now()) {
		return "", ocmerr.Rejected("share has already expired")
	}

	recipient, _, err := address.Parse(share.ShareWith)
	if err != nil {
		return "", ocmerr.Rejected("shareWith is not an OCM address")
	}
	host, err := address.ProviderHost(share.Sender)
	if err != nil {
		return "", ocmerr.Rejected("sender is not an OCM address")
	}
	key := receivedKey{host: host, providerID: share.ProviderID}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.received[key]; ok {
		return "", ocmerr.Rejected("share " + share.ProviderID + " from " + host + " was already received")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", ocmerr.Wrap(ocmerr.KindInternal, "generate share id", err)
	}
	i.received[key] = &Share{
		ID:           id.String(),
		ProviderID:   share.ProviderID,
		ShareWith:    share.ShareWith,
		Name:         share.Name,
		Owner:        share.Owner,
		Sender:       share.Sender,
		ShareType:    share.ShareType,
		ResourceType: share.ResourceType,
		Status:       StatusPending,
		ReceivedAt:   i.now(),
		SharedSecret: share.SharedSecret(),
	}
	i.logger.Info("share received", "share_id", id.String(), "provider_id", share.ProviderID, "sender", share.Sender)
	return recipient, nil
}

// NotificationReceived applies lifecycle notifications. SHARE_ACCEPTED and
// SHARE_DECLINED answer a share this server sent and go to the sent-share
// ledger. SHARE_UNSHARED withdraws a received share. Other notification types
// are rejected.
func (i *Inbox) NotificationReceived(ctx context.Context, notificationType, providerID string, payload map[string]any) (provider.Result, error) {
	switch notificationType {
	case notifications.TypeShareAccepted, notifications.TypeShareDeclined:
		if i.sent == nil {
			return nil, ocmerr.Rejected("no record of sent shares")
		}
		rec, err := i.sent.Apply(ctx, notificationType, providerID, payload)
		if err != nil {
			return nil, err
		}
		return provider.Result{"status": string(rec.Status)}, nil
	case notifications.TypeShareUnshared:
		return i.unshare(providerID, payload)
	default:
		return nil, ocmerr.Rejected("notification type " + notificationType + " is not supported for files")
	}
}

// unshare finds the received share the payload identifies. A payload sender
// narrows the search to that host; the payload secret must match the
// share's.
func (i *Inbox) unshare(providerID string, payload map[string]any) (provider.Result, error) {
	host := notifications.SenderHost(payload)
	secret := notifications.PayloadString(payload, notifications.PayloadSharedSecret)

	i.mu.Lock()
	defer i.mu.Unlock()

	var candidates, matches []*Share
	for key, s := range i.received {
		if key.providerID != providerID || (host != "" && key.host != host) {
			continue
		}
		candidates = append(candidates, s)
		if s.SharedSecret == "" || s.SharedSecret == secret {
			matches = append(matches, s)
		}
	}

	switch {
	case len(candidates) == 0:
		return nil, ocmerr.Rejected("unknown share " + providerID)
	case len(matches) == 0:
		i.logger.Warn("unshare secret mismatch", "provider_id", providerID, "sender_host", host)
		return nil, ocmerr.New(ocmerr.KindUntrustedServer, "notification does not carry the share secret")
	case len(matches) > 1:
		return nil, ocmerr.Rejected("share " + providerID + " is ambiguous, name the sender")
	}

	s := matches[0]
	if s.Status == StatusUnshared {
		return nil, ocmerr.Rejected("share " + providerID + " was unshared")
	}
	s.Status = StatusUnshared
	i.logger.Info("share unshared by sender", "share_id", s.ID, "provider_id", providerID, "sender", s.Sender)
	return provider.Result{"status": string(StatusUnshared)}, nil
}

// Respond records the local user's answer to a pending share identified
// by its inbox id and returns the updated share. Only pending shares can be
// answered.
func (i *Inbox) Respond(_ context.Context, id string, accept bool) (Share, error) {
	next := StatusDeclined
	if accept {
		next = StatusAccepted
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	for _, s := range i.received {
		if s.ID != id {
			continue
		}
		if s.Status != StatusPending {
			return Share{}, ocmerr.Rejected("share " + id + " is " + string(s.Status))
		}
		s.Status = next
		i.logger.Info("share answered locally", "share_id", id, "status", string(next))
		return *s, nil
	}
	return Share{}, ocmerr.Wrap(ocmerr.KindProviderRejected, "share "+id, ErrUnknownShare)
}

// List returns a copy of every stored share, newest first.
func (i *Inbox) List() []Share {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]Share, 0, len(i.received))
	for _, s := range i.received {
		out = append(out, *s)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].ReceivedAt.Equal(out[b].ReceivedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].ReceivedAt.After(out[b].ReceivedAt)
	})
	return out
}
