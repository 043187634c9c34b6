// Package outgoing keeps the sender-side record of every share this server
// has sent, and applies the receiver's lifecycle notifications to it.
//
// A record is created before the first delivery attempt, keyed by the
// share's providerId. The receiver later answers with SHARE_ACCEPTED or
// SHARE_DECLINED; the local owner may withdraw the share, which moves the
// record to unshared for good.
package outgoing

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownShare is wrapped when no record has the given providerId.
var ErrUnknownShare = errors.New("unknown outgoing share")

// Status of a sent share.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusUnshared Status = "unshared"
)

// Share is the sender-side record of a sent share.
type Share struct {
	ProviderID string `json:"providerId"`
	ShareWith  string `json:"shareWith"`
	// ReceiverHost is the normalized https authority of ShareWith's provider.
	// Notifications about this share are only taken from that host.
	ReceiverHost string    `json:"receiverHost"`
	Name         string    `json:"name"`
	ResourceType string    `json:"resourceType"`
	ShareType    string    `json:"shareType"`
	Owner        string    `json:"owner"`
	Sender       string    `json:"sender"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	// SharedSecret is the secret sent in the protocol; never serialized.
	SharedSecret string `json:"-"`
}

// Store persists outgoing share records.
//
// CreateOutgoingShare reports a duplicate providerId with
// store.ErrAlreadyExists. GetOutgoingShare and UpdateOutgoingShareStatus
// report a missing record with store.ErrNotFound; UpdateOutgoingShareStatus
// is a conditional write that reports a status mismatch with
// store.ErrConflict.
type Store interface {
	CreateOutgoingShare(ctx context.Context, share Share) error
	GetOutgoingShare(ctx context.Context, providerID string) (Share, error)
	ListOutgoingShares(ctx context.Context) ([]Share, error)
	UpdateOutgoingShareStatus(ctx context.Context, providerID string, from, to Status, at time.Time) error
}
