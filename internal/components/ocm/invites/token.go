// Package invites issues invitation tokens and runs the invite-accepted
// handshake.
//
// A token moves pending -> accepted exactly once. Records are never deleted
// so a replayed acceptance is always detectable.
package invites

import (
	"context"
	"time"
)

// Status is the lifecycle state of a token.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusProcessed Status = "processed"
)

// Consumed reports whether the token can no longer be accepted.
func (s Status) Consumed() bool {
	return s == StatusAccepted || s == StatusProcessed
}

// Token is a stored invitation. Email and Name describe the inviting user
// and are returned to the accepting server.
type Token struct {
	ID                string
	Token             string
	Sender            string
	RecipientProvider string
	UserID            string
	Email             string
	Name              string
	Status            Status
	CreatedAt         time.Time
	// ExpiresAt is zero for tokens that never expire.
	ExpiresAt time.Time
}

// Expired reports whether the token has an expiry before now.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// TokenStore persists tokens. UpdateTokenStatus is a conditional write: it
// returns store.ErrConflict when the stored status is not from, and
// store.ErrNotFound when id is unknown.
type TokenStore interface {
	CreateToken(ctx context.Context, t Token) error
	FindTokens(ctx context.Context, token, userID, recipientProvider string) ([]Token, error)
	UpdateTokenStatus(ctx context.Context, id string, from, to Status) error
}

// TrustOracle decides whether a remote server may complete a handshake.
type TrustOracle interface {
	IsTrusted(ctx context.Context, server string) bool
}
