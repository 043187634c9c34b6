package invites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/lock"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store"
)

// DefaultTTL is the lifetime of a newly created token.
const DefaultTTL = 7 * 24 * time.Hour

const claimTTL = 30 * time.Second

// AcceptRequest is the body of an invite-accepted call.
type AcceptRequest struct {
	RecipientProvider string
	Token             string
	UserID            string
	Email             string
	Name              string
}

// Accepted is returned to the accepting server. The values come from the
// stored token, never from the request.
type Accepted struct {
	Sender string
	Email  string
	Name   string
}

// CreateRequest describes a new invitation.
type CreateRequest struct {
	Sender            string
	RecipientProvider string
	UserID            string
	Email             string
	Name              string
	// TTL overrides DefaultTTL; a negative TTL creates a token that never
	// expires.
	TTL time.Duration
}

// Workflow runs the acceptance state machine.
type Workflow struct {
	tokens TokenStore
	trust  TrustOracle
	locker lock.Locker
	logger *slog.Logger
	now    func() time.Time
}

// NewWorkflow creates a workflow.
func NewWorkflow(tokens TokenStore, trust TrustOracle, locker lock.Locker, logger *slog.Logger) *Workflow {
	return &Workflow{
		tokens: tokens,
		trust:  trust,
		locker: locker,
		logger: logutil.NoopIfNil(logger),
		now:    time.Now,
	}
}

// WithClock returns a copy of w using now instead of time.Now.
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	c := *w
	c.now = now
	return &c
}

// Create stores a new pending token.
func (w *Workflow) Create(ctx context.Context, req CreateRequest) (Token, error) {
	var missing []string
	if req.Sender == "" {
		missing = append(missing, "sender")
	}
	if req.RecipientProvider == "" {
		missing = append(missing, "recipientProvider")
	}
	if req.UserID == "" {
		missing = append(missing, "userID")
	}
	if len(missing) > 0 {
		return Token{}, ocmerr.MissingArguments(missing...)
	}

	now := w.now()
	t := Token{
		ID:                uuid.NewString(),
		Token:             uuid.NewString(),
		Sender:            req.Sender,
		RecipientProvider: req.RecipientProvider,
		UserID:            req.UserID,
		Email:             req.Email,
		Name:              req.Name,
		Status:            StatusPending,
		CreatedAt:         now,
	}
	switch {
	case req.TTL > 0:
		t.ExpiresAt = now.Add(req.TTL)
	case req.TTL == 0:
		t.ExpiresAt = now.Add(DefaultTTL)
	}

	if err := w.tokens.CreateToken(ctx, t); err != nil {
		return Token{}, ocmerr.Wrap(ocmerr.KindInternal, "store token", err)
	}
	w.logger.Info("invite created", "id", t.ID, "sender", t.Sender, "recipient_provider", t.RecipientProvider)
	return t, nil
}

// Accept validates req and moves the matching token from pending to
// accepted. Checks run in order and stop at the first failure: token lookup
// (InvalidToken), trust (UntrustedServer), status (AlreadyAccepted). The
// per-token claim is taken only after lookup and trust have passed, so a
// request that names the wrong user or comes from an untrusted server never
// observes another acceptance in progress.
func (w *Workflow) Accept(ctx context.Context, req AcceptRequest) (Accepted, error) {
	var missing []string
	if req.RecipientProvider == "" {
		missing = append(missing, "recipientProvider")
	}
	if req.Token == "" {
		missing = append(missing, "token")
	}
	if req.UserID == "" {
		missing = append(missing, "userID")
	}
	if len(missing) > 0 {
		return Accepted{}, ocmerr.MissingArguments(missing...)
	}

	log := w.logger.With("recipient_provider", req.RecipientProvider)

	found, err := w.tokens.FindTokens(ctx, req.Token, req.UserID, req.RecipientProvider)
	if err != nil {
		return Accepted{}, ocmerr.Wrap(ocmerr.KindInternal, "look up token", err)
	}
	if len(found) != 1 {
		log.Warn("invite-accepted for unknown token", "matches", len(found))
		return Accepted{}, ocmerr.New(ocmerr.KindInvalidToken, fmt.Sprintf("%d matching tokens", len(found)))
	}
	tok := found[0]
	if tok.Expired(w.now()) {
		log.Warn("invite-accepted for expired token", "id", tok.ID)
		return Accepted{}, ocmerr.New(ocmerr.KindInvalidToken, "token expired")
	}

	if w.trust == nil || !w.trust.IsTrusted(ctx, req.RecipientProvider) {
		log.Warn("invite-accepted from untrusted server", "id", tok.ID)
		return Accepted{}, ocmerr.New(ocmerr.KindUntrustedServer, req.RecipientProvider+" is not trusted")
	}

	lease, err := w.locker.TryAcquire(ctx, "invite:"+tok.ID, claimTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return Accepted{}, ocmerr.New(ocmerr.KindAlreadyAccepted, "acceptance already in progress")
		}
		return Accepted{}, ocmerr.Wrap(ocmerr.KindInternal, "claim token", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release invite claim", "error", err)
		}
	}()

	if tok.Status.Consumed() {
		log.Info("duplicate invite-accepted", "id", tok.ID, "status", string(tok.Status))
		return Accepted{}, ocmerr.New(ocmerr.KindAlreadyAccepted, "token is "+string(tok.Status))
	}

	if err := w.tokens.UpdateTokenStatus(ctx, tok.ID, StatusPending, StatusAccepted); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Accepted{}, ocmerr.New(ocmerr.KindAlreadyAccepted, "token was accepted concurrently")
		}
		return Accepted{}, ocmerr.Wrap(ocmerr.KindInternal, "update token status", err)
	}

	log.Info("invite accepted", "id", tok.ID, "remote_user", req.UserID, "remote_email", req.Email, "remote_name", req.Name)
	return Accepted{Sender: tok.Sender, Email: tok.Email, Name: tok.Name}, nil
}
