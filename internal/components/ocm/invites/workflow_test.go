package invites_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/invites"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	lockmem "github.com/MahdiBaghbani/ocmbridge/internal/platform/lock/memory"
	storemem "github.com/MahdiBaghbani/ocmbridge/internal/platform/store/memory"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store/testutil"
)

type staticTrust map[string]bool

func (s staticTrust) IsTrusted(_ context.Context, server string) bool { return s[server] }

var now = time.Unix(1700100000, 0).UTC()

func newWorkflow(t *testing.T, trust invites.TrustOracle, seed ...invites.Token) (*invites.Workflow, *storemem.Driver) {
	t.Helper()
	st := storemem.New()
	for _, tok := range seed {
		if err := st.CreateToken(context.Background(), tok); err != nil {
			t.Fatal(err)
		}
	}
	wf := invites.NewWorkflow(st, trust, lockmem.New(), nil).WithClock(func() time.Time { return now })
	return wf, st
}

func acceptFor(tok invites.Token) invites.AcceptRequest {
	return invites.AcceptRequest{
		RecipientProvider: tok.RecipientProvider,
		Token:             tok.Token,
		UserID:            tok.UserID,
		Email:             "bob@receiver.example.com",
		Name:              "Bob",
	}
}

func statusOf(t *testing.T, st *storemem.Driver, tok invites.Token) invites.Status {
	t.Helper()
	found, err := st.FindTokens(context.Background(), tok.Token, tok.UserID, tok.RecipientProvider)
	if err != nil || len(found) != 1 {
		t.Fatalf("FindTokens: %v (%d)", err, len(found))
	}
	return found[0].Status
}

func TestAccept_Success(t *testing.T) {
	tok := testutil.TestToken("t1", "tok")
	wf, st := newWorkflow(t, staticTrust{tok.RecipientProvider: true}, tok)

	got, err := wf.Accept(context.Background(), acceptFor(tok))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	// The response carries the stored values, not the caller's.
	want := invites.Accepted{Sender: tok.Sender, Email: tok.Email, Name: tok.Name}
	if got != want {
		t.Errorf("Accept() = %+v, want %+v", got, want)
	}
	if s := statusOf(t, st, tok); s != invites.StatusAccepted {
		t.Errorf("status = %s, want accepted", s)
	}
}

func TestAccept_Errors(t *testing.T) {
	pending := testutil.TestToken("t1", "tok")
	accepted := testutil.TestToken("t2", "tok-accepted")
	accepted.Status = invites.StatusAccepted
	processed := testutil.TestToken("t3", "tok-processed")
	processed.Status = invites.StatusProcessed
	dupA := testutil.TestToken("t4", "tok-dup")
	dupB := testutil.TestToken("t5", "tok-dup")
	expired := testutil.TestToken("t6", "tok-expired")
	expired.ExpiresAt = now.Add(-time.Second)

	trusted := staticTrust{pending.RecipientProvider: true}

	tests := []struct {
		name       string
		trust      invites.TrustOracle
		req        invites.AcceptRequest
		want       error
		wantStatus map[string]invites.Status
	}{
		{
			name:  "unknown token",
			trust: trusted,
			req:   invites.AcceptRequest{RecipientProvider: pending.RecipientProvider, Token: "nope", UserID: "bob"},
			want:  ocmerr.ErrInvalidToken,
		},
		{
			name:  "wrong user",
			trust: trusted,
			req:   invites.AcceptRequest{RecipientProvider: pending.RecipientProvider, Token: "tok", UserID: "mallory"},
			want:  ocmerr.ErrInvalidToken,
		},
		{
			name:  "duplicate rows",
			trust: trusted,
			req:   acceptFor(dupA),
			want:  ocmerr.ErrInvalidToken,
		},
		{
			name:  "expired token",
			trust: trusted,
			req:   acceptFor(expired),
			want:  ocmerr.ErrInvalidToken,
		},
		{
			name:       "untrusted server with pending token",
			trust:      staticTrust{},
			req:        acceptFor(pending),
			want:       ocmerr.ErrUntrustedServer,
			wantStatus: map[string]invites.Status{"tok": invites.StatusPending},
		},
		{
			name:  "untrusted beats already accepted",
			trust: staticTrust{},
			req:   acceptFor(accepted),
			want:  ocmerr.ErrUntrustedServer,
		},
		{
			name:       "already accepted",
			trust:      trusted,
			req:        acceptFor(accepted),
			want:       ocmerr.ErrAlreadyAccepted,
			wantStatus: map[string]invites.Status{"tok-accepted": invites.StatusAccepted},
		},
		{
			name:       "processed",
			trust:      trusted,
			req:        acceptFor(processed),
			want:       ocmerr.ErrAlreadyAccepted,
			wantStatus: map[string]invites.Status{"tok-processed": invites.StatusProcessed},
		},
		{
			name:  "missing token",
			trust: trusted,
			req:   invites.AcceptRequest{RecipientProvider: "x", UserID: "bob"},
			want:  ocmerr.ErrMissingArguments,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, st := newWorkflow(t, tt.trust, pending, accepted, processed, dupA, dupB, expired)
			_, err := wf.Accept(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Accept() error = %v, want %v", err, tt.want)
			}
			seeds := map[string]invites.Token{"tok": pending, "tok-accepted": accepted, "tok-processed": processed}
			for token, want := range tt.wantStatus {
				if got := statusOf(t, st, seeds[token]); got != want {
					t.Errorf("status of %s = %s, want %s", token, got, want)
				}
			}
		})
	}
}

func TestAccept_SecondAcceptConflicts(t *testing.T) {
	tok := testutil.TestToken("t1", "tok")
	wf, _ := newWorkflow(t, staticTrust{tok.RecipientProvider: true}, tok)

	if _, err := wf.Accept(context.Background(), acceptFor(tok)); err != nil {
		t.Fatal(err)
	}
	_, err := wf.Accept(context.Background(), acceptFor(tok))
	if !errors.Is(err, ocmerr.ErrAlreadyAccepted) {
		t.Errorf("second Accept() = %v, want AlreadyAccepted", err)
	}
}

// stallingTokens parks UpdateTokenStatus until release is closed, keeping
// the first acceptance inside its claim.
type stallingTokens struct {
	*storemem.Driver
	entered chan struct{}
	release chan struct{}
}

func (s *stallingTokens) UpdateTokenStatus(ctx context.Context, id string, from, to invites.Status) error {
	s.entered <- struct{}{}
	<-s.release
	return s.Driver.UpdateTokenStatus(ctx, id, from, to)
}

func TestAccept_ConcurrentCallsAreJudgedOnTheirOwnRequest(t *testing.T) {
	tok := testutil.TestToken("t1", "tok")
	st := &stallingTokens{Driver: storemem.New(), entered: make(chan struct{}), release: make(chan struct{})}
	if err := st.CreateToken(context.Background(), tok); err != nil {
		t.Fatal(err)
	}
	trust := staticTrust{tok.RecipientProvider: true}
	wf := invites.NewWorkflow(st, trust, lockmem.New(), nil).WithClock(func() time.Time { return now })

	first := make(chan error, 1)
	go func() {
		_, err := wf.Accept(context.Background(), acceptFor(tok))
		first <- err
	}()
	<-st.entered

	tests := []struct {
		name string
		req  invites.AcceptRequest
		want error
	}{
		{"wrong user", invites.AcceptRequest{RecipientProvider: tok.RecipientProvider, Token: tok.Token, UserID: "mallory"}, ocmerr.ErrInvalidToken},
		{"other provider", invites.AcceptRequest{RecipientProvider: "evil.example", Token: tok.Token, UserID: "mallory"}, ocmerr.ErrInvalidToken},
		{"valid duplicate", acceptFor(tok), ocmerr.ErrAlreadyAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wf.Accept(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Accept() = %v, want %v", err, tt.want)
			}
		})
	}

	close(st.release)
	if err := <-first; err != nil {
		t.Fatalf("first Accept: %v", err)
	}
	if s := statusOf(t, st.Driver, tok); s != invites.StatusAccepted {
		t.Errorf("status = %s, want accepted", s)
	}
}

func TestCreate(t *testing.T) {
	wf, st := newWorkflow(t, staticTrust{"receiver.example.com": true})

	tok, err := wf.Create(context.Background(), invites.CreateRequest{
		Sender:            "alice@sender.example.com",
		RecipientProvider: "receiver.example.com",
		UserID:            "bob",
		Email:             "alice@sender.example.com",
		Name:              "Alice",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tok.Status != invites.StatusPending || tok.Token == "" || tok.ID == "" {
		t.Errorf("unexpected token %+v", tok)
	}
	if !tok.ExpiresAt.Equal(now.Add(invites.DefaultTTL)) {
		t.Errorf("ExpiresAt = %v", tok.ExpiresAt)
	}
	if s := statusOf(t, st, tok); s != invites.StatusPending {
		t.Errorf("stored status = %s", s)
	}

	got, err := wf.Accept(context.Background(), invites.AcceptRequest{
		RecipientProvider: "receiver.example.com", Token: tok.Token, UserID: "bob",
	})
	if err != nil {
		t.Fatalf("Accept created token: %v", err)
	}
	if got.Name != "Alice" {
		t.Errorf("Name = %q", got.Name)
	}

	if _, err := wf.Create(context.Background(), invites.CreateRequest{Sender: "a"}); !errors.Is(err, ocmerr.ErrMissingArguments) {
		t.Errorf("Create without recipient: %v", err)
	}

	never, err := wf.Create(context.Background(), invites.CreateRequest{
		Sender: "a", RecipientProvider: "r", UserID: "u", TTL: -1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !never.ExpiresAt.IsZero() {
		t.Errorf("negative TTL should never expire, got %v", never.ExpiresAt)
	}
}
