// Package testutil provides the shared conformance suite for store drivers.
package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/delivery"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/invites"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/outgoing"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/protocol"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store"
)

// TestShare returns a fully populated share.
func TestShare() shares.FederatedShareRequest {
	exp := time.Unix(1900000000, 0).UTC()
	return shares.Restore(shares.Fields{
		ShareWith:         "bob@receiver.example.com",
		Name:              "report.pdf",
		Description:       "quarterly report",
		ProviderID:        "share-42",
		Owner:             "alice@sender.example.com",
		OwnerDisplayName:  "Alice",
		Sender:            "alice@sender.example.com",
		SenderDisplayName: "Alice",
		ShareType:         shares.ShareTypeUser,
		ResourceType:      "file",
		Expiration:        &exp,
	}, protocol.NewLegacySingle("s3cr3t", map[string]string{"permissions": "read"}))
}

// TestJob returns a queued job for TestShare.
func TestJob(id string, lastRun time.Time) delivery.Job {
	return delivery.Job{ID: id, Share: TestShare(), LastRun: lastRun.UTC(), Try: 0}
}

// TestToken returns a pending token.
func TestToken(id, token string) invites.Token {
	return invites.Token{
		ID:                id,
		Token:             token,
		Sender:            "alice@sender.example.com",
		RecipientProvider: "receiver.example.com",
		UserID:            "bob",
		Email:             "alice@sender.example.com",
		Name:              "Alice",
		Status:            invites.StatusPending,
		CreatedAt:         time.Unix(1700000000, 0).UTC(),
		ExpiresAt:         time.Unix(1700604800, 0).UTC(),
	}
}

// RunDriverTests runs the standard test suite against a driver.
func RunDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	ctx := context.Background()

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", driverName, err)
	}
	defer driver.Close()

	if err := driver.Init(ctx); err != nil {
		t.Fatalf("failed to init %s driver: %v", driverName, err)
	}

	if driver.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, driver.Name())
	}

	queue, ok := driver.(delivery.Queue)
	if !ok {
		t.Fatalf("%s driver does not implement delivery.Queue", driverName)
	}
	tokens, ok := driver.(invites.TokenStore)
	if !ok {
		t.Fatalf("%s driver does not implement invites.TokenStore", driverName)
	}

	t.Run("QueueLifecycle", func(t *testing.T) {
		TestQueueLifecycle(t, ctx, queue)
	})
	t.Run("QueueDueOrdering", func(t *testing.T) {
		TestQueueDueOrdering(t, ctx, queue)
	})
	t.Run("TokenLifecycle", func(t *testing.T) {
		TestTokenLifecycle(t, ctx, tokens)
	})

	sent, ok := driver.(outgoing.Store)
	if !ok {
		t.Fatalf("%s driver does not implement outgoing.Store", driverName)
	}
	t.Run("OutgoingLifecycle", func(t *testing.T) {
		TestOutgoingLifecycle(t, ctx, sent)
	})
}

// TestQueueLifecycle covers enqueue, get, reschedule and remove.
func TestQueueLifecycle(t *testing.T, ctx context.Context, q delivery.Queue) {
	created := time.Unix(1700000000, 0).UTC()
	job := TestJob("job-lifecycle", created)

	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, job); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate Enqueue: expected ErrAlreadyExists, got %v", err)
	}

	got, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Try != 0 || !got.LastRun.Equal(created) {
		t.Errorf("unexpected job state: try=%d lastRun=%v", got.Try, got.LastRun)
	}
	if got.Share.ShareWith != job.Share.ShareWith || got.Share.SharedSecret() != "s3cr3t" {
		t.Errorf("share not preserved: %+v", got.Share.Fields())
	}
	if got.Share.Expiration == nil || !got.Share.Expiration.Equal(*job.Share.Expiration) {
		t.Errorf("expiration not preserved: %v", got.Share.Expiration)
	}
	if got.Share.Protocol.Variant() != protocol.VariantLegacySingle {
		t.Errorf("protocol variant not preserved: %v", got.Share.Protocol.Variant())
	}

	next := created.Add(10 * time.Minute)
	if err := q.Reschedule(ctx, job.ID, 0, 1, next); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if err := q.Reschedule(ctx, job.ID, 0, 1, next); !errors.Is(err, store.ErrConflict) {
		t.Errorf("stale Reschedule: expected ErrConflict, got %v", err)
	}
	if err := q.Reschedule(ctx, "missing", 0, 1, next); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Reschedule missing: expected ErrNotFound, got %v", err)
	}

	got, err = q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get after Reschedule: %v", err)
	}
	if got.Try != 1 || !got.LastRun.Equal(next) {
		t.Errorf("Reschedule not applied: try=%d lastRun=%v", got.Try, got.LastRun)
	}

	if err := q.Remove(ctx, job.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := q.Get(ctx, job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after Remove: expected ErrNotFound, got %v", err)
	}
	if err := q.Remove(ctx, job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Remove: expected ErrNotFound, got %v", err)
	}
}

// TestQueueDueOrdering checks the Due cutoff, ordering and limit.
func TestQueueDueOrdering(t *testing.T, ctx context.Context, q delivery.Queue) {
	base := time.Unix(1800000000, 0).UTC()
	for i, id := range []string{"due-c", "due-a", "due-b", "due-late"} {
		lastRun := base.Add(time.Duration(i) * time.Minute)
		if id == "due-late" {
			lastRun = base.Add(time.Hour)
		}
		if err := q.Enqueue(ctx, TestJob(id, lastRun)); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}
	defer func() {
		for _, id := range []string{"due-c", "due-a", "due-b", "due-late"} {
			_ = q.Remove(ctx, id)
		}
	}()

	due, err := q.Due(ctx, base.Add(30*time.Minute), 0)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	var ids []string
	for _, j := range due {
		ids = append(ids, j.ID)
	}
	want := []string{"due-c", "due-a", "due-b"}
	if len(ids) != len(want) {
		t.Fatalf("Due ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Due ids = %v, want %v", ids, want)
		}
	}

	limited, err := q.Due(ctx, base.Add(30*time.Minute), 2)
	if err != nil {
		t.Fatalf("Due with limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 jobs with limit, got %d", len(limited))
	}

	// The cutoff is exclusive.
	exact, err := q.Due(ctx, base, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(exact) != 0 {
		t.Errorf("expected no jobs strictly before %v, got %d", base, len(exact))
	}
}

// TestTokenLifecycle covers create, find and the conditional status update.
func TestTokenLifecycle(t *testing.T, ctx context.Context, s invites.TokenStore) {
	tok := TestToken("tok-1", "abc-token")
	if err := s.CreateToken(ctx, tok); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if err := s.CreateToken(ctx, tok); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate CreateToken: expected ErrAlreadyExists, got %v", err)
	}

	found, err := s.FindTokens(ctx, "abc-token", "bob", "receiver.example.com")
	if err != nil {
		t.Fatalf("FindTokens: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 token, got %d", len(found))
	}
	if found[0].Email != tok.Email || found[0].Status != invites.StatusPending {
		t.Errorf("unexpected token %+v", found[0])
	}
	if !found[0].ExpiresAt.Equal(tok.ExpiresAt) || !found[0].CreatedAt.Equal(tok.CreatedAt) {
		t.Errorf("timestamps not preserved: %+v", found[0])
	}

	for _, miss := range [][3]string{
		{"abc-token", "mallory", "receiver.example.com"},
		{"abc-token", "bob", "other.example.com"},
		{"nope", "bob", "receiver.example.com"},
	} {
		got, err := s.FindTokens(ctx, miss[0], miss[1], miss[2])
		if err != nil {
			t.Fatalf("FindTokens %v: %v", miss, err)
		}
		if len(got) != 0 {
			t.Errorf("FindTokens %v: expected no match, got %d", miss, len(got))
		}
	}

	if err := s.UpdateTokenStatus(ctx, tok.ID, invites.StatusPending, invites.StatusAccepted); err != nil {
		t.Fatalf("UpdateTokenStatus: %v", err)
	}
	if err := s.UpdateTokenStatus(ctx, tok.ID, invites.StatusPending, invites.StatusAccepted); !errors.Is(err, store.ErrConflict) {
		t.Errorf("second UpdateTokenStatus: expected ErrConflict, got %v", err)
	}
	if err := s.UpdateTokenStatus(ctx, "missing", invites.StatusPending, invites.StatusAccepted); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateTokenStatus missing: expected ErrNotFound, got %v", err)
	}

	found, err = s.FindTokens(ctx, "abc-token", "bob", "receiver.example.com")
	if err != nil || len(found) != 1 {
		t.Fatalf("FindTokens after update: %v (%d)", err, len(found))
	}
	if found[0].Status != invites.StatusAccepted {
		t.Errorf("status = %s, want accepted", found[0].Status)
	}
}

// TestOutgoingShare returns a pending sent-share record.
func TestOutgoingShare(providerID string, created time.Time) outgoing.Share {
	return outgoing.Share{
		ProviderID:   providerID,
		ShareWith:    "bob@receiver.example.com",
		ReceiverHost: "receiver.example.com",
		Name:         "report.pdf",
		ResourceType: "file",
		ShareType:    "user",
		Owner:        "alice@sender.example.com",
		Sender:       "alice@sender.example.com",
		SharedSecret: "s3cr3t",
		Status:       outgoing.StatusPending,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

// TestOutgoingLifecycle covers create, get, list and the conditional status
// update of sent-share records.
func TestOutgoingLifecycle(t *testing.T, ctx context.Context, s outgoing.Store) {
	created := time.Unix(1700000000, 0).UTC()
	rec := TestOutgoingShare("out-1", created)
	if err := s.CreateOutgoingShare(ctx, rec); err != nil {
		t.Fatalf("CreateOutgoingShare: %v", err)
	}
	if err := s.CreateOutgoingShare(ctx, rec); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate CreateOutgoingShare: expected ErrAlreadyExists, got %v", err)
	}
	if err := s.CreateOutgoingShare(ctx, TestOutgoingShare("out-2", created.Add(time.Minute))); err != nil {
		t.Fatalf("CreateOutgoingShare out-2: %v", err)
	}

	got, err := s.GetOutgoingShare(ctx, "out-1")
	if err != nil {
		t.Fatalf("GetOutgoingShare: %v", err)
	}
	if got.ShareWith != rec.ShareWith || got.ReceiverHost != rec.ReceiverHost || got.SharedSecret != rec.SharedSecret ||
		got.Owner != rec.Owner || got.Status != rec.Status || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("record not preserved:\n got %+v\nwant %+v", got, rec)
	}
	if _, err := s.GetOutgoingShare(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetOutgoingShare missing: expected ErrNotFound, got %v", err)
	}

	list, err := s.ListOutgoingShares(ctx)
	if err != nil {
		t.Fatalf("ListOutgoingShares: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListOutgoingShares len = %d, want 2", len(list))
	}

	answered := created.Add(time.Hour)
	if err := s.UpdateOutgoingShareStatus(ctx, "out-1", outgoing.StatusPending, outgoing.StatusAccepted, answered); err != nil {
		t.Fatalf("UpdateOutgoingShareStatus: %v", err)
	}
	if err := s.UpdateOutgoingShareStatus(ctx, "out-1", outgoing.StatusPending, outgoing.StatusDeclined, answered); !errors.Is(err, store.ErrConflict) {
		t.Errorf("stale UpdateOutgoingShareStatus: expected ErrConflict, got %v", err)
	}
	if err := s.UpdateOutgoingShareStatus(ctx, "missing", outgoing.StatusPending, outgoing.StatusAccepted, answered); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateOutgoingShareStatus missing: expected ErrNotFound, got %v", err)
	}

	got, err = s.GetOutgoingShare(ctx, "out-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != outgoing.StatusAccepted || !got.UpdatedAt.Equal(answered) || !got.CreatedAt.Equal(created) {
		t.Errorf("update not applied: %+v", got)
	}
}
