package outgoing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/notifications"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/outgoing"
	storemem "github.com/MahdiBaghbani/ocmbridge/internal/platform/store/memory"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store/testutil"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) *outgoing.Ledger {
	t.Helper()
	l := outgoing.NewLedger(storemem.New(), nil).WithClock(func() time.Time { return now })
	if _, err := l.Record(context.Background(), testutil.TestShare()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	return l
}

// fromReceiver is the payload a well-behaved receiver sends for TestShare.
func fromReceiver() map[string]any {
	return map[string]any{
		notifications.PayloadSharedSecret: "s3cr3t",
		notifications.PayloadSender:       "bob@receiver.example.com",
	}
}

func TestRecord(t *testing.T) {
	l := newLedger(t)
	list, err := l.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("List() len = %d", len(list))
	}
	got := list[0]
	if got.ProviderID != "share-42" || got.ReceiverHost != "receiver.example.com" || got.Status != outgoing.StatusPending || got.SharedSecret != "s3cr3t" {
		t.Errorf("recorded share = %+v", got)
	}

	if _, err := l.Record(context.Background(), testutil.TestShare()); !errors.Is(err, ocmerr.ErrProviderRejected) {
		t.Errorf("second Record: expected ProviderRejected, got %v", err)
	}
}

func TestApply_Authentication(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		wantErr error
	}{
		{"receiver with secret", fromReceiver(), nil},
		{"secret only", map[string]any{notifications.PayloadSharedSecret: "s3cr3t"}, nil},
		{"missing secret", map[string]any{notifications.PayloadSender: "bob@receiver.example.com"}, ocmerr.ErrUntrustedServer},
		{"wrong secret", map[string]any{notifications.PayloadSharedSecret: "guess"}, ocmerr.ErrUntrustedServer},
		{"other host", map[string]any{
			notifications.PayloadSharedSecret: "s3cr3t",
			notifications.PayloadSender:       "mallory@other.example.net",
		}, ocmerr.ErrUntrustedServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			got, err := l.Apply(context.Background(), notifications.TypeShareAccepted, "share-42", tt.payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Apply() = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got.Status != outgoing.StatusAccepted || !got.UpdatedAt.Equal(now) {
				t.Errorf("Apply() = %+v, %v", got, err)
			}
		})
	}
}

func TestApply_Lifecycle(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	steps := []struct {
		op         string
		providerID string
		wantStatus outgoing.Status
		wantErr    error
	}{
		{notifications.TypeShareAccepted, "share-42", outgoing.StatusAccepted, nil},
		{notifications.TypeShareAccepted, "share-42", outgoing.StatusAccepted, nil},
		{notifications.TypeShareDeclined, "share-42", outgoing.StatusDeclined, nil},
		{notifications.TypeShareUnshared, "share-42", outgoing.StatusDeclined, ocmerr.ErrProviderRejected},
		{notifications.TypeShareAccepted, "404", outgoing.StatusDeclined, outgoing.ErrUnknownShare},
		{"unshare", "share-42", outgoing.StatusUnshared, nil},
		{"unshare", "share-42", outgoing.StatusUnshared, ocmerr.ErrProviderRejected},
		{notifications.TypeShareAccepted, "share-42", outgoing.StatusUnshared, ocmerr.ErrProviderRejected},
	}

	for _, st := range steps {
		var err error
		if st.op == "unshare" {
			_, err = l.Unshare(ctx, st.providerID)
		} else {
			_, err = l.Apply(ctx, st.op, st.providerID, fromReceiver())
		}
		if st.wantErr != nil {
			if !errors.Is(err, st.wantErr) {
				t.Errorf("%s on %s: error = %v, want %v", st.op, st.providerID, err, st.wantErr)
			}
		} else if err != nil {
			t.Errorf("%s on %s: %v", st.op, st.providerID, err)
		}

		list, lerr := l.List(ctx)
		if lerr != nil {
			t.Fatal(lerr)
		}
		if got := list[0].Status; got != st.wantStatus {
			t.Errorf("after %s: status = %s, want %s", st.op, got, st.wantStatus)
		}
	}
}

func TestList_NewestFirst(t *testing.T) {
	ctx := context.Background()
	clock := now
	l := outgoing.NewLedger(storemem.New(), nil).WithClock(func() time.Time { return clock })
	for _, id := range []string{"a", "b", "c"} {
		s := testutil.TestShare()
		s.ProviderID = id
		if _, err := l.Record(ctx, s); err != nil {
			t.Fatal(err)
		}
		clock = clock.Add(time.Minute)
	}
	list, err := l.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if list[0].ProviderID != "c" || list[2].ProviderID != "a" {
		t.Errorf("order = %s %s %s", list[0].ProviderID, list[1].ProviderID, list[2].ProviderID)
	}
}
