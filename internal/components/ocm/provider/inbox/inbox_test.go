package inbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/notifications"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/outgoing"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/protocol"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newInbox() *Inbox {
	i := New([]string{"user"}, nil)
	i.now = func() time.Time { return now }
	return i
}

func share(providerID string) shares.FederatedShareRequest {
	return shares.Restore(shares.Fields{
		ShareWith:    "bob@mail.example.org@receiver.example.com",
		Name:         "report.pdf",
		ProviderID:   providerID,
		Owner:        "alice@sender.example.com",
		Sender:       "alice@sender.example.com",
		ShareType:    "user",
		ResourceType: "file",
	}, protocol.NewLegacySingle("s3cr3t", nil))
}

func TestShareReceived(t *testing.T) {
	i := newInbox()

	name, err := i.ShareReceived(context.Background(), share("42"))
	if err != nil {
		t.Fatalf("ShareReceived: %v", err)
	}
	if name != "bob@mail.example.org" {
		t.Errorf("recipient display name = %q", name)
	}

	list := i.List()
	if len(list) != 1 {
		t.Fatalf("List() len = %d", len(list))
	}
	s := list[0]
	if s.Status != StatusPending || s.SharedSecret != "s3cr3t" || s.ID == "" || !s.ReceivedAt.Equal(now) {
		t.Errorf("stored share = %+v", s)
	}
}

func TestShareReceived_Rejections(t *testing.T) {
	i := newInbox()
	if _, err := i.ShareReceived(context.Background(), share("42")); err != nil {
		t.Fatal(err)
	}

	expired := share("43")
	past := now.Add(-time.Hour)
	expired.Expiration = &past

	badAddr := share("44")
	badAddr.ShareWith = "bob"

	badSender := share("45")
	badSender.Sender = "alice"

	tests := map[string]shares.FederatedShareRequest{
		"duplicate provider id": share("42"),
		"expired":               expired,
		"not an OCM address":    badAddr,
		"sender not an address": badSender,
	}
	for name, s := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := i.ShareReceived(context.Background(), s); !errors.Is(err, ocmerr.ErrProviderRejected) {
				t.Errorf("expected ProviderRejected, got %v", err)
			}
		})
	}
	if len(i.List()) != 1 {
		t.Errorf("rejected shares were stored: %d", len(i.List()))
	}
}

// shareFrom is share(providerID) sent by another sender with its own secret.
func shareFrom(sender, providerID, secret string) shares.FederatedShareRequest {
	f := share(providerID).Fields()
	f.Owner = sender
	f.Sender = sender
	return shares.Restore(f, protocol.NewLegacySingle(secret, nil))
}

func unsharedBy(sender, secret string) map[string]any {
	p := map[string]any{notifications.PayloadSharedSecret: secret}
	if sender != "" {
		p[notifications.PayloadSender] = sender
	}
	return p
}

func TestShareReceived_SameProviderIDFromTwoSenders(t *testing.T) {
	ctx := context.Background()
	i := newInbox()
	if _, err := i.ShareReceived(ctx, shareFrom("alice@sender.example.com", "42", "alice-secret")); err != nil {
		t.Fatalf("first sender: %v", err)
	}
	if _, err := i.ShareReceived(ctx, shareFrom("dave@other.example.net", "42", "dave-secret")); err != nil {
		t.Fatalf("second sender with the same providerId: %v", err)
	}
	if len(i.List()) != 2 {
		t.Fatalf("List() len = %d, want 2", len(i.List()))
	}

	// Unsharing one leaves the other alone.
	if _, err := i.NotificationReceived(ctx, notifications.TypeShareUnshared, "42", unsharedBy("dave@other.example.net", "dave-secret")); err != nil {
		t.Fatalf("unshare: %v", err)
	}
	for _, s := range i.List() {
		want := StatusPending
		if s.Sender == "dave@other.example.net" {
			want = StatusUnshared
		}
		if s.Status != want {
			t.Errorf("share from %s: status = %s, want %s", s.Sender, s.Status, want)
		}
	}
}

func TestNotificationReceived_Unshare(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		wantErr error
	}{
		{"sender and secret", unsharedBy("alice@sender.example.com", "alice-secret"), nil},
		{"secret picks the share", unsharedBy("", "alice-secret"), nil},
		{"no sender and no secret", map[string]any{}, ocmerr.ErrUntrustedServer},
		{"wrong secret", unsharedBy("alice@sender.example.com", "dave-secret"), ocmerr.ErrUntrustedServer},
		{"unknown sender host", unsharedBy("eve@elsewhere.example.org", "alice-secret"), ocmerr.ErrProviderRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			i := newInbox()
			for _, s := range []shares.FederatedShareRequest{
				shareFrom("alice@sender.example.com", "42", "alice-secret"),
				shareFrom("dave@other.example.net", "42", "dave-secret"),
			} {
				if _, err := i.ShareReceived(ctx, s); err != nil {
					t.Fatal(err)
				}
			}

			res, err := i.NotificationReceived(ctx, notifications.TypeShareUnshared, "42", tt.payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || res["status"] != string(StatusUnshared) {
				t.Fatalf("result = %v, err = %v", res, err)
			}
			for _, s := range i.List() {
				if (s.Status == StatusUnshared) != (s.Sender == "alice@sender.example.com") {
					t.Errorf("share from %s: status = %s", s.Sender, s.Status)
				}
			}
		})
	}
}

func TestNotificationReceived_SameSecretIsAmbiguous(t *testing.T) {
	ctx := context.Background()
	i := newInbox()
	for _, sender := range []string{"alice@sender.example.com", "dave@other.example.net"} {
		if _, err := i.ShareReceived(ctx, shareFrom(sender, "42", "same")); err != nil {
			t.Fatal(err)
		}
	}
	_, err := i.NotificationReceived(ctx, notifications.TypeShareUnshared, "42", unsharedBy("", "same"))
	if !errors.Is(err, ocmerr.ErrProviderRejected) {
		t.Errorf("error = %v, want ProviderRejected", err)
	}
	for _, s := range i.List() {
		if s.Status != StatusPending {
			t.Errorf("share from %s changed to %s", s.Sender, s.Status)
		}
	}
}

// recordingSent stands in for the sent-share ledger.
type recordingSent struct {
	calls []string
	err   error
}

func (r *recordingSent) Apply(_ context.Context, notificationType, providerID string, _ map[string]any) (outgoing.Share, error) {
	r.calls = append(r.calls, notificationType+":"+providerID)
	if r.err != nil {
		return outgoing.Share{}, r.err
	}
	status := outgoing.StatusAccepted
	if notificationType == notifications.TypeShareDeclined {
		status = outgoing.StatusDeclined
	}
	return outgoing.Share{ProviderID: providerID, Status: status}, nil
}

func TestNotificationReceived_AnswersGoToSentShares(t *testing.T) {
	ctx := context.Background()
	sent := &recordingSent{}
	i := New([]string{"user"}, nil, WithSentShares(sent))
	i.now = func() time.Time { return now }
	if _, err := i.ShareReceived(ctx, share("42")); err != nil {
		t.Fatal(err)
	}

	res, err := i.NotificationReceived(ctx, notifications.TypeShareAccepted, "42", map[string]any{})
	if err != nil || res["status"] != "accepted" {
		t.Fatalf("accepted: result = %v, err = %v", res, err)
	}
	res, err = i.NotificationReceived(ctx, notifications.TypeShareDeclined, "7", map[string]any{})
	if err != nil || res["status"] != "declined" {
		t.Fatalf("declined: result = %v, err = %v", res, err)
	}
	if len(sent.calls) != 2 || sent.calls[0] != "SHARE_ACCEPTED:42" || sent.calls[1] != "SHARE_DECLINED:7" {
		t.Errorf("sent-share calls = %v", sent.calls)
	}
	// The received share with the same providerId is untouched.
	if got := i.List()[0].Status; got != StatusPending {
		t.Errorf("received share status = %s, want pending", got)
	}

	sent.err = ocmerr.New(ocmerr.KindUntrustedServer, "wrong secret")
	if _, err := i.NotificationReceived(ctx, notifications.TypeShareAccepted, "42", nil); !errors.Is(err, ocmerr.ErrUntrustedServer) {
		t.Errorf("ledger error not passed through: %v", err)
	}
}

func TestNotificationReceived_Rejections(t *testing.T) {
	ctx := context.Background()
	i := newInbox()
	if _, err := i.ShareReceived(ctx, share("42")); err != nil {
		t.Fatal(err)
	}
	secret := unsharedBy("alice@sender.example.com", "s3cr3t")

	steps := []struct {
		notificationType string
		providerID       string
		payload          map[string]any
		wantStatus       Status
		wantErr          error
	}{
		{notifications.TypeShareAccepted, "42", secret, StatusPending, ocmerr.ErrProviderRejected},
		{notifications.TypeRequestReshare, "42", secret, StatusPending, ocmerr.ErrProviderRejected},
		{notifications.TypeShareUnshared, "404", secret, StatusPending, ocmerr.ErrProviderRejected},
		{notifications.TypeShareUnshared, "42", secret, StatusUnshared, nil},
		{notifications.TypeShareUnshared, "42", secret, StatusUnshared, ocmerr.ErrProviderRejected},
	}

	for _, st := range steps {
		res, err := i.NotificationReceived(ctx, st.notificationType, st.providerID, st.payload)
		if st.wantErr != nil {
			if !errors.Is(err, st.wantErr) {
				t.Errorf("%s on %s: error = %v, want %v", st.notificationType, st.providerID, err, st.wantErr)
			}
		} else if err != nil || res["status"] != string(st.wantStatus) {
			t.Errorf("%s on %s: result = %v, err = %v", st.notificationType, st.providerID, res, err)
		}
		if got := i.List()[0].Status; got != st.wantStatus {
			t.Errorf("after %s: status = %s, want %s", st.notificationType, got, st.wantStatus)
		}
	}
}

func TestList_NewestFirst(t *testing.T) {
	i := newInbox()
	clock := now
	i.now = func() time.Time { return clock }
	for _, id := range []string{"1", "2", "3"} {
		if _, err := i.ShareReceived(context.Background(), share(id)); err != nil {
			t.Fatal(err)
		}
		clock = clock.Add(time.Minute)
	}
	list := i.List()
	if list[0].ProviderID != "3" || list[2].ProviderID != "1" {
		t.Errorf("order = %s %s %s", list[0].ProviderID, list[1].ProviderID, list[2].ProviderID)
	}
	list[0].Name = "mutated"
	if i.List()[0].Name == "mutated" {
		t.Error("List leaked internal state")
	}
}

func TestRespond(t *testing.T) {
	ctx := context.Background()
	i := newInbox()
	for _, id := range []string{"1", "2"} {
		if _, err := i.ShareReceived(ctx, share(id)); err != nil {
			t.Fatal(err)
		}
	}
	list := i.List()

	got, err := i.Respond(ctx, list[0].ID, true)
	if err != nil {
		t.Fatalf("Respond accept: %v", err)
	}
	if got.Status != StatusAccepted || got.ResourceType != "file" {
		t.Errorf("accepted share = %+v", got)
	}

	if _, err := i.Respond(ctx, list[0].ID, false); !errors.Is(err, ocmerr.ErrProviderRejected) {
		t.Errorf("answering twice: expected ProviderRejected, got %v", err)
	}

	got, err = i.Respond(ctx, list[1].ID, false)
	if err != nil {
		t.Fatalf("Respond decline: %v", err)
	}
	if got.Status != StatusDeclined {
		t.Errorf("status = %s, want declined", got.Status)
	}

	if _, err := i.Respond(ctx, "nope", true); !errors.Is(err, ocmerr.ErrProviderRejected) || !errors.Is(err, ErrUnknownShare) {
		t.Errorf("unknown id: expected ProviderRejected, got %v", err)
	}
}
