package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/outgoing"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/provider/inbox"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/config"
)

// node is one ocmbridge instance behind a TLS test server.
type node struct {
	ts      *httptest.Server
	handler atomic.Value
	host    string
}

func startNode(t *testing.T) *node {
	t.Helper()
	n := &node{}
	n.ts = httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := n.handler.Load().(http.Handler)
		if !ok {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		h.ServeHTTP(w, r)
	}))
	n.ts.StartTLS()
	t.Cleanup(n.ts.Close)
	n.host = strings.TrimPrefix(n.ts.URL, "https://")

	cfg := config.DevConfig()
	cfg.PublicOrigin = n.ts.URL
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	n.handler.Store(a.server.Handler())
	return n
}

func (n *node) call(t *testing.T, method, path, body string, wantStatus int, out any) {
	t.Helper()
	req, err := http.NewRequest(method, n.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status = %d, want %d (body %s)", method, path, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("%s %s: decode %s: %v", method, path, data, err)
		}
	}
}

func (n *node) received(t *testing.T) []inbox.Share {
	t.Helper()
	var list []inbox.Share
	n.call(t, http.MethodGet, "/api/inbox/shares", "", http.StatusOK, &list)
	return list
}

func (n *node) sent(t *testing.T) []outgoing.Share {
	t.Helper()
	var list []outgoing.Share
	n.call(t, http.MethodGet, "/api/shares/outgoing", "", http.StatusOK, &list)
	return list
}

func TestShareLifecycleBetweenTwoServers(t *testing.T) {
	sender := startNode(t)
	receiver := startNode(t)

	body := fmt.Sprintf(`{
		"shareWith": "bob@%s",
		"name": "report.pdf",
		"owner": "alice@%s",
		"sender": "alice@%s",
		"shareType": "user",
		"resourceType": "file",
		"permissions": "read"
	}`, receiver.host, sender.host, sender.host)

	var created struct {
		ProviderID string `json:"providerId"`
		Delivered  bool   `json:"delivered"`
	}
	sender.call(t, http.MethodPost, "/api/shares/outgoing", body, http.StatusCreated, &created)
	if !created.Delivered || created.ProviderID == "" {
		t.Fatalf("create = %+v", created)
	}

	sent := sender.sent(t)
	if len(sent) != 1 || sent[0].ProviderID != created.ProviderID || sent[0].Status != outgoing.StatusPending {
		t.Fatalf("sender's record = %+v", sent)
	}

	got := receiver.received(t)
	if len(got) != 1 || got[0].ProviderID != created.ProviderID || got[0].Status != inbox.StatusPending {
		t.Fatalf("receiver's inbox = %+v", got)
	}

	// Accepting on the receiver reaches the sender's record.
	receiver.call(t, http.MethodPost, "/api/inbox/shares/"+got[0].ID+"/accept", "", http.StatusOK, nil)
	if s := sender.sent(t)[0].Status; s != outgoing.StatusAccepted {
		t.Errorf("sender's record after accept = %s, want accepted", s)
	}

	// Unsharing on the sender reaches the receiver's inbox.
	sender.call(t, http.MethodPost, "/api/shares/outgoing/"+created.ProviderID+"/unshare", "", http.StatusOK, nil)
	if s := sender.sent(t)[0].Status; s != outgoing.StatusUnshared {
		t.Errorf("sender's record after unshare = %s, want unshared", s)
	}
	if s := receiver.received(t)[0].Status; s != inbox.StatusUnshared {
		t.Errorf("receiver's share after unshare = %s, want unshared", s)
	}
}

func TestShareDeclinedBetweenTwoServers(t *testing.T) {
	sender := startNode(t)
	receiver := startNode(t)

	body := fmt.Sprintf(`{
		"shareWith": "bob@%s",
		"name": "draft.odt",
		"providerId": "draft-1",
		"owner": "alice@%s",
		"sender": "alice@%s",
		"shareType": "user",
		"resourceType": "file"
	}`, receiver.host, sender.host, sender.host)
	sender.call(t, http.MethodPost, "/api/shares/outgoing", body, http.StatusCreated, nil)

	got := receiver.received(t)
	if len(got) != 1 {
		t.Fatalf("receiver's inbox = %+v", got)
	}
	receiver.call(t, http.MethodPost, "/api/inbox/shares/"+got[0].ID+"/decline", "", http.StatusOK, nil)

	if s := sender.sent(t)[0].Status; s != outgoing.StatusDeclined {
		t.Errorf("sender's record after decline = %s, want declined", s)
	}
}
