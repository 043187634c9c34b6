package client_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/ocmbridge/internal/platform/http/client"
)

func offConfig() *config.OutboundHTTPConfig {
	cfg := config.DefaultOutboundHTTP()
	cfg.SSRFMode = config.SSRFModeOff
	return &cfg
}

func get(t *testing.T, c *httpclient.Client, rawURL string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c.Do(context.Background(), req)
}

type fakeResolver map[string][]net.IPAddr

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if addrs, ok := f[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("no such host")
}

func TestClient_StrictBlocksInternalTargets(t *testing.T) {
	c := httpclient.New(nil, nil)
	c.SetResolver(fakeResolver{
		"internal.example.com": {{IP: net.ParseIP("10.1.2.3")}},
	})

	for _, target := range []string{
		"http://localhost/ocm",
		"http://localhost:8080/ocm",
		"http://127.0.0.1/ocm",
		"http://[::1]:9200/ocm",
		"http://192.168.1.10/ocm",
		"http://172.16.0.1/ocm",
		"http://169.254.169.254/latest",
		"https://internal.example.com/ocm",
		"https://unknown.example.com/ocm",
	} {
		t.Run(target, func(t *testing.T) {
			_, err := get(t, c, target)
			if !httpclient.IsSSRFError(err) {
				t.Errorf("expected SSRF error, got %v", err)
			}
		})
	}
}

func TestClient_OffAllowsLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	t.Setenv("HTTP_PROXY", "http://proxy.invalid:8080")
	t.Setenv("http_proxy", "http://proxy.invalid:8080")

	resp, err := get(t, httpclient.New(offConfig(), nil), srv.URL)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestClient_Redirects(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		switch r.URL.Path {
		case "/one":
			http.Redirect(w, r, "/target", http.StatusFound)
		case "/two":
			http.Redirect(w, r, "/one", http.StatusFound)
		case "/away":
			http.Redirect(w, r, "http://other.example.com/target", http.StatusFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := httpclient.New(offConfig(), nil)

	resp, err := get(t, c, srv.URL+"/one")
	if err != nil {
		t.Fatalf("single redirect: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || hits != 2 {
		t.Errorf("status = %d, hits = %d", resp.StatusCode, hits)
	}

	if _, err := get(t, c, srv.URL+"/two"); !errors.Is(err, httpclient.ErrRedirectBlocked) {
		t.Errorf("two redirects: expected ErrRedirectBlocked, got %v", err)
	}
	if _, err := get(t, c, srv.URL+"/away"); !errors.Is(err, httpclient.ErrRedirectBlocked) {
		t.Errorf("cross host: expected ErrRedirectBlocked, got %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/one", strings.NewReader("{}"))
	if _, err := c.Do(context.Background(), req); !errors.Is(err, httpclient.ErrRedirectBlocked) {
		t.Errorf("POST redirect: expected ErrRedirectBlocked, got %v", err)
	}
}

func TestClient_GetJSONLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"enabled":true,"padding":"` + strings.Repeat("x", 64) + `"}`))
	}))
	defer srv.Close()

	cfg := offConfig()
	body, _, err := httpclient.New(cfg, nil).GetJSON(context.Background(), srv.URL)
	if err != nil || !strings.HasPrefix(string(body), `{"enabled":true`) {
		t.Fatalf("GetJSON = %q, %v", body, err)
	}

	cfg.MaxResponseBytes = 16
	if _, _, err := httpclient.New(cfg, nil).GetJSON(context.Background(), srv.URL); !errors.Is(err, httpclient.ErrResponseTooLarge) {
		t.Errorf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestAllowedIP(t *testing.T) {
	tests := map[string]bool{
		"8.8.8.8":     true,
		"2001:db8::1": true,
		"127.0.0.1":   false,
		"10.0.0.1":    false,
		"fd00::1":     false,
		"fe80::1":     false,
		"0.0.0.0":     false,
		"224.0.0.1":   false,
	}
	for ip, want := range tests {
		if got := httpclient.AllowedIP(net.ParseIP(ip)); got != want {
			t.Errorf("AllowedIP(%s) = %v, want %v", ip, got, want)
		}
	}
}

func TestSameHost(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://a.example.com/x", "https://A.example.com:443/y", true},
		{"https://a.example.com/x", "https://a.example.com:8443/y", false},
		{"http://a.example.com:8080/x", "https://a.example.com:8080/y", true},
		{"https://a.example.com/x", "https://b.example.com/x", false},
		{"https://[::1]:443/x", "https://[::1]/y", true},
	}
	for _, tt := range tests {
		a, _ := url.Parse(tt.a)
		b, _ := url.Parse(tt.b)
		if got := httpclient.SameHost(a, b); got != tt.want {
			t.Errorf("SameHost(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
