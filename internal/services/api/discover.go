package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/discovery"
	httpclient "github.com/MahdiBaghbani/ocmbridge/internal/platform/http/client"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
	"github.com/MahdiBaghbani/ocmbridge/internal/services/httpwrap"
)

var (
	errUnsupportedScheme = errors.New("unsupported scheme: must be http or https")
	errMissingHost       = errors.New("missing host")
)

// discoverResponse is the body of GET /api/discover.
type discoverResponse struct {
	Success   bool                 `json:"success"`
	Error     string               `json:"error,omitempty"`
	Discovery *discovery.Discovery `json:"discovery,omitempty"`
}

// discover fetches the discovery document of the server named by the base
// query parameter.
//
//   - 400: base missing or not an http(s) URL with a host
//   - 403: target blocked by the outbound SSRF guard
//   - 501: no discovery client configured
//   - 502: the remote server could not be discovered
func (s *Service) discover(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	if base == "" {
		httpwrap.WriteJSON(w, http.StatusBadRequest, discoverResponse{Error: "missing 'base' query parameter"})
		return
	}
	origin, err := originOf(base)
	if err != nil {
		httpwrap.WriteJSON(w, http.StatusBadRequest, discoverResponse{Error: err.Error()})
		return
	}
	if s.deps.Discovery == nil {
		httpwrap.WriteJSON(w, http.StatusNotImplemented, discoverResponse{Error: "discovery client not configured"})
		return
	}

	disc, err := s.deps.Discovery.Discover(r.Context(), origin)
	if err != nil {
		logutil.FromContext(r.Context(), s.log).Info("discovery failed", "origin", origin, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, httpclient.ErrSSRFBlocked) {
			status = http.StatusForbidden
		}
		httpwrap.WriteJSON(w, status, discoverResponse{Error: err.Error()})
		return
	}
	httpwrap.WriteJSON(w, http.StatusOK, discoverResponse{Success: true, Discovery: disc})
}

// originOf reduces rawURL to scheme://host.
func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", errUnsupportedScheme
	}
	if u.Host == "" {
		return "", errMissingHost
	}
	return scheme + "://" + u.Host, nil
}
