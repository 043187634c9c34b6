// Package wellknown serves this instance's OCM discovery document.
package wellknown

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/discovery"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
	"github.com/MahdiBaghbani/ocmbridge/internal/services"
	"github.com/MahdiBaghbani/ocmbridge/internal/services/httpwrap"
)

// ProviderName is advertised as the discovery document's provider.
const ProviderName = "ocmbridge"

func init() {
	services.MustRegister("wellknown", New)
}

type svc struct {
	router chi.Router
	doc    discovery.Discovery
	log    *slog.Logger
}

// New creates the wellknown service. The document is computed once from
// the public origin and the configured resource types.
func New(d *services.Deps, log *slog.Logger) (services.Service, error) {
	if d == nil || d.Config == nil {
		return nil, errors.New("wellknown service: config is required")
	}

	s := &svc{
		router: chi.NewRouter(),
		doc:    discovery.NewDocument(d.Config.PublicOrigin, ProviderName, d.Config.ShareTypeTable()),
		log:    logutil.NoopIfNil(log),
	}

	for _, p := range []string{discovery.WellKnownPath, discovery.LegacyPath} {
		s.router.Get(p, s.serveDiscovery)
		// Trailing-slash alias without a redirect.
		s.router.Get(p+"/", s.serveDiscovery)
	}
	return s, nil
}

func (s *svc) serveDiscovery(w http.ResponseWriter, _ *http.Request) {
	httpwrap.WriteJSON(w, http.StatusOK, s.doc)
}

// Close implements services.Service.
func (s *svc) Close() error { return nil }

// Prefix implements services.Service. Wellknown mounts at the root.
func (s *svc) Prefix() string { return "" }

// Handler implements services.Service.
func (s *svc) Handler() http.Handler { return httpwrap.ClearRawPath(s.router) }
