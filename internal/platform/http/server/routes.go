package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpmw "github.com/MahdiBaghbani/ocmbridge/internal/platform/http/middleware"
	"github.com/MahdiBaghbani/ocmbridge/internal/services"
	"github.com/MahdiBaghbani/ocmbridge/internal/services/httpwrap"
)

type healthResponse struct {
	Status string `json:"status"`
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	httpwrap.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// mountService mounts a service and tracks it for lifecycle management.
// An empty prefix mounts at the root.
func (s *Server) mountService(r chi.Router, svc services.Service) {
	if svc == nil {
		return
	}
	if prefix := svc.Prefix(); prefix == "" {
		r.Mount("/", svc.Handler())
	} else {
		r.Mount("/"+prefix, svc.Handler())
	}
	s.mountedServices = append(s.mountedServices, svc)
}

// setupRoutes creates the chi router.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// Always-on transport middleware (order is invariant):
	// RequestID -> request-scoped logger -> access log -> metrics -> recoverer
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(s.logger))
	r.Use(httpmw.AccessLogMiddleware(s.logger))
	r.Use(httpmw.MetricsMiddleware())
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	for _, svc := range s.services {
		s.mountService(r, svc)
	}
	return r
}
