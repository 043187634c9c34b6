// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/config"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
	"github.com/MahdiBaghbani/ocmbridge/internal/services"
)

// Server wraps the HTTP server and the services it mounts.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	services   []services.Service

	// mountedServices are closed in reverse order during shutdown.
	mountedServices []services.Service
}

// New creates a server mounting svcs in order. Nil entries are skipped.
func New(cfg *config.Config, logger *slog.Logger, svcs []services.Service) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	s := &Server{
		cfg:      cfg,
		logger:   logutil.NoopIfNil(logger),
		services: svcs,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and blocks until the server is
// shut down. TLS is terminated in front of this process.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server is shut down. It returns
// nil after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server",
		"addr", ln.Addr().String(),
		"public_origin", s.cfg.PublicOrigin,
	)
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones, then closes
// services in reverse mount order.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	httpErr := s.httpServer.Shutdown(ctx)

	for i := len(s.mountedServices) - 1; i >= 0; i-- {
		svc := s.mountedServices[i]
		prefix := svc.Prefix()
		if prefix == "" {
			prefix = "(root)"
		}
		if err := svc.Close(); err != nil {
			s.logger.Warn("service close error", "service", prefix, "error", err)
			continue
		}
		s.logger.Debug("service closed", "service", prefix)
	}

	return httpErr
}
