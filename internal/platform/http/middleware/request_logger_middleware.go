// Package middleware provides always-on transport middleware for the HTTP
// server.
package middleware

import (
	"log/slog"
	"net"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// RequestLoggerMiddleware attaches a request-scoped logger carrying
// request_id, method, path and client_ip to the request context.
//
// It must run after chi's RequestID middleware.
func RequestLoggerMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	base = logutil.NoopIfNil(base)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := base.With(
				"request_id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"client_ip", clientIP(r),
			)
			next.ServeHTTP(w, r.WithContext(logutil.WithLogger(r.Context(), reqLogger)))
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
