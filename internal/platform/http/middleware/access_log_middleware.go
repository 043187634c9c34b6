package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// AccessLogMiddleware logs one line per request with status, bytes and
// duration. The base request fields come from the context logger set by
// RequestLoggerMiddleware; fallback is used when there is none.
func AccessLogMiddleware(fallback *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logutil.FromContext(r.Context(), fallback).Info("request",
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
