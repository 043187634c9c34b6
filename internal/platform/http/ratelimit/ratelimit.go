// Package ratelimit limits requests per client using a cache counter.
package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/cache"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// KeyPrefix is prepended to every counter key.
const KeyPrefix = "ratelimit:"

var rejected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ocm_http_rate_limited_total",
	Help: "Requests rejected by the rate limiter.",
})

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	counter cache.Counter
	keyFunc func(*http.Request) string
	limit   int64
	window  time.Duration
	log     *slog.Logger
}

// New creates a limiter allowing limit requests per window for each client
// address.
func New(counter cache.Counter, limit int64, window time.Duration, log *slog.Logger) *Limiter {
	return &Limiter{
		counter: counter,
		keyFunc: KeyFromRequest,
		limit:   limit,
		window:  window,
		log:     logutil.NoopIfNil(log),
	}
}

// WithKeyFunc returns a copy of l keyed by fn.
func (l *Limiter) WithKeyFunc(fn func(*http.Request) string) *Limiter {
	c := *l
	c.keyFunc = fn
	return &c
}

// Wrap applies the limit to next. Counter failures let the request through.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, resetAt, err := l.counter.Increment(r.Context(), KeyPrefix+l.keyFunc(r), 1, l.window)
		if err != nil {
			logutil.FromContext(r.Context(), l.log).Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(l.limit-count, 0)
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(l.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if count > l.limit {
			retryAfter := max(int(time.Until(resetAt).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "RATE_LIMITED"})
			rejected.Inc()
			logutil.FromContext(r.Context(), l.log).Info("rate limited", "count", count, "limit", l.limit)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// KeyFromRequest keys by the connection's remote address without the port.
// Forwarding headers are ignored since they are client controlled.
func KeyFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
