package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/cache"
	httpclient "github.com/MahdiBaghbani/ocmbridge/internal/platform/http/client"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// Discovery paths, tried in order.
const (
	WellKnownPath   = "/.well-known/ocm"
	LegacyPath      = "/ocm-provider"
	defaultMaxTries = 3
)

// ErrDisabled is returned when a server answers with enabled=false.
var ErrDisabled = errors.New("OCM is disabled")

// Fetcher performs a bounded GET; *client.Client satisfies it.
type Fetcher interface {
	GetJSON(ctx context.Context, rawURL string) ([]byte, *http.Response, error)
}

// Client fetches and caches remote discovery documents.
type Client struct {
	fetcher  Fetcher
	cache    cache.Cache
	cacheTTL time.Duration
	maxTries uint
	interval time.Duration
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the attempt budget per discovery path and the initial
// backoff interval.
func WithRetry(maxTries uint, interval time.Duration) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		c.interval = interval
	}
}

// WithCacheTTL overrides cache.TTLDiscovery.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cacheTTL = ttl }
}

// NewClient creates a discovery client caching documents in c.
func NewClient(fetcher Fetcher, c cache.Cache, logger *slog.Logger, opts ...Option) *Client {
	cl := &Client{
		fetcher:  fetcher,
		cache:    c,
		cacheTTL: cache.TTLDiscovery,
		maxTries: defaultMaxTries,
		interval: 500 * time.Millisecond,
		logger:   logutil.NoopIfNil(logger),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// BaseURL turns a bare host into an https base URL. Values that already
// carry a scheme are returned without a trailing slash.
func BaseURL(hostOrURL string) string {
	if strings.Contains(hostOrURL, "://") {
		return strings.TrimSuffix(hostOrURL, "/")
	}
	return "https://" + strings.TrimSuffix(hostOrURL, "/")
}

// Discover returns the discovery document of the server at hostOrURL,
// trying /.well-known/ocm before /ocm-provider.
func (c *Client) Discover(ctx context.Context, hostOrURL string) (*Discovery, error) {
	base := BaseURL(hostOrURL)
	key := "discovery:" + base

	if data, err := c.cache.Get(ctx, key); err == nil {
		var d Discovery
		if err := json.Unmarshal(data, &d); err == nil {
			return &d, nil
		}
	}

	d, err := c.fetchWithRetry(ctx, base+WellKnownPath)
	if err != nil {
		c.logger.Debug("well-known discovery failed, trying legacy path", "base", base, "error", err)
		d, err = c.fetchWithRetry(ctx, base+LegacyPath)
		if err != nil {
			return nil, fmt.Errorf("discover OCM at %s: %w", base, err)
		}
	}

	if data, err := json.Marshal(d); err == nil {
		if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
			c.logger.Warn("failed to cache discovery document", "base", base, "error", err)
		}
	}
	return d, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, url string) (*Discovery, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval

	return backoff.Retry(ctx, func() (*Discovery, error) {
		return c.fetch(ctx, url)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
}

// fetch returns retryable errors only for network failures and 5xx or 429
// answers.
func (c *Client) fetch(ctx context.Context, url string) (*Discovery, error) {
	data, resp, err := c.fetcher.GetJSON(ctx, url)
	if err != nil {
		if resp != nil || httpclient.IsSSRFError(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("discovery returned status %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("discovery returned status %d", resp.StatusCode))
	}

	var d Discovery
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("invalid discovery JSON: %w", err))
	}
	if !d.Enabled {
		return nil, backoff.Permanent(fmt.Errorf("%w at %s", ErrDisabled, url))
	}
	if d.EndPoint == "" {
		return nil, backoff.Permanent(fmt.Errorf("discovery at %s has no endPoint", url))
	}
	return &d, nil
}
