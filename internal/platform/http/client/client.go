// Package client provides the outbound HTTP client used to reach peer OCM
// servers. In strict mode it refuses to connect to loopback, private,
// link-local, multicast and unspecified addresses.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/config"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/hostport"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

var (
	ErrSSRFBlocked      = errors.New("request blocked by SSRF protection")
	ErrHostUnresolvable = errors.New("host could not be resolved")
	ErrInvalidURL       = errors.New("invalid URL")
	ErrResponseTooLarge = errors.New("response body too large")
	ErrRedirectBlocked  = errors.New("redirect blocked by policy")
)

// Doer is what transport and discovery depend on.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Resolver abstracts DNS resolution for tests.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Client is a bounded HTTP client with SSRF protection.
type Client struct {
	cfg      config.OutboundHTTPConfig
	http     *http.Client
	resolver Resolver
	logger   *slog.Logger
}

var _ Doer = (*Client)(nil)

// New creates a client. A nil cfg uses config.DefaultOutboundHTTP().
// Proxy environment variables are ignored.
func New(cfg *config.OutboundHTTPConfig, logger *slog.Logger) *Client {
	c := &Client{cfg: config.DefaultOutboundHTTP(), logger: logutil.NoopIfNil(logger)}
	if cfg != nil {
		c.cfg = *cfg
	}

	dialer := &net.Dialer{Timeout: time.Duration(c.cfg.ConnectTimeoutMS) * time.Millisecond}
	transport := &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if c.strict() {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					host = addr
				}
				if err := c.checkHost(ctx, host); err != nil {
					return nil, err
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	c.http = &http.Client{
		Transport: transport,
		Timeout:   time.Duration(c.cfg.TimeoutMS) * time.Millisecond,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c
}

// SetResolver replaces the DNS resolver used by SSRF checks.
func (c *Client) SetResolver(r Resolver) {
	c.resolver = r
}

func (c *Client) strict() bool {
	return c.cfg.SSRFMode == config.SSRFModeStrict
}

func (c *Client) lookup(ctx context.Context, host string) ([]net.IPAddr, error) {
	if c.resolver != nil {
		return c.resolver.LookupIPAddr(ctx, host)
	}
	return net.DefaultResolver.LookupIPAddr(ctx, host)
}

// checkHost fails closed: a host that does not resolve is blocked.
func (c *Client) checkHost(ctx context.Context, host string) error {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	switch strings.ToLower(host) {
	case "localhost", "localhost.localdomain":
		return fmt.Errorf("%w: localhost", ErrSSRFBlocked)
	}

	if ip := net.ParseIP(host); ip != nil {
		if !AllowedIP(ip) {
			return fmt.Errorf("%w: IP %s", ErrSSRFBlocked, ip)
		}
		return nil
	}

	addrs, err := c.lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrHostUnresolvable, host, err)
	}
	for _, a := range addrs {
		if !AllowedIP(a.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrSSRFBlocked, host, a.IP)
		}
	}
	return nil
}

// AllowedIP reports whether ip is a public unicast address.
func AllowedIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast())
}

// Do sends req under ctx. GET and HEAD requests follow up to MaxRedirects
// redirects to the same host without an https to http downgrade; any other
// method treats a redirect as an error.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if c.strict() {
		if err := c.checkHost(ctx, req.URL.Hostname()); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	for hops := 0; isRedirect(resp.StatusCode); hops++ {
		resp.Body.Close()
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			return nil, fmt.Errorf("%w: %s request answered with %d", ErrRedirectBlocked, req.Method, resp.StatusCode)
		}
		if hops >= max(c.cfg.MaxRedirects, 1) {
			return nil, fmt.Errorf("%w: more than %d redirects", ErrRedirectBlocked, max(c.cfg.MaxRedirects, 1))
		}
		next, err := c.redirectTarget(req, resp)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("following redirect", "from", req.URL.String(), "to", next.URL.String())
		req = next
		if resp, err = c.http.Do(req); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (c *Client) redirectTarget(req *http.Request, resp *http.Response) (*http.Request, error) {
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%w: no Location header", ErrRedirectBlocked)
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedirectBlocked, err)
	}
	u = req.URL.ResolveReference(u)

	if req.URL.Scheme == "https" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: https to %s downgrade", ErrRedirectBlocked, u.Scheme)
	}
	if !SameHost(req.URL, u) {
		return nil, fmt.Errorf("%w: %s to %s", ErrRedirectBlocked, req.URL.Host, u.Host)
	}

	next, err := http.NewRequestWithContext(req.Context(), req.Method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedirectBlocked, err)
	}
	for _, h := range []string{"Accept", "User-Agent"} {
		if v := req.Header.Get(h); v != "" {
			next.Header.Set(h, v)
		}
	}
	return next, nil
}

// SameHost compares the authorities of a and b, treating an explicit
// default port as equal to no port.
func SameHost(a, b *url.URL) bool {
	if a.Scheme == b.Scheme {
		return hostport.Equal(a.Host, b.Host, strings.ToLower(a.Scheme))
	}
	return strings.EqualFold(a.Hostname(), b.Hostname()) && effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// GetJSON performs a GET and returns the body, bounded by MaxResponseBytes.
func (c *Client) GetJSON(ctx context.Context, rawURL string) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := ReadLimited(resp.Body, c.cfg.MaxResponseBytes)
	return body, resp, err
}

// ReadLimited reads r, failing with ErrResponseTooLarge past limit bytes.
// A non-positive limit means no limit.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// IsSSRFError reports whether err came from the SSRF guard.
func IsSSRFError(err error) bool {
	return errors.Is(err, ErrSSRFBlocked) || errors.Is(err, ErrHostUnresolvable)
}
