// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// SSRF modes for outbound HTTP.
const (
	SSRFModeStrict = "strict"
	SSRFModeOff    = "off"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the preset the values were layered on: strict or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address to listen on, e.g. ":9200".
	ListenAddr string `toml:"listen_addr"`

	// PublicOrigin is scheme://host[:port] under which peers reach this
	// instance. Its authority is the sender host of invitations.
	PublicOrigin string `toml:"public_origin"`

	Logging       LoggingConfig                 `toml:"logging"`
	OutboundHTTP  OutboundHTTPConfig            `toml:"outbound_http"`
	Store         StoreConfig                   `toml:"store"`
	Lock          DriverSection                 `toml:"lock"`
	Cache         DriverSection                 `toml:"cache"`
	Delivery      DeliveryConfig                `toml:"delivery"`
	Invites       InvitesConfig                 `toml:"invites"`
	PeerTrust     PeerTrustConfig               `toml:"peer_trust"`
	RateLimit     RateLimitConfig               `toml:"rate_limit"`
	ResourceTypes map[string]ResourceTypeConfig `toml:"resource_types"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `toml:"level"`
}

// OutboundHTTPConfig bounds the client used to contact peers.
type OutboundHTTPConfig struct {
	SSRFMode           string `toml:"ssrf_mode"`
	TimeoutMS          int    `toml:"timeout_ms"`
	ConnectTimeoutMS   int    `toml:"connect_timeout_ms"`
	MaxRedirects       int    `toml:"max_redirects"`
	MaxResponseBytes   int64  `toml:"max_response_bytes"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// DefaultOutboundHTTP returns the strict outbound defaults.
func DefaultOutboundHTTP() OutboundHTTPConfig {
	return OutboundHTTPConfig{
		SSRFMode:         SSRFModeStrict,
		TimeoutMS:        10000,
		ConnectTimeoutMS: 2000,
		MaxRedirects:     1,
		MaxResponseBytes: 1 << 20,
	}
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	// Driver is memory or sqlite.
	Driver string `toml:"driver"`

	// DataDir holds the sqlite database file.
	DataDir string `toml:"data_dir"`
}

// DriverSection selects a driver and carries raw per-driver options, as in
// [lock.drivers.valkey]. Drivers decode their own options with
// DecodeOptions.
type DriverSection struct {
	Driver  string                    `toml:"driver"`
	Drivers map[string]map[string]any `toml:"drivers"`
}

// Options returns the raw options of the selected driver, or nil.
func (d DriverSection) Options() map[string]any {
	return d.Drivers[d.Driver]
}

// DeliveryConfig tunes the outgoing share retry job.
type DeliveryConfig struct {
	MaxTry          int `toml:"max_try"`
	IntervalSeconds int `toml:"interval_seconds"`
	TickSeconds     int `toml:"tick_seconds"`
	BatchSize       int `toml:"batch_size"`
	ClaimTTLSeconds int `toml:"claim_ttl_seconds"`
}

// Interval is the minimum wait between two attempts of one job.
func (d DeliveryConfig) Interval() time.Duration {
	return time.Duration(d.IntervalSeconds) * time.Second
}

// Tick is how often the worker scans for due jobs.
func (d DeliveryConfig) Tick() time.Duration {
	return time.Duration(d.TickSeconds) * time.Second
}

// ClaimTTL bounds how long one attempt may hold its job claim.
func (d DeliveryConfig) ClaimTTL() time.Duration {
	return time.Duration(d.ClaimTTLSeconds) * time.Second
}

// InvitesConfig controls issued invitation tokens.
type InvitesConfig struct {
	// TTLSeconds is the token lifetime. Negative means tokens never expire.
	TTLSeconds int `toml:"ttl_seconds"`
}

// TTL returns the token lifetime.
func (c InvitesConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// PeerTrustConfig holds peer trust settings.
type PeerTrustConfig struct {
	Policy PeerTrustPolicyConfig `toml:"policy"`
}

// PeerTrustPolicyConfig holds the allow, deny and exempt lists.
type PeerTrustPolicyConfig struct {
	GlobalEnforce bool     `toml:"global_enforce"`
	AllowList     []string `toml:"allow_list"`
	DenyList      []string `toml:"deny_list"`
	ExemptList    []string `toml:"exempt_list"`
}

// RateLimitConfig throttles inbound /ocm requests per client IP. Counters
// live in the configured cache driver.
type RateLimitConfig struct {
	Enabled           bool  `toml:"enabled"`
	RequestsPerWindow int64 `toml:"requests_per_window"`
	WindowSeconds     int   `toml:"window_seconds"`
}

// Window returns WindowSeconds as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// ResourceTypeConfig is a [resource_types.<name>] section.
type ResourceTypeConfig struct {
	ShareTypes []string `toml:"share_types"`
}

// ShareTypeTable flattens ResourceTypes into resource type -> share types.
func (c *Config) ShareTypeTable() map[string][]string {
	out := make(map[string][]string, len(c.ResourceTypes))
	for name, rt := range c.ResourceTypes {
		out[name] = append([]string(nil), rt.ShareTypes...)
	}
	return out
}

// PublicScheme returns the scheme of PublicOrigin, https when unset.
func (c *Config) PublicScheme() string {
	u, err := url.Parse(c.PublicOrigin)
	if c.PublicOrigin == "" || err != nil || u.Scheme == "" {
		return "https"
	}
	return strings.ToLower(u.Scheme)
}

// PublicAuthority returns the lowercased host[:port] of PublicOrigin.
func (c *Config) PublicAuthority() string {
	u, err := url.Parse(c.PublicOrigin)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// Redacted renders the config for logging. Driver options may contain
// passwords and are reduced to their key names.
func (c *Config) Redacted() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Config{Mode: %q, ListenAddr: %q, PublicOrigin: %q,\n", c.Mode, c.ListenAddr, c.PublicOrigin)
	fmt.Fprintf(&sb, "  Logging: {Level: %q},\n", c.Logging.Level)
	fmt.Fprintf(&sb, "  RateLimit: {Enabled: %v, RequestsPerWindow: %d, WindowSeconds: %d},\n",
		c.RateLimit.Enabled, c.RateLimit.RequestsPerWindow, c.RateLimit.WindowSeconds)
	o := c.OutboundHTTP
	fmt.Fprintf(&sb, "  OutboundHTTP: {SSRFMode: %q, TimeoutMS: %d, ConnectTimeoutMS: %d, MaxRedirects: %d, MaxResponseBytes: %d, InsecureSkipVerify: %v},\n",
		o.SSRFMode, o.TimeoutMS, o.ConnectTimeoutMS, o.MaxRedirects, o.MaxResponseBytes, o.InsecureSkipVerify)
	fmt.Fprintf(&sb, "  Store: {Driver: %q, DataDir: %q},\n", c.Store.Driver, c.Store.DataDir)
	fmt.Fprintf(&sb, "  Lock: {Driver: %q, Options: %s},\n", c.Lock.Driver, redactOptions(c.Lock.Options()))
	fmt.Fprintf(&sb, "  Cache: {Driver: %q, Options: %s},\n", c.Cache.Driver, redactOptions(c.Cache.Options()))
	d := c.Delivery
	fmt.Fprintf(&sb, "  Delivery: {MaxTry: %d, IntervalSeconds: %d, TickSeconds: %d, BatchSize: %d, ClaimTTLSeconds: %d},\n",
		d.MaxTry, d.IntervalSeconds, d.TickSeconds, d.BatchSize, d.ClaimTTLSeconds)
	fmt.Fprintf(&sb, "  Invites: {TTLSeconds: %d},\n", c.Invites.TTLSeconds)
	p := c.PeerTrust.Policy
	fmt.Fprintf(&sb, "  PeerTrust.Policy: {GlobalEnforce: %v, AllowListCount: %d, DenyListCount: %d, ExemptListCount: %d},\n",
		p.GlobalEnforce, len(p.AllowList), len(p.DenyList), len(p.ExemptList))
	names := make([]string, 0, len(c.ResourceTypes))
	for name := range c.ResourceTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(&sb, "  ResourceTypes: %v,\n}", names)
	return sb.String()
}

func redactOptions(opts map[string]any) string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "[" + strings.Join(keys, " ") + "]"
}
