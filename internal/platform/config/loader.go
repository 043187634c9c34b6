package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the preset the configuration starts from.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is an optional TOML file. A path that cannot be read or
	// parsed fails the load.
	ConfigPath string

	// ModeFlag overrides the mode key of the file.
	ModeFlag string

	FlagOverrides FlagOverrides

	// Logger receives warnings such as undecoded keys. Nil uses slog.Default().
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values. Nil or empty values leave the
// file value in place.
type FlagOverrides struct {
	ListenAddr   *string
	PublicOrigin *string
	SSRFMode     *string
	LoggingLevel *string
	StoreDriver  *string
	DataDir      *string
	LockDriver   *string
	CacheDriver  *string
}

// Load builds the configuration with the following precedence:
//  1. mode: --mode flag > mode in file > strict
//  2. mode preset defaults
//  3. TOML file values
//  4. CLI flags
//  5. enum and range validation
//
// Unknown TOML keys produce a warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		data     string
		modeOnly struct {
			Mode string `toml:"mode"`
		}
		modeMD toml.MetaData
	)
	if opts.ConfigPath != "" {
		raw, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		data = string(raw)
		if modeMD, err = toml.Decode(data, &modeOnly); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
	}

	modeStr := modeOnly.Mode
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		// A resource_types table in the file replaces the preset table
		// instead of merging into it.
		if modeMD.IsDefined("resource_types") {
			cfg.ResourceTypes = nil
		}
		md, err := toml.Decode(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
		cfg.Mode = string(mode)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validateEnums(cfg); err != nil {
		return nil, err
	}
	if err := validateRanges(cfg); err != nil {
		return nil, err
	}
	if err := validatePublicOrigin(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production defaults: SSRF protection on and a
// durable sqlite store.
func StrictConfig() *Config {
	return &Config{
		Mode:         string(ModeStrict),
		ListenAddr:   ":9200",
		PublicOrigin: "https://localhost:9200",
		Logging:      LoggingConfig{Level: "info"},
		OutboundHTTP: DefaultOutboundHTTP(),
		Store:        StoreConfig{Driver: "sqlite", DataDir: ".ocmbridge"},
		Lock:         DriverSection{Driver: "memory"},
		Cache:        DriverSection{Driver: "memory"},
		Delivery: DeliveryConfig{
			MaxTry:          20,
			IntervalSeconds: 600,
			TickSeconds:     30,
			BatchSize:       50,
			ClaimTTLSeconds: 300,
		},
		Invites: InvitesConfig{TTLSeconds: 7 * 24 * 3600},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 300,
			WindowSeconds:     60,
		},
		ResourceTypes: map[string]ResourceTypeConfig{
			"file": {ShareTypes: []string{"user", "group", "federation"}},
		},
	}
}

// DevConfig returns development defaults: everything in memory, outbound
// requests to local peers allowed.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.Logging.Level = "debug"
	cfg.OutboundHTTP.SSRFMode = SSRFModeOff
	cfg.OutboundHTTP.MaxRedirects = 3
	cfg.OutboundHTTP.InsecureSkipVerify = true
	cfg.Store = StoreConfig{Driver: "memory"}
	cfg.Delivery.IntervalSeconds = 10
	cfg.Delivery.TickSeconds = 5
	return cfg
}

func overlayFlags(cfg *Config, f FlagOverrides) {
	set := func(dst *string, v *string) {
		if v != nil && *v != "" {
			*dst = *v
		}
	}
	set(&cfg.ListenAddr, f.ListenAddr)
	set(&cfg.PublicOrigin, f.PublicOrigin)
	set(&cfg.OutboundHTTP.SSRFMode, f.SSRFMode)
	set(&cfg.Logging.Level, f.LoggingLevel)
	set(&cfg.Store.Driver, f.StoreDriver)
	set(&cfg.Store.DataDir, f.DataDir)
	set(&cfg.Lock.Driver, f.LockDriver)
	set(&cfg.Cache.Driver, f.CacheDriver)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: must be one of %s", field, value, strings.Join(allowed, ", "))
}

func validateEnums(cfg *Config) error {
	checks := []error{
		oneOf("outbound_http.ssrf_mode", cfg.OutboundHTTP.SSRFMode, SSRFModeStrict, SSRFModeOff),
		oneOf("logging.level", cfg.Logging.Level, "trace", "debug", "info", "warn", "error"),
		oneOf("store.driver", cfg.Store.Driver, "memory", "sqlite"),
		oneOf("lock.driver", cfg.Lock.Driver, "memory", "valkey"),
		oneOf("cache.driver", cfg.Cache.Driver, "memory", "valkey"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if cfg.Store.Driver == "sqlite" && strings.TrimSpace(cfg.Store.DataDir) == "" {
		return fmt.Errorf("store.data_dir is required for the sqlite driver")
	}

	for name, rt := range cfg.ResourceTypes {
		if len(rt.ShareTypes) == 0 {
			return fmt.Errorf("resource_types.%s.share_types must not be empty", name)
		}
		for _, st := range rt.ShareTypes {
			if err := oneOf("resource_types."+name+".share_types entry", st, "user", "group", "federation"); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateRanges(cfg *Config) error {
	d := cfg.Delivery
	switch {
	case d.MaxTry < 1:
		return fmt.Errorf("delivery.max_try must be at least 1, got %d", d.MaxTry)
	case d.IntervalSeconds < 1:
		return fmt.Errorf("delivery.interval_seconds must be at least 1, got %d", d.IntervalSeconds)
	case d.TickSeconds < 1:
		return fmt.Errorf("delivery.tick_seconds must be at least 1, got %d", d.TickSeconds)
	case d.BatchSize < 1:
		return fmt.Errorf("delivery.batch_size must be at least 1, got %d", d.BatchSize)
	case d.ClaimTTLSeconds < 1:
		return fmt.Errorf("delivery.claim_ttl_seconds must be at least 1, got %d", d.ClaimTTLSeconds)
	}

	if rl := cfg.RateLimit; rl.Enabled && (rl.RequestsPerWindow < 1 || rl.WindowSeconds < 1) {
		return fmt.Errorf("rate_limit.requests_per_window and rate_limit.window_seconds must be positive when enabled")
	}

	o := cfg.OutboundHTTP
	if o.TimeoutMS < 1 || o.ConnectTimeoutMS < 1 {
		return fmt.Errorf("outbound_http timeouts must be positive")
	}
	if o.MaxResponseBytes < 1 {
		return fmt.Errorf("outbound_http.max_response_bytes must be positive")
	}
	return nil
}

// validatePublicOrigin requires an absolute http(s) URL with a host and
// nothing after the authority. Whitespace is rejected, not trimmed.
func validatePublicOrigin(cfg *Config) error {
	origin := cfg.PublicOrigin
	if origin == "" {
		return nil
	}
	if origin != strings.TrimSpace(origin) {
		return fmt.Errorf("invalid public_origin %q: must not contain leading or trailing whitespace", origin)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid public_origin %q: %w", origin, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("invalid public_origin %q: scheme must be http or https", origin)
	case u.Host == "":
		return fmt.Errorf("invalid public_origin %q: must include a host", origin)
	case u.User != nil:
		return fmt.Errorf("invalid public_origin %q: must not include userinfo", origin)
	case u.RawQuery != "" || u.Fragment != "":
		return fmt.Errorf("invalid public_origin %q: must not include a query or fragment", origin)
	case u.Path != "" && u.Path != "/":
		return fmt.Errorf("invalid public_origin %q: must not include a path", origin)
	}
	return nil
}
