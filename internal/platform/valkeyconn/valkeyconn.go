// Package valkeyconn opens Valkey (or Redis) connections for the drivers
// that share one: the valkey lock driver and the valkey cache driver.
package valkeyconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/config"
)

// Options is the [*.drivers.valkey] config section.
type Options struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// ApplyDefaults fills unset fields.
func (o *Options) ApplyDefaults() {
	if o.Addr == "" {
		o.Addr = "localhost:6379"
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = "ocmbridge:"
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
}

var _ config.Setter = (*Options)(nil)

// ParseOptions decodes a raw driver section. Unknown keys are an error.
func ParseOptions(raw map[string]any) (*Options, error) {
	o := &Options{}
	if err := config.DecodeOptionsStrict(raw, o); err != nil {
		return nil, fmt.Errorf("valkey options: %w", err)
	}
	return o, nil
}

// Connect opens a client and verifies the server answers PING within the
// dial timeout, so misconfiguration fails at startup.
func Connect(o *Options) (valkey.Client, error) {
	if o == nil {
		return nil, errors.New("valkey options are required")
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{o.Addr},
		Password:          o.Password,
		SelectDB:          o.DB,
		DisableCache:      true,
		ForceSingleClient: true,
		Dialer:            net.Dialer{Timeout: o.DialTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect %s: %w", o.Addr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.DialTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping %s: %w", o.Addr, err)
	}
	return client, nil
}
