package config

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by driver option structs that fill in defaults
// after decoding.
type Setter interface {
	ApplyDefaults()
}

// DecodeOptions decodes a raw driver section (for example
// [lock.drivers.valkey]) into c. Durations may be given as Go duration
// strings. If c implements Setter, ApplyDefaults runs after decoding.
// Unknown keys are returned sorted so the caller can warn about them.
func DecodeOptions(input map[string]any, c any) ([]string, error) {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:   &md,
		Result:     c,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(input); err != nil {
		return nil, err
	}

	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}

	unused := md.Unused
	sort.Strings(unused)
	return unused, nil
}

// DecodeOptionsStrict is DecodeOptions that fails on unknown keys.
func DecodeOptionsStrict(input map[string]any, c any) error {
	unused, err := DecodeOptions(input, c)
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		return fmt.Errorf("unknown config keys: %v", unused)
	}
	return nil
}
