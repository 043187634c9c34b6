// Package protocol normalizes, validates and decodes the "protocol" member of
// an OCM share request.
//
// Three wire shapes are accepted:
//
//	{"singleProtocolLegacy": {"name": "webdav", "options": {"sharedSecret": ...}}}
//	{"singleProtocolNew":    {"name": "webdav", "options": {...}, "webdav": {"sharedSecret": ...}}}
//	{"multipleProtocols":    {"name": "multi", "webdav": ..., "webapp": ..., "datatx": ...}}
//
// A payload with a top-level "name" key and no tag is the protocol v1.0 form
// and is treated as singleProtocolLegacy.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
)

// Variant tags as they appear on the wire.
const (
	TagLegacySingle   = "singleProtocolLegacy"
	TagExtendedSingle = "singleProtocolNew"
	TagMulti          = "multipleProtocols"
)

const (
	nameWebDAV = "webdav"
	nameMulti  = "multi"

	keySharedSecret = "sharedSecret"
)

// Variant identifies the active member of an Envelope.
type Variant int

const (
	VariantNone Variant = iota
	VariantLegacySingle
	VariantExtendedSingle
	VariantMulti
)

func (v Variant) String() string {
	switch v {
	case VariantLegacySingle:
		return TagLegacySingle
	case VariantExtendedSingle:
		return TagExtendedSingle
	case VariantMulti:
		return TagMulti
	}
	return "none"
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid protocol")

// WebDAV is the webdav sub-protocol. SharedSecret is only carried by the
// singleProtocolNew variant.
type WebDAV struct {
	SharedSecret string   `mapstructure:"sharedSecret" json:"sharedSecret,omitempty"`
	Permissions  []string `mapstructure:"permissions" json:"permissions,omitempty"`
	URI          string   `mapstructure:"uri" json:"uri,omitempty"`
}

// WebApp is the webapp sub-protocol of a multi envelope.
type WebApp struct {
	URITemplate string `mapstructure:"uriTemplate" json:"uriTemplate,omitempty"`
	ViewMode    string `mapstructure:"viewMode" json:"viewMode,omitempty"`
}

// DataTx is the datatx sub-protocol of a multi envelope.
type DataTx struct {
	SrcURI string `mapstructure:"srcUri" json:"srcUri,omitempty"`
	Size   int64  `mapstructure:"size" json:"size,omitempty"`
}

// Envelope is a validated protocol payload with exactly one active variant.
// The zero value has VariantNone and is never produced by Negotiate.
type Envelope struct {
	variant Variant
	name    string
	options map[string]string
	webdav  *WebDAV
	webapp  *WebApp
	datatx  *DataTx
}

// NewLegacySingle builds a singleProtocolLegacy envelope. sharedSecret is
// stored under options.sharedSecret, overriding any value in options.
func NewLegacySingle(sharedSecret string, options map[string]string) Envelope {
	opts := cloneOptions(options)
	if opts == nil {
		opts = make(map[string]string, 1)
	}
	opts[keySharedSecret] = sharedSecret
	return Envelope{variant: VariantLegacySingle, name: nameWebDAV, options: opts}
}

// NewExtendedSingle builds a singleProtocolNew envelope.
func NewExtendedSingle(webdav WebDAV, options map[string]string) Envelope {
	w := webdav
	w.Permissions = cloneStrings(webdav.Permissions)
	return Envelope{variant: VariantExtendedSingle, name: nameWebDAV, options: cloneOptions(options), webdav: &w}
}

// NewMulti builds a multipleProtocols envelope. Nil sub-protocols are sent
// as JSON null.
func NewMulti(webdav *WebDAV, webapp *WebApp, datatx *DataTx, options map[string]string) Envelope {
	env := Envelope{variant: VariantMulti, name: nameMulti, options: cloneOptions(options)}
	if webdav != nil {
		w := *webdav
		w.Permissions = cloneStrings(webdav.Permissions)
		env.webdav = &w
	}
	if webapp != nil {
		a := *webapp
		env.webapp = &a
	}
	if datatx != nil {
		d := *datatx
		env.datatx = &d
	}
	return env
}

// Variant returns the active variant.
func (e Envelope) Variant() Variant { return e.variant }

// Name returns the protocol name ("webdav" or "multi").
func (e Envelope) Name() string { return e.name }

// Options returns a copy of the options map.
func (e Envelope) Options() map[string]string { return cloneOptions(e.options) }

// WebDAV returns the webdav sub-protocol, or nil.
func (e Envelope) WebDAV() *WebDAV {
	if e.webdav == nil {
		return nil
	}
	w := *e.webdav
	w.Permissions = cloneStrings(e.webdav.Permissions)
	return &w
}

// WebApp returns the webapp sub-protocol, or nil.
func (e Envelope) WebApp() *WebApp {
	if e.webapp == nil {
		return nil
	}
	a := *e.webapp
	return &a
}

// DataTx returns the datatx sub-protocol, or nil.
func (e Envelope) DataTx() *DataTx {
	if e.datatx == nil {
		return nil
	}
	d := *e.datatx
	return &d
}

// SharedSecret returns the secret carried by the active variant. The empty
// string means no secret; it never fails.
func (e Envelope) SharedSecret() string {
	switch e.variant {
	case VariantLegacySingle, VariantMulti:
		return e.options[keySharedSecret]
	case VariantExtendedSingle:
		if e.webdav != nil {
			return e.webdav.SharedSecret
		}
	}
	return ""
}

// MarshalJSON emits legacy envelopes in the untagged v1.0 form and the other
// variants in their tagged form.
func (e Envelope) MarshalJSON() ([]byte, error) {
	switch e.variant {
	case VariantLegacySingle:
		return json.Marshal(legacyWire{Name: e.name, Options: e.optionsOrEmpty()})
	case VariantExtendedSingle:
		return json.Marshal(map[string]extendedWire{
			TagExtendedSingle: {Name: e.name, Options: e.options, WebDAV: e.webdav},
		})
	case VariantMulti:
		return json.Marshal(map[string]multiWire{
			TagMulti: {Name: e.name, WebDAV: e.webdav, WebApp: e.webapp, DataTx: e.datatx, Options: e.options},
		})
	}
	return nil, fmt.Errorf("%w: empty envelope", ErrInvalid)
}

func (e Envelope) optionsOrEmpty() map[string]string {
	if e.options == nil {
		return map[string]string{}
	}
	return e.options
}

type legacyWire struct {
	Name    string            `json:"name"`
	Options map[string]string `json:"options"`
}

type extendedWire struct {
	Name    string            `json:"name"`
	Options map[string]string `json:"options,omitempty"`
	WebDAV  *WebDAV           `json:"webdav"`
}

// multiWire keeps all three sub-protocol keys, null when absent.
type multiWire struct {
	Name    string            `json:"name"`
	WebDAV  *WebDAV           `json:"webdav"`
	WebApp  *WebApp           `json:"webapp"`
	DataTx  *DataTx           `json:"datatx"`
	Options map[string]string `json:"options,omitempty"`
}

// Normalize wraps a v1.0 payload (top-level "name" key) as
// singleProtocolLegacy. Any other payload is returned unchanged.
func Normalize(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	if _, ok := raw["name"]; ok {
		return map[string]any{TagLegacySingle: raw}
	}
	return raw
}

// Validate reports whether a normalized payload carries exactly one known
// variant tag whose body satisfies that variant's rules.
func Validate(normalized map[string]any) bool {
	_, err := decode(normalized)
	return err == nil
}

// Negotiate normalizes, validates and decodes raw in one step. Any failure is
// an ocmerr.KindMissingArguments error naming the "protocol" field.
func Negotiate(raw map[string]any) (Envelope, error) {
	env, err := decode(Normalize(raw))
	if err != nil {
		return Envelope{}, &ocmerr.Error{
			Kind:    ocmerr.KindMissingArguments,
			Message: "protocol payload failed validation",
			Fields:  []string{"protocol"},
			Cause:   err,
		}
	}
	return env, nil
}

func decode(normalized map[string]any) (Envelope, error) {
	if len(normalized) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty payload", ErrInvalid)
	}
	if len(normalized) != 1 {
		return Envelope{}, fmt.Errorf("%w: expected exactly one variant tag, got %d keys", ErrInvalid, len(normalized))
	}

	for tag, body := range normalized {
		payload, ok := body.(map[string]any)
		if !ok {
			return Envelope{}, fmt.Errorf("%w: %s must be an object", ErrInvalid, tag)
		}
		switch tag {
		case TagLegacySingle:
			return decodeLegacy(payload)
		case TagExtendedSingle:
			return decodeExtended(payload)
		case TagMulti:
			return decodeMulti(payload)
		default:
			return Envelope{}, fmt.Errorf("%w: unknown variant %q", ErrInvalid, tag)
		}
	}
	return Envelope{}, ErrInvalid
}

func decodeLegacy(p map[string]any) (Envelope, error) {
	if name, _ := p["name"].(string); name != nameWebDAV {
		return Envelope{}, fmt.Errorf("%w: legacy name must be %q", ErrInvalid, nameWebDAV)
	}
	opts, err := decodeOptions(p["options"])
	if err != nil {
		return Envelope{}, err
	}
	if _, ok := opts[keySharedSecret]; !ok {
		return Envelope{}, fmt.Errorf("%w: options.sharedSecret is required", ErrInvalid)
	}
	return Envelope{variant: VariantLegacySingle, name: nameWebDAV, options: opts}, nil
}

func decodeExtended(p map[string]any) (Envelope, error) {
	if name, _ := p["name"].(string); name != nameWebDAV {
		return Envelope{}, fmt.Errorf("%w: singleProtocolNew name must be %q", ErrInvalid, nameWebDAV)
	}

	raw, ok := p["webdav"].(map[string]any)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: webdav object is required", ErrInvalid)
	}
	if _, ok := raw[keySharedSecret].(string); !ok {
		return Envelope{}, fmt.Errorf("%w: webdav.sharedSecret is required", ErrInvalid)
	}
	var w WebDAV
	if err := decodeInto(raw, &w); err != nil {
		return Envelope{}, err
	}

	env := Envelope{variant: VariantExtendedSingle, name: nameWebDAV, webdav: &w}
	if v, present := p["options"]; present && v != nil {
		opts, err := decodeOptions(v)
		if err != nil {
			return Envelope{}, err
		}
		env.options = opts
	}
	return env, nil
}

func decodeMulti(p map[string]any) (Envelope, error) {
	if v, present := p["name"]; present {
		if name, _ := v.(string); name != nameMulti {
			return Envelope{}, fmt.Errorf("%w: multi name must be %q", ErrInvalid, nameMulti)
		}
	}
	for _, key := range []string{"webdav", "webapp", "datatx"} {
		if _, present := p[key]; !present {
			return Envelope{}, fmt.Errorf("%w: multi requires key %q", ErrInvalid, key)
		}
	}

	env := Envelope{variant: VariantMulti, name: nameMulti}

	if v := p["webdav"]; v != nil {
		var w WebDAV
		if err := decodeInto(v, &w); err != nil {
			return Envelope{}, err
		}
		env.webdav = &w
	}
	if v := p["webapp"]; v != nil {
		var a WebApp
		if err := decodeInto(v, &a); err != nil {
			return Envelope{}, err
		}
		env.webapp = &a
	}
	if v := p["datatx"]; v != nil {
		var d DataTx
		if err := decodeInto(v, &d); err != nil {
			return Envelope{}, err
		}
		env.datatx = &d
	}
	if v, present := p["options"]; present && v != nil {
		opts, err := decodeOptions(v)
		if err != nil {
			return Envelope{}, err
		}
		env.options = opts
	}
	return env, nil
}

func decodeOptions(v any) (map[string]string, error) {
	if _, ok := v.(map[string]any); !ok {
		if _, ok := v.(map[string]string); !ok {
			return nil, fmt.Errorf("%w: options must be an object", ErrInvalid)
		}
	}
	var opts map[string]string
	if err := decodeInto(v, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// decodeInto decodes a JSON-shaped value into out. Permissions may be sent as
// a comma separated string or as a list. Integer fields reject fractional
// numbers.
func decodeInto(in any, out any) error {
	if _, ok := in.(map[string]any); !ok {
		if _, ok := in.(map[string]string); !ok {
			return fmt.Errorf("%w: expected an object, got %T", ErrInvalid, in)
		}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
			integralFloatHook,
		),
		Result: out,
	})
	if err != nil {
		return fmt.Errorf("protocol: decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// integralFloatHook stops mapstructure from truncating a JSON number such as
// 1.9 into an integer field.
func integralFloatHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Float64 && from.Kind() != reflect.Float32 {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	f := reflect.ValueOf(data).Float()
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("expected an integer, got %v", f)
	}
	return data, nil
}

func cloneOptions(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
