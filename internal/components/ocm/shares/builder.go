package shares

import (
	"sort"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/protocol"
)

// ShareTypeConfig answers which share types a resource type accepts.
type ShareTypeConfig interface {
	SupportedShareTypes(resourceType string) []string
}

// StaticShareTypes is a ShareTypeConfig backed by a fixed table, typically
// the [resource_types.<name>] sections of the config file. It is read-only
// after construction.
type StaticShareTypes struct {
	table map[string][]string
}

// NewStaticShareTypes copies table into a new StaticShareTypes.
func NewStaticShareTypes(table map[string][]string) *StaticShareTypes {
	s := &StaticShareTypes{table: make(map[string][]string, len(table))}
	for rt, types := range table {
		s.table[rt] = append([]string(nil), types...)
	}
	return s
}

// SupportedShareTypes returns the share types configured for resourceType.
func (s *StaticShareTypes) SupportedShareTypes(resourceType string) []string {
	return append([]string(nil), s.table[resourceType]...)
}

// ResourceTypes returns the configured resource type names, sorted.
func (s *StaticShareTypes) ResourceTypes() []string {
	names := make([]string, 0, len(s.table))
	for rt := range s.table {
		names = append(names, rt)
	}
	sort.Strings(names)
	return names
}

var _ ShareTypeConfig = (*StaticShareTypes)(nil)

// Builder validates caller-supplied fields into a FederatedShareRequest.
type Builder struct {
	shareTypes ShareTypeConfig
}

// NewBuilder creates a builder consulting shareTypes for per-resource share
// type support.
func NewBuilder(shareTypes ShareTypeConfig) *Builder {
	return &Builder{shareTypes: shareTypes}
}

// Build validates fields and negotiates rawProtocol.
//
// Missing required fields or an invalid protocol yield
// ocmerr.KindMissingArguments listing every offending field. A share type
// the resource type does not support yields ocmerr.KindUnsupportedShareType.
func (b *Builder) Build(f Fields, rawProtocol map[string]any) (FederatedShareRequest, error) {
	missing := missingFields(f)

	env, protoErr := protocol.Negotiate(rawProtocol)
	if protoErr != nil {
		missing = append(missing, "protocol")
	}
	if len(missing) > 0 {
		return FederatedShareRequest{}, &ocmerr.Error{
			Kind:    ocmerr.KindMissingArguments,
			Message: "required fields missing or invalid",
			Fields:  missing,
			Cause:   protoErr,
		}
	}

	return b.finish(f, env)
}

// BuildWithEnvelope is Build for shares whose envelope was constructed in
// code rather than received on the wire.
func (b *Builder) BuildWithEnvelope(f Fields, env protocol.Envelope) (FederatedShareRequest, error) {
	missing := missingFields(f)
	if env.Variant() == protocol.VariantNone {
		missing = append(missing, "protocol")
	}
	if len(missing) > 0 {
		return FederatedShareRequest{}, ocmerr.MissingArguments(missing...)
	}
	return b.finish(f, env)
}

func (b *Builder) finish(f Fields, env protocol.Envelope) (FederatedShareRequest, error) {
	if !IsKnownShareType(f.ShareType) || !b.supports(f.ResourceType, f.ShareType) {
		return FederatedShareRequest{}, ocmerr.New(ocmerr.KindUnsupportedShareType,
			"share type "+f.ShareType+" is not supported for resource type "+f.ResourceType)
	}

	if f.OwnerDisplayName == "" {
		f.OwnerDisplayName = f.Owner
	}
	if f.SenderDisplayName == "" {
		f.SenderDisplayName = f.Sender
	}
	return Restore(f, env), nil
}

func (b *Builder) supports(resourceType, shareType string) bool {
	if b.shareTypes == nil {
		return false
	}
	for _, t := range b.shareTypes.SupportedShareTypes(resourceType) {
		if t == shareType {
			return true
		}
	}
	return false
}

func missingFields(f Fields) []string {
	var missing []string
	check := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}
	check("shareWith", f.ShareWith)
	check("name", f.Name)
	check("providerId", f.ProviderID)
	check("owner", f.Owner)
	check("sender", f.Sender)
	check("shareType", f.ShareType)
	check("resourceType", f.ResourceType)
	return missing
}

// WireRequest is the decoded JSON body of an inbound OCM NewShare request.
type WireRequest struct {
	ShareWith         string         `json:"shareWith"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	ProviderID        string         `json:"providerId"`
	Owner             string         `json:"owner"`
	Sender            string         `json:"sender"`
	OwnerDisplayName  string         `json:"ownerDisplayName"`
	SenderDisplayName string         `json:"senderDisplayName"`
	ShareType         string         `json:"shareType"`
	ResourceType      string         `json:"resourceType"`
	Expiration        int64          `json:"expiration"`
	Protocol          map[string]any `json:"protocol"`
}

// Fields converts the wire body into builder input. A zero expiration means
// the share does not expire.
func (w WireRequest) Fields() Fields {
	f := Fields{
		ShareWith:         w.ShareWith,
		Name:              w.Name,
		Description:       w.Description,
		ProviderID:        w.ProviderID,
		Owner:             w.Owner,
		OwnerDisplayName:  w.OwnerDisplayName,
		Sender:            w.Sender,
		SenderDisplayName: w.SenderDisplayName,
		ShareType:         w.ShareType,
		ResourceType:      w.ResourceType,
	}
	if w.Expiration > 0 {
		t := time.Unix(w.Expiration, 0).UTC()
		f.Expiration = &t
	}
	return f
}
