// Package shares builds canonical federated share records.
//
// A FederatedShareRequest is an immutable value constructed once, either by
// Builder from caller-supplied fields or by Restore when a stored record is
// read back.
package shares

import (
	"encoding/json"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/protocol"
)

// Share types accepted on the wire.
const (
	ShareTypeUser       = "user"
	ShareTypeGroup      = "group"
	ShareTypeFederation = "federation"
)

// IsKnownShareType reports whether t is one of user, group or federation.
func IsKnownShareType(t string) bool {
	switch t {
	case ShareTypeUser, ShareTypeGroup, ShareTypeFederation:
		return true
	}
	return false
}

// Fields are the caller-supplied share attributes.
type Fields struct {
	ShareWith         string
	Name              string
	Description       string
	ProviderID        string
	Owner             string
	OwnerDisplayName  string
	Sender            string
	SenderDisplayName string
	ShareType         string
	ResourceType      string
	Expiration        *time.Time
}

// FederatedShareRequest is a validated share ready for delivery or for
// handing to a provider.
type FederatedShareRequest struct {
	ShareWith         string
	Name              string
	Description       string
	ProviderID        string
	Owner             string
	OwnerDisplayName  string
	Sender            string
	SenderDisplayName string
	ShareType         string
	ResourceType      string
	Expiration        *time.Time
	Protocol          protocol.Envelope
}

// Restore rebuilds a share from previously validated fields without
// re-running validation or display-name defaulting.
func Restore(f Fields, env protocol.Envelope) FederatedShareRequest {
	return FederatedShareRequest{
		ShareWith:         f.ShareWith,
		Name:              f.Name,
		Description:       f.Description,
		ProviderID:        f.ProviderID,
		Owner:             f.Owner,
		OwnerDisplayName:  f.OwnerDisplayName,
		Sender:            f.Sender,
		SenderDisplayName: f.SenderDisplayName,
		ShareType:         f.ShareType,
		ResourceType:      f.ResourceType,
		Expiration:        copyTime(f.Expiration),
		Protocol:          env,
	}
}

// Fields returns the share attributes without the protocol envelope.
func (r FederatedShareRequest) Fields() Fields {
	return Fields{
		ShareWith:         r.ShareWith,
		Name:              r.Name,
		Description:       r.Description,
		ProviderID:        r.ProviderID,
		Owner:             r.Owner,
		OwnerDisplayName:  r.OwnerDisplayName,
		Sender:            r.Sender,
		SenderDisplayName: r.SenderDisplayName,
		ShareType:         r.ShareType,
		ResourceType:      r.ResourceType,
		Expiration:        copyTime(r.Expiration),
	}
}

// SharedSecret returns the secret of the share's protocol envelope.
func (r FederatedShareRequest) SharedSecret() string {
	return r.Protocol.SharedSecret()
}

// wireShare is the OCM NewShare request body.
type wireShare struct {
	ShareWith         string            `json:"shareWith"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	ProviderID        string            `json:"providerId"`
	Owner             string            `json:"owner"`
	Sender            string            `json:"sender"`
	OwnerDisplayName  string            `json:"ownerDisplayName,omitempty"`
	SenderDisplayName string            `json:"senderDisplayName,omitempty"`
	ShareType         string            `json:"shareType"`
	ResourceType      string            `json:"resourceType"`
	Expiration        int64             `json:"expiration,omitempty"`
	Protocol          protocol.Envelope `json:"protocol"`
}

// MarshalJSON emits the OCM NewShare wire body. Expiration is unix seconds.
func (r FederatedShareRequest) MarshalJSON() ([]byte, error) {
	w := wireShare{
		ShareWith:         r.ShareWith,
		Name:              r.Name,
		Description:       r.Description,
		ProviderID:        r.ProviderID,
		Owner:             r.Owner,
		Sender:            r.Sender,
		OwnerDisplayName:  r.OwnerDisplayName,
		SenderDisplayName: r.SenderDisplayName,
		ShareType:         r.ShareType,
		ResourceType:      r.ResourceType,
		Protocol:          r.Protocol,
	}
	if r.Expiration != nil {
		w.Expiration = r.Expiration.Unix()
	}
	return json.Marshal(w)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
