// Package discovery publishes this instance's OCM discovery document and
// fetches the documents of remote servers.
package discovery

import (
	"sort"
	"strings"
)

// APIVersion is the OCM API version advertised by this instance.
const APIVersion = "1.1.0"

// Discovery is the OCM discovery document served at /.well-known/ocm.
type Discovery struct {
	Enabled       bool           `json:"enabled"`
	APIVersion    string         `json:"apiVersion"`
	EndPoint      string         `json:"endPoint"`
	Provider      string         `json:"provider,omitempty"`
	ResourceTypes []ResourceType `json:"resourceTypes"`
	Capabilities  []string       `json:"capabilities,omitempty"`
}

// ResourceType advertises one shareable resource type.
type ResourceType struct {
	Name       string            `json:"name"`
	ShareTypes []string          `json:"shareTypes"`
	Protocols  map[string]string `json:"protocols"`
}

// HasCapability reports whether the document advertises capability.
func (d *Discovery) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// SupportsShareType reports whether the document accepts shareType for
// resourceType.
func (d *Discovery) SupportsShareType(resourceType, shareType string) bool {
	for _, rt := range d.ResourceTypes {
		if rt.Name != resourceType {
			continue
		}
		for _, st := range rt.ShareTypes {
			if st == shareType {
				return true
			}
		}
	}
	return false
}

// NewDocument builds this instance's discovery document. publicOrigin is
// scheme://host[:port]; the OCM endpoint lives under /ocm.
func NewDocument(publicOrigin, provider string, shareTypes map[string][]string) Discovery {
	names := make([]string, 0, len(shareTypes))
	for name := range shareTypes {
		names = append(names, name)
	}
	sort.Strings(names)

	rts := make([]ResourceType, 0, len(names))
	for _, name := range names {
		rts = append(rts, ResourceType{
			Name:       name,
			ShareTypes: append([]string(nil), shareTypes[name]...),
			Protocols:  map[string]string{},
		})
	}

	return Discovery{
		Enabled:       true,
		APIVersion:    APIVersion,
		EndPoint:      strings.TrimSuffix(publicOrigin, "/") + "/ocm",
		Provider:      provider,
		ResourceTypes: rts,
		Capabilities:  []string{"invites", "notifications", "protocol-object"},
	}
}
