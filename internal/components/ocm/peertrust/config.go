// Package peertrust decides whether a remote OCM server is trusted.
package peertrust

// PolicyConfig is the [peer_trust.policy] config section.
type PolicyConfig struct {
	GlobalEnforce bool     `toml:"global_enforce" mapstructure:"global_enforce"`
	AllowList     []string `toml:"allow_list" mapstructure:"allow_list"`
	DenyList      []string `toml:"deny_list" mapstructure:"deny_list"`
	ExemptList    []string `toml:"exempt_list" mapstructure:"exempt_list"`
}
