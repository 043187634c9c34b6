package peertrust

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/hostport"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// Reason codes reported in a PolicyDecision.
const (
	ReasonPolicyDisabled = "policy_disabled"
	ReasonDenied         = "denied_by_denylist"
	ReasonAllowed        = "allowed_by_allowlist"
	ReasonExempt         = "allowed_by_exempt"
	ReasonNotAllowed     = "not_allowed"
	ReasonInvalidHost    = "invalid_host"
)

// PolicyDecision is the result of a policy check.
type PolicyDecision struct {
	Allowed    bool
	Host       string
	ReasonCode string
}

// PolicyEngine evaluates allow, deny and exempt lists against a peer host.
// All comparisons happen on hostport-normalized https authorities.
type PolicyEngine struct {
	mu     sync.RWMutex
	cfg    PolicyConfig
	deny   map[string]struct{}
	allow  map[string]struct{}
	exempt map[string]struct{}
	logger *slog.Logger
}

// NewPolicyEngine creates an engine for cfg. List entries that fail to
// normalize are dropped with a warning.
func NewPolicyEngine(cfg PolicyConfig, logger *slog.Logger) *PolicyEngine {
	pe := &PolicyEngine{logger: logutil.NoopIfNil(logger)}
	pe.UpdatePolicy(cfg)
	return pe
}

// UpdatePolicy swaps in a new configuration.
func (pe *PolicyEngine) UpdatePolicy(cfg PolicyConfig) {
	deny := pe.normalizeList("deny_list", cfg.DenyList)
	allow := pe.normalizeList("allow_list", cfg.AllowList)
	exempt := pe.normalizeList("exempt_list", cfg.ExemptList)

	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.cfg = cfg
	pe.deny, pe.allow, pe.exempt = deny, allow, exempt
}

// Evaluate checks server against the policy. The deny list wins over the
// allow list, which wins over the exempt list.
func (pe *PolicyEngine) Evaluate(_ context.Context, server string) PolicyDecision {
	pe.mu.RLock()
	defer pe.mu.RUnlock()

	if !pe.cfg.GlobalEnforce {
		return PolicyDecision{Allowed: true, Host: server, ReasonCode: ReasonPolicyDisabled}
	}

	host, err := hostport.Normalize(server, "https")
	if err != nil {
		pe.logger.Warn("peer host does not normalize", "peer", server, "error", err)
		return PolicyDecision{Host: server, ReasonCode: ReasonInvalidHost}
	}

	if _, ok := pe.deny[host]; ok {
		pe.logger.Warn("peer denied by denylist", "peer", host)
		return PolicyDecision{Host: host, ReasonCode: ReasonDenied}
	}
	if _, ok := pe.allow[host]; ok {
		return PolicyDecision{Allowed: true, Host: host, ReasonCode: ReasonAllowed}
	}
	if _, ok := pe.exempt[host]; ok {
		return PolicyDecision{Allowed: true, Host: host, ReasonCode: ReasonExempt}
	}
	return PolicyDecision{Host: host, ReasonCode: ReasonNotAllowed}
}

// IsTrusted reports whether server may take part in share and invite
// exchanges.
func (pe *PolicyEngine) IsTrusted(ctx context.Context, server string) bool {
	return pe.Evaluate(ctx, server).Allowed
}

func (pe *PolicyEngine) normalizeList(name string, entries []string) map[string]struct{} {
	out := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		host, err := hostport.Normalize(e, "https")
		if err != nil {
			pe.logger.Warn("ignoring peer trust entry", "list", name, "entry", e, "error", err)
			continue
		}
		out[host] = struct{}{}
	}
	return out
}
