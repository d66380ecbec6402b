package middleware

import (
	"net"
	"net/http"
	"strings"
)

// BypassEvaluator reports whether a request is exempt from feature
// flag enforcement, and why.
type BypassEvaluator func(r *http.Request) (bool, string)

// EnforcementBypassConfig carries the operator-controlled exemptions:
// probe paths that must never be gated, plus trusted callers by source
// network or by user id.
type EnforcementBypassConfig struct {
	EnableProbeBypass   bool
	EnableTrustedBypass bool
	ExemptPathPrefixes  []string
	TrustedCIDRs        []string
	TrustedUserIDs      []string
}

type enforcementBypassMatcher struct {
	enableProbeBypass   bool
	enableTrustedBypass bool
	exemptPrefixes      []string
	trustedCIDRs        []*net.IPNet
	trustedUserIDs      map[string]struct{}
}

// NewEnforcementBypassEvaluator compiles the config into a matcher.
// Returns nil when no exemption is actually configured, so callers can
// skip the check entirely.
func NewEnforcementBypassEvaluator(cfg EnforcementBypassConfig) BypassEvaluator {
	m := &enforcementBypassMatcher{
		enableProbeBypass:   cfg.EnableProbeBypass,
		enableTrustedBypass: cfg.EnableTrustedBypass,
		exemptPrefixes:      make([]string, 0, len(cfg.ExemptPathPrefixes)),
		trustedCIDRs:        make([]*net.IPNet, 0, len(cfg.TrustedCIDRs)),
		trustedUserIDs:      make(map[string]struct{}, len(cfg.TrustedUserIDs)),
	}

	for _, prefix := range cfg.ExemptPathPrefixes {
		v := strings.TrimSpace(prefix)
		if v == "" {
			continue
		}
		m.exemptPrefixes = append(m.exemptPrefixes, strings.ToLower(v))
	}
	for _, cidr := range cfg.TrustedCIDRs {
		v := strings.TrimSpace(cidr)
		if v == "" {
			continue
		}
		_, network, err := net.ParseCIDR(v)
		if err != nil {
			continue
		}
		m.trustedCIDRs = append(m.trustedCIDRs, network)
	}
	for _, id := range cfg.TrustedUserIDs {
		v := strings.TrimSpace(id)
		if v == "" {
			continue
		}
		m.trustedUserIDs[v] = struct{}{}
	}

	if !m.enableProbeBypass && (!m.enableTrustedBypass || (len(m.trustedCIDRs) == 0 && len(m.trustedUserIDs) == 0)) {
		return nil
	}
	return m.Match
}

func (m *enforcementBypassMatcher) Match(r *http.Request) (bool, string) {
	if r == nil {
		return false, ""
	}
	if m.enableProbeBypass {
		path := strings.TrimSpace(strings.ToLower(r.URL.Path))
		switch path {
		case "/health/live", "/health/ready", "/metrics":
			return true, "internal_probe_path"
		}
		for _, prefix := range m.exemptPrefixes {
			if strings.HasPrefix(path, prefix) {
				return true, "exempt_path_prefix"
			}
		}
	}
	if !m.enableTrustedBypass {
		return false, ""
	}

	if ip := parseRequestIP(r); ip != nil {
		for _, network := range m.trustedCIDRs {
			if network.Contains(ip) {
				return true, "trusted_caller_cidr"
			}
		}
	}

	if len(m.trustedUserIDs) > 0 {
		userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if _, ok := m.trustedUserIDs[userID]; userID != "" && ok {
			return true, "trusted_caller_id"
		}
	}
	return false, ""
}

func parseRequestIP(r *http.Request) net.IP {
	if r == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil || host == "" {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if host == "" {
		return nil
	}
	return net.ParseIP(host)
}
