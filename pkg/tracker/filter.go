package tracker

import (
	"net/url"
	"slices"
	"strings"
)

type EventFilters struct {
	// Include lists the event types to keep. Empty keeps every type.
	Include []string
	Exclude []string
}

func (f EventFilters) allows(eventType string) bool {
	if len(f.Include) > 0 && !slices.Contains(f.Include, eventType) {
		return false
	}
	return !slices.Contains(f.Exclude, eventType)
}

// domainAllowed checks the host of a "url" payload field against the
// allow and block lists. Payloads without a parseable url pass.
func (t *Tracker) domainAllowed(payload map[string]any) bool {
	if len(t.cfg.AllowedDomains) == 0 && len(t.cfg.BlockedDomains) == 0 {
		return true
	}
	raw, ok := payload["url"].(string)
	if !ok || raw == "" {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return true
	}
	host := strings.ToLower(u.Hostname())

	for _, d := range t.cfg.BlockedDomains {
		if matchDomain(host, d) {
			return false
		}
	}
	if len(t.cfg.AllowedDomains) == 0 {
		return true
	}
	for _, d := range t.cfg.AllowedDomains {
		if matchDomain(host, d) {
			return true
		}
	}
	return false
}

// matchDomain reports whether host is domain or one of its subdomains.
func matchDomain(host, domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	return host == domain || strings.HasSuffix(host, "."+domain)
}
