package checker

import (
	"net/http"
	"strings"
)

// CachePolicy summarizes the caching headers of a response. It is reported
// alongside the security headers and never affects a score.
type CachePolicy struct {
	CacheControl string   `json:"cache_control,omitempty" yaml:"cache_control,omitempty"`
	Expires      string   `json:"expires,omitempty" yaml:"expires,omitempty"`
	Pragma       string   `json:"pragma,omitempty" yaml:"pragma,omitempty"`
	Private      bool     `json:"private" yaml:"private"`
	Notes        []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// AnalyzeCachePolicy extracts cache headers and notes obvious gaps.
func AnalyzeCachePolicy(h http.Header) CachePolicy {
	policy := CachePolicy{
		CacheControl: h.Get("Cache-Control"),
		Expires:      h.Get("Expires"),
		Pragma:       h.Get("Pragma"),
	}
	cc := strings.ToLower(policy.CacheControl)
	policy.Private = strings.Contains(cc, "private") || strings.Contains(cc, "no-store")

	switch {
	case policy.CacheControl == "" && policy.Expires == "":
		policy.Notes = append(policy.Notes, "No caching headers (Cache-Control/Expires) present")
	case policy.CacheControl == "":
		policy.Notes = append(policy.Notes, "Cache-Control header missing")
	case !strings.Contains(cc, "max-age") && !strings.Contains(cc, "no-cache") && !policy.Private:
		policy.Notes = append(policy.Notes, "Cache-Control lacks explicit max-age/no-cache directives")
	}
	if strings.EqualFold(policy.Pragma, "no-cache") {
		policy.Notes = append(policy.Notes, "Pragma: no-cache detected (legacy caching directive)")
	}
	return policy
}
