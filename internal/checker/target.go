package checker

import (
	"net/url"
	"strings"
)

// NormalizeURL adds https:// to a bare host and trims whitespace. It does not
// validate the result; that is the guard's job.
//   - example.com          -> https://example.com
//   - http://example.com   -> http://example.com
//   - example.com:8080/x   -> https://example.com:8080/x
func NormalizeURL(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	parsed, err := url.Parse(target)
	// A scheme containing dots is really a host ("example.com:8080").
	if err != nil || parsed.Scheme == "" || strings.Contains(parsed.Scheme, ".") || (parsed.Host == "" && isPortLike(parsed.Opaque)) {
		return "https://" + target
	}
	return target
}

func isPortLike(s string) bool {
	head := s
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		head = s[:i]
	}
	if head == "" {
		return false
	}
	for _, r := range head {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// stripFragment returns u without its fragment; the query is kept.
func stripFragment(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// sameOrigin reports whether two URLs share scheme-independent host and port.
func sameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Host, b.Host)
}

// siteRoot returns scheme://host of u.
func siteRoot(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
