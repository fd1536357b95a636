package checker

import (
	"net/url"
	"strings"
)

// oauthDomains are identity-provider hosts that reject direct navigation.
// Entries carrying a path are matched against the host the same way.
var oauthDomains = []string{
	"accounts.google.com",
	"oauth2.googleapis.com",
	"github.com/login",
	"login.microsoftonline.com",
	"login.live.com",
	"appleid.apple.com",
	"facebook.com/dialog",
	"twitter.com/i/oauth",
	"linkedin.com/oauth",
	"auth0.com",
	"okta.com",
	"cognito-idp",
}

// oauthPaths are same-site auth callback prefixes.
var oauthPaths = []string{
	"/signin/v2/",
	"/lifecycle/flows/",
	"/login/google",
	"/login/github",
	"/login/facebook",
	"/oauth/authorize",
	"/oauth2/authorize",
	"/connect/authorize",
}

// IsOAuthURL reports whether u belongs to an OAuth/SSO flow. Such URLs are
// neither crawled nor probed.
func IsOAuthURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.ToLower(u.Host)
	hostPath := host + strings.ToLower(u.Path)
	for _, d := range oauthDomains {
		if strings.Contains(host, d) || strings.HasPrefix(hostPath, d) || strings.Contains(hostPath, "."+d) {
			return true
		}
	}
	path := strings.ToLower(u.Path)
	for _, p := range oauthPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
