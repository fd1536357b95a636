package checker

import (
	"net/http"
	"testing"

	"github.com/siteqa/siteqa/internal/domain/run"
)

func TestAnalyzeCookies(t *testing.T) {
	cookies := []*http.Cookie{
		{Name: "session", Value: "abc123"},
		{Name: "prefs", Value: "dark", Secure: true, SameSite: http.SameSiteLaxMode},
	}

	summary := AnalyzeCookies(cookies)
	if len(summary.Cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(summary.Cookies))
	}
	if summary.MissingSecure != 1 {
		t.Errorf("expected 1 cookie missing Secure, got %d", summary.MissingSecure)
	}
	if summary.MissingHTTPOnly != 2 {
		t.Errorf("expected 2 cookies missing HttpOnly, got %d", summary.MissingHTTPOnly)
	}
	if summary.Cookies[0].SameSite != "not set" || summary.Cookies[1].SameSite != "Lax" {
		t.Errorf("unexpected SameSite values: %+v", summary.Cookies)
	}
}

func TestAnalyzeCookies_NoSetCookie(t *testing.T) {
	if summary := AnalyzeCookies(nil); len(summary.Cookies) != 0 {
		t.Fatalf("expected no cookies, got %d", len(summary.Cookies))
	}
}

func TestAnalyzeCookieConsent(t *testing.T) {
	tests := []struct {
		name    string
		markup  string
		cookies []*http.Cookie
		score   int
	}{
		{
			name:    "banner and privacy link",
			markup:  `<div id="cookie-banner">We use cookies</div><a href="/privacy">Privacy</a>`,
			cookies: []*http.Cookie{{Name: "sid", Secure: true}},
			score:   100,
		},
		{
			name:    "cookies without consent",
			markup:  `<p>Hello</p><a href="/privacy-policy">Legal</a>`,
			cookies: []*http.Cookie{{Name: "sid"}},
			score:   75,
		},
		{
			name:   "no cookies and no privacy link",
			markup: `<p>Hello</p>`,
			score:  90,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFindings(run.KindCookies, 100)
			analyzeCookieConsent(mustDoc(t, tt.markup), tt.cookies, "https://example.com", f)
			if f.score != tt.score {
				t.Errorf("expected score %d, got %d (issues %v)", tt.score, f.score, f.issues)
			}
		})
	}
}

func TestAnalyzeCookieConsent_ThirdPartyScripts(t *testing.T) {
	markup := `<a href="/privacy">p</a>`
	for _, host := range []string{"a", "b", "c", "d", "e", "f"} {
		markup += `<script src="https://` + host + `.cdn.net/x.js"></script>`
	}
	markup += `<script src="https://example.com/own.js"></script><script src="/local.js"></script>`

	f := newFindings(run.KindCookies, 100)
	analyzeCookieConsent(mustDoc(t, markup), nil, "https://example.com", f)
	if f.details["third_party_scripts"] != 6 {
		t.Errorf("expected 6 third-party scripts, got %v", f.details["third_party_scripts"])
	}
	if !hasIssue(f, "third-party scripts") {
		t.Error("expected third-party script notice")
	}
}
