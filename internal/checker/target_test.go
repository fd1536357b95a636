package checker

import (
	"strings"
	"testing"

	"github.com/siteqa/siteqa/internal/domain/run"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "https://example.com"},
		{"  example.com/path ", "https://example.com/path"},
		{"http://example.com", "http://example.com"},
		{"https://example.com/a?b=c", "https://example.com/a?b=c"},
		{"example.com:8080/x", "https://example.com:8080/x"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestIsOAuthURL(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"https://accounts.google.com/o/oauth2/auth", true},
		{"https://github.com/login/oauth/authorize", true},
		{"https://github.com/acme/widgets", false},
		{"https://tenant.okta.com/app", true},
		{"https://example.com/oauth/authorize?client_id=1", true},
		{"https://example.com/login/google", true},
		{"https://example.com/login", false},
		{"https://example.com/blog/oauth-explained", false},
	}
	for _, tt := range tests {
		if got := IsOAuthURL(mustParse(t, tt.raw)); got != tt.want {
			t.Errorf("IsOAuthURL(%s): expected %v, got %v", tt.raw, tt.want, got)
		}
	}
}

func TestMobileSignalResult(t *testing.T) {
	tests := []struct {
		signal MobileSignal
		score  int
		status run.Status
	}{
		{MobileSignal{HasViewport: true, HasResponsiveCSS: true}, 100, run.StatusPass},
		{MobileSignal{HasViewport: true}, 70, run.StatusWarning},
		{MobileSignal{HasResponsiveCSS: true}, 50, run.StatusWarning},
		{MobileSignal{}, 20, run.StatusFail},
	}
	for _, tt := range tests {
		res := tt.signal.Result()
		if *res.Score != tt.score || res.Status != tt.status {
			t.Errorf("%+v: expected %d/%s, got %d/%s", tt.signal, tt.score, tt.status, *res.Score, res.Status)
		}
	}
}

func TestDetectResponsiveCSS(t *testing.T) {
	if !detectResponsiveCSS([]byte(`<style>@MEDIA (max-width: 600px) {}</style>`)) {
		t.Error("expected media query to be detected case-insensitively")
	}
	if detectResponsiveCSS([]byte(`<p>static table layout</p>`)) {
		t.Error("expected no responsive CSS")
	}
}

func TestJSErrorsFromBrowser(t *testing.T) {
	if got := JSErrorsFromBrowser(nil).Status; got != run.StatusPass {
		t.Errorf("expected pass with no errors, got %s", got)
	}
	if got := JSErrorsFromBrowser([]string{"a", "b", "c"}).Status; got != run.StatusWarning {
		t.Errorf("expected warning with 3 errors, got %s", got)
	}

	many := strings.Split(strings.Repeat("x,", 40), ",")[:40]
	res := JSErrorsFromBrowser(many)
	if res.Status != run.StatusFail {
		t.Errorf("expected fail with 40 errors, got %s", res.Status)
	}
	if res.ErrorCount != 40 || len(res.Errors) != 30 {
		t.Errorf("expected count 40 with 30 listed, got %d/%d", res.ErrorCount, len(res.Errors))
	}
	if JSErrorsPlaceholder().Score != nil {
		t.Error("expected placeholder to carry no score")
	}
}
