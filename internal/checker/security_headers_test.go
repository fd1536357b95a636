package checker

import (
	"net/http"
	"testing"

	"github.com/siteqa/siteqa/internal/domain/run"
)

func TestAnalyzeSecurityHeaders_AllPresent(t *testing.T) {
	headers := http.Header{}
	headers.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	headers.Set("Content-Security-Policy", "default-src 'self'; script-src 'self'")
	headers.Set("X-Frame-Options", "DENY")
	headers.Set("X-Content-Type-Options", "nosniff")
	headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	headers.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

	result := AnalyzeSecurityHeaders(headers, nil)

	if *result.Score != 100 {
		t.Errorf("Expected score 100 with all headers present, got %d", *result.Score)
	}
	if result.Status != run.StatusPass {
		t.Errorf("Expected pass, got %s", result.Status)
	}
	if result.Details["grade"] != "A" {
		t.Errorf("Expected grade A, got %v", result.Details["grade"])
	}
	if missing := result.Details["missing"].([]string); len(missing) != 0 {
		t.Errorf("Expected no missing headers, got %v", missing)
	}
}

func TestAnalyzeSecurityHeaders_AllMissing(t *testing.T) {
	result := AnalyzeSecurityHeaders(http.Header{}, nil)

	if *result.Score != 34 {
		t.Errorf("Expected score 34 with no headers, got %d", *result.Score)
	}
	if result.Status != run.StatusFail {
		t.Errorf("Expected fail, got %s", result.Status)
	}
	if result.Details["grade"] != "F" {
		t.Errorf("Expected grade F, got %v", result.Details["grade"])
	}
	if missing := result.Details["missing"].([]string); len(missing) != 6 {
		t.Errorf("Expected 6 missing headers, got %d", len(missing))
	}
	if result.Message != "4 issue(s) found" {
		t.Errorf("Expected 4 issues (info counted out), got %q", result.Message)
	}
}

func TestAnalyzeSecurityHeaders_InsecureCookies(t *testing.T) {
	headers := http.Header{}
	headers.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	headers.Set("Content-Security-Policy", "default-src 'self'")
	headers.Set("X-Frame-Options", "SAMEORIGIN")
	headers.Set("X-Content-Type-Options", "nosniff")
	headers.Set("Referrer-Policy", "no-referrer")
	headers.Set("Permissions-Policy", "geolocation=()")

	cookies := []*http.Cookie{{Name: "session", Value: "x"}}
	result := AnalyzeSecurityHeaders(headers, cookies)

	if *result.Score != 90 {
		t.Errorf("Expected score 90 with one insecure cookie, got %d", *result.Score)
	}
}

func TestAnalyzeSecurityHeaders_WeaknessesDoNotDeduct(t *testing.T) {
	headers := http.Header{}
	headers.Set("Strict-Transport-Security", "max-age=0")
	headers.Set("Content-Security-Policy", "script-src * 'unsafe-inline'")
	headers.Set("X-Frame-Options", "ALLOW-FROM https://example.com")
	headers.Set("X-Content-Type-Options", "sniff")
	headers.Set("Referrer-Policy", "unsafe-url")
	headers.Set("Permissions-Policy", "a=()")
	headers.Set("Server", "nginx/1.25.3")
	headers.Set("X-XSS-Protection", "1; mode=block")

	result := AnalyzeSecurityHeaders(headers, nil)

	if *result.Score != 100 {
		t.Errorf("Expected weaknesses to be informational only, got score %d", *result.Score)
	}
	if len(result.Issues) == 0 {
		t.Fatal("Expected informational issues to be reported")
	}
	for _, is := range result.Issues {
		if is.Severity != SeverityInfo {
			t.Errorf("Expected info severity, got %s for %q", is.Severity, is.Message)
		}
	}
}

func TestCheckHSTS(t *testing.T) {
	tests := []struct {
		value  string
		issues int
	}{
		{"max-age=31536000; includeSubDomains; preload", 0},
		{"max-age=31536000", 1},
		{"max-age=0; includeSubDomains", 1},
		{"includeSubDomains", 1},
		{"max-age=300", 2},
	}
	for _, tt := range tests {
		if got := checkHSTS(tt.value); len(got) != tt.issues {
			t.Errorf("checkHSTS(%q): expected %d issues, got %d: %v", tt.value, tt.issues, len(got), got)
		}
	}
}

func TestCheckCSP(t *testing.T) {
	tests := []struct {
		value  string
		issues int
	}{
		{"default-src 'self'", 0},
		{"default-src 'self'; script-src 'self' 'unsafe-inline'", 1},
		{"default-src 'self'; script-src 'unsafe-eval'", 1},
		{"script-src *", 2},
		{"default-src 'self'; script-src data: http://cdn.example.com", 2},
	}
	for _, tt := range tests {
		if got := checkCSP(tt.value); len(got) != tt.issues {
			t.Errorf("checkCSP(%q): expected %d issues, got %d: %v", tt.value, tt.issues, len(got), got)
		}
	}
}

func TestCheckXFrameOptions(t *testing.T) {
	tests := map[string]int{
		"DENY":                           0,
		"sameorigin":                     0,
		"ALLOW-FROM https://example.com": 1,
		"bogus":                          1,
	}
	for value, want := range tests {
		if got := checkXFrameOptions(value); len(got) != want {
			t.Errorf("checkXFrameOptions(%q): expected %d issues, got %d", value, want, len(got))
		}
	}
}

func TestCheckReferrerPolicy(t *testing.T) {
	if got := checkReferrerPolicy("strict-origin-when-cross-origin"); len(got) != 0 {
		t.Errorf("Expected no issues, got %v", got)
	}
	if got := checkReferrerPolicy("unsafe-url"); len(got) != 1 {
		t.Errorf("Expected unsafe-url to be flagged, got %v", got)
	}
}

func TestCalculateGrade(t *testing.T) {
	tests := map[int]string{100: "A", 90: "A", 85: "B", 72: "C", 60: "D", 55: "E", 10: "F"}
	for score, want := range tests {
		if got := calculateGrade(score); got != want {
			t.Errorf("calculateGrade(%d): expected %s, got %s", score, want, got)
		}
	}
}

func TestAnalyzeCachePolicy(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		notes   int
		private bool
	}{
		{name: "none", headers: nil, notes: 1},
		{name: "max-age", headers: map[string]string{"Cache-Control": "public, max-age=3600"}, notes: 0},
		{name: "no directives", headers: map[string]string{"Cache-Control": "public"}, notes: 1},
		{name: "private", headers: map[string]string{"Cache-Control": "private"}, notes: 0, private: true},
		{name: "expires only", headers: map[string]string{"Expires": "Thu, 01 Dec 2030 16:00:00 GMT"}, notes: 1},
		{name: "legacy pragma", headers: map[string]string{"Cache-Control": "no-cache", "Pragma": "no-cache"}, notes: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			policy := AnalyzeCachePolicy(h)
			if len(policy.Notes) != tt.notes {
				t.Errorf("expected %d notes, got %v", tt.notes, policy.Notes)
			}
			if policy.Private != tt.private {
				t.Errorf("expected private=%v, got %v", tt.private, policy.Private)
			}
		})
	}
}

func TestAnalyzeSecurityHeaders_ReportsCachePolicy(t *testing.T) {
	headers := http.Header{}
	headers.Set("Cache-Control", "max-age=60")

	result := AnalyzeSecurityHeaders(headers, nil)
	policy, ok := result.Details["cache_policy"].(CachePolicy)
	if !ok {
		t.Fatalf("expected cache_policy detail, got %T", result.Details["cache_policy"])
	}
	if policy.CacheControl != "max-age=60" {
		t.Errorf("expected Cache-Control value, got %q", policy.CacheControl)
	}
	if *result.Score != 34 {
		t.Errorf("expected cache policy not to affect the score, got %d", *result.Score)
	}
}

func TestAnalyzeCORS(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    []string
	}{
		{"no cors", map[string]string{}, nil},
		{"wildcard", map[string]string{"Access-Control-Allow-Origin": "*"}, []string{"CORS allows any origin (*)"}},
		{
			"wildcard with credentials",
			map[string]string{"Access-Control-Allow-Origin": "*", "Access-Control-Allow-Credentials": "true"},
			[]string{"CORS allows any origin with credentials"},
		},
		{"null origin", map[string]string{"Access-Control-Allow-Origin": "null", "Vary": "Origin"}, []string{"CORS trusts the null origin"}},
		{
			"per-origin without vary",
			map[string]string{"Access-Control-Allow-Origin": "https://app.example.com"},
			[]string{"Vary: Origin missing on a per-origin CORS response"},
		},
		{
			"per-origin with vary",
			map[string]string{"Access-Control-Allow-Origin": "https://app.example.com", "Vary": "Accept-Encoding, Origin"},
			[]string{},
		},
		{
			"wildcard headers",
			map[string]string{"Access-Control-Allow-Origin": "https://app.example.com", "Vary": "Origin", "Access-Control-Allow-Headers": "*", "Access-Control-Expose-Headers": "*"},
			[]string{"Access-Control-Allow-Headers allows any header (*)", "Access-Control-Expose-Headers exposes all headers (*)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			report := AnalyzeCORS(h)
			if tt.want == nil {
				if report != nil {
					t.Errorf("expected no report, got %+v", report)
				}
				return
			}
			if report == nil {
				t.Fatal("expected a report")
			}
			if len(report.Issues) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, report.Issues)
			}
			for i := range tt.want {
				if report.Issues[i] != tt.want[i] {
					t.Errorf("expected %q, got %q", tt.want[i], report.Issues[i])
				}
			}
		})
	}
}

func TestAnalyzeSecurityHeaders_CORSIsInformational(t *testing.T) {
	headers := http.Header{}
	headers.Set("Access-Control-Allow-Origin", "*")
	headers.Set("Access-Control-Allow-Credentials", "true")

	result := AnalyzeSecurityHeaders(headers, nil)

	if *result.Score != 34 {
		t.Errorf("expected CORS findings not to affect the score, got %d", *result.Score)
	}
	report, ok := result.Details["cors"].(*CORSReport)
	if !ok || report == nil {
		t.Fatalf("expected cors detail, got %T", result.Details["cors"])
	}
	found := false
	for _, is := range result.Issues {
		if is.Message == "CORS allows any origin with credentials" {
			found = is.Severity == SeverityInfo
		}
	}
	if !found {
		t.Errorf("expected an info issue for wildcard credentials, got %v", result.Issues)
	}
}
