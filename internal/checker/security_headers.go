package checker

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/siteqa/siteqa/internal/domain/run"
)

// securityHeaderSpec defines the expectation for a single response header
type securityHeaderSpec struct {
	Name      string
	Severity  string // "error", "warning", "info"
	Deduction int
	Desc      string
	// CheckFunc lists weaknesses of a present value. Weaknesses are reported
	// but never deducted.
	CheckFunc func(value string) []string
}

// securityHeaderSpecs lists the checked headers in report order
var securityHeaderSpecs = []securityHeaderSpec{
	{Name: "Strict-Transport-Security", Severity: SeverityError, Deduction: 20, Desc: "HSTS, enforces HTTPS connections", CheckFunc: checkHSTS},
	{Name: "Content-Security-Policy", Severity: SeverityError, Deduction: 20, Desc: "CSP, prevents XSS attacks", CheckFunc: checkCSP},
	{Name: "X-Frame-Options", Severity: SeverityWarning, Deduction: 10, Desc: "Prevents clickjacking attacks", CheckFunc: checkXFrameOptions},
	{Name: "X-Content-Type-Options", Severity: SeverityWarning, Deduction: 10, Desc: "Prevents MIME type sniffing", CheckFunc: checkXContentTypeOptions},
	{Name: "Referrer-Policy", Severity: SeverityInfo, Deduction: 3, Desc: "Controls referrer information", CheckFunc: checkReferrerPolicy},
	{Name: "Permissions-Policy", Severity: SeverityInfo, Deduction: 3, Desc: "Controls browser feature access", CheckFunc: checkPermissionsPolicy},
}

// versionedServers are Server header prefixes that leak a version number
var versionedServers = []string{"apache/", "nginx/", "iis/"}

const securityHeadersTimeout = 10 * time.Second

// SecurityHeadersProbe inspects the response headers of a HEAD request.
type SecurityHeadersProbe struct {
	fetcher *Fetcher
}

func NewSecurityHeadersProbe(f *Fetcher) *SecurityHeadersProbe {
	return &SecurityHeadersProbe{fetcher: f}
}

func (p *SecurityHeadersProbe) Name() run.Kind { return run.KindSecurityHeaders }

func (p *SecurityHeadersProbe) Check(ctx context.Context, target string) (run.CheckResult, error) {
	resp, err := p.fetcher.Do(ctx, http.MethodHead, target, securityHeadersTimeout)
	if err != nil {
		return run.NewProbeError(run.KindSecurityHeaders, err), nil
	}
	return AnalyzeSecurityHeaders(resp.Header, resp.Cookies), nil
}

// AnalyzeSecurityHeaders scores headers from 100: missing error-severity
// headers cost 20, warning 10, info 3, and cookies without Secure or
// HttpOnly cost 5 each. Permissive CORS is reported without a deduction.
func AnalyzeSecurityHeaders(headers http.Header, cookies []*http.Cookie) run.ProbeResult {
	f := newFindings(run.KindSecurityHeaders, 100)
	present := make(map[string]string)
	missing := []string{}

	for _, spec := range securityHeaderSpecs {
		value := headers.Get(spec.Name)
		if value == "" {
			missing = append(missing, strings.ToLower(spec.Name))
			f.deduct(spec.Deduction, spec.Severity, "Missing %s: %s", spec.Name, spec.Desc)
			continue
		}
		present[strings.ToLower(spec.Name)] = value
		for _, weakness := range spec.CheckFunc(value) {
			f.issue(SeverityInfo, "%s: %s", spec.Name, weakness)
		}
	}

	findings := AnalyzeCookies(cookies)
	if findings.MissingSecure > 0 {
		f.deduct(5, SeverityWarning, "Cookie(s) missing Secure flag")
	}
	if findings.MissingHTTPOnly > 0 {
		f.deduct(5, SeverityWarning, "Cookie(s) missing HttpOnly flag")
	}

	if server := headers.Get("Server"); server != "" {
		lower := strings.ToLower(server)
		for _, prefix := range versionedServers {
			if strings.Contains(lower, prefix) {
				f.issue(SeverityInfo, "Server header reveals version info: %s", server)
				break
			}
		}
	}
	checkDeprecatedHeaders(headers, f)
	cors := AnalyzeCORS(headers)
	if cors != nil {
		for _, issue := range cors.Issues {
			f.issue(SeverityInfo, "%s", issue)
		}
	}

	f.set("present", present)
	f.set("missing", missing)
	f.set("cache_policy", AnalyzeCachePolicy(headers))
	f.set("cors", cors)
	result := f.result(80, 50)
	result.Details["grade"] = calculateGrade(*result.Score)
	return result
}

// checkHSTS validates the Strict-Transport-Security header
func checkHSTS(value string) []string {
	issues := []string{}
	value = strings.ToLower(value)

	if !strings.Contains(value, "max-age=") {
		issues = append(issues, "Missing 'max-age' directive")
	} else if strings.Contains(value, "max-age=0") {
		issues = append(issues, "max-age is set to 0 (HSTS disabled)")
	} else if !strings.Contains(value, "max-age=31536000") && !strings.Contains(value, "max-age=63072000") {
		issues = append(issues, "Consider increasing max-age to at least 31536000 (1 year)")
	}

	if !strings.Contains(value, "includesubdomains") {
		issues = append(issues, "Missing 'includeSubDomains' directive")
	}
	return issues
}

// checkCSP validates the Content-Security-Policy header
func checkCSP(value string) []string {
	issues := []string{}
	value = strings.ToLower(value)
	directives := parseCSPDirectives(value)

	if strings.Contains(value, "'unsafe-inline'") {
		issues = append(issues, "Contains 'unsafe-inline' which weakens CSP protection")
	}
	if strings.Contains(value, "'unsafe-eval'") {
		issues = append(issues, "Contains 'unsafe-eval' which allows eval() and similar functions")
	}
	if _, ok := directives["default-src"]; !ok {
		issues = append(issues, "Missing 'default-src' directive (recommended fallback)")
	}

	for _, token := range directives["script-src"] {
		switch {
		case token == "data:":
			issues = append(issues, "Script sources allow data: URIs which can enable CSP bypasses")
		case token == "*":
			issues = append(issues, "Script sources allow any origin (*)")
		case strings.HasPrefix(token, "http:"):
			issues = append(issues, "Script sources allow insecure http scheme")
		}
	}
	return issues
}

func parseCSPDirectives(value string) map[string][]string {
	result := make(map[string][]string)
	for _, part := range strings.Split(value, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		result[fields[0]] = fields[1:]
	}
	return result
}

// checkXFrameOptions validates the X-Frame-Options header
func checkXFrameOptions(value string) []string {
	value = strings.ToUpper(strings.TrimSpace(value))
	switch {
	case value == "DENY" || value == "SAMEORIGIN":
		return nil
	case strings.HasPrefix(value, "ALLOW-FROM"):
		return []string{"ALLOW-FROM is deprecated; use CSP frame-ancestors instead"}
	default:
		return []string{"Invalid X-Frame-Options value"}
	}
}

// checkXContentTypeOptions validates the X-Content-Type-Options header
func checkXContentTypeOptions(value string) []string {
	if strings.EqualFold(strings.TrimSpace(value), "nosniff") {
		return nil
	}
	return []string{"Invalid value, should be 'nosniff'"}
}

// checkReferrerPolicy validates the Referrer-Policy header
func checkReferrerPolicy(value string) []string {
	value = strings.ToLower(value)
	if strings.Contains(value, "unsafe-url") {
		return []string{"Policy may leak full URLs in the referrer"}
	}
	for _, policy := range []string{"no-referrer", "strict-origin", "same-origin"} {
		if strings.Contains(value, policy) {
			return nil
		}
	}
	return []string{"Unusual or weak referrer policy"}
}

// checkPermissionsPolicy validates the Permissions-Policy header
func checkPermissionsPolicy(value string) []string {
	if len(value) < 10 {
		return []string{"Permissions-Policy seems minimal, consider adding more restrictions"}
	}
	return nil
}

// checkDeprecatedHeaders reports deprecated security headers
func checkDeprecatedHeaders(headers http.Header, f *findings) {
	if xss := headers.Get("X-XSS-Protection"); xss != "" && xss != "0" {
		f.issue(SeverityInfo, "X-XSS-Protection is deprecated; set it to '0' or remove it")
	}
	if headers.Get("Expect-CT") != "" {
		f.issue(SeverityInfo, "Expect-CT is deprecated; remove this header")
	}
	if headers.Get("Public-Key-Pins") != "" {
		f.issue(SeverityInfo, "Public-Key-Pins (HPKP) is deprecated; remove this header")
	}
}

// calculateGrade converts a 0-100 score to a letter grade
func calculateGrade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	case score >= 50:
		return "E"
	default:
		return "F"
	}
}
