package run

// Kind identifies a check within a test run. It doubles as the key of the
// run's ordered result map.
type Kind string

const (
	KindSpeed           Kind = "speed"
	KindSSL             Kind = "ssl"
	KindBrokenLinks     Kind = "broken_links"
	KindImages          Kind = "images"
	KindMobile          Kind = "mobile"
	KindJSErrors        Kind = "js_errors"
	KindSEO             Kind = "seo"
	KindAccessibility   Kind = "accessibility"
	KindSecurityHeaders Kind = "security_headers"
	KindWebVitals       Kind = "core_web_vitals"
	KindCookies         Kind = "cookies_gdpr"
	KindHTMLValidation  Kind = "html_validation"
	KindContent         Kind = "content_quality"
	KindPWA             Kind = "pwa"
	KindFunctionality   Kind = "functionality"
	KindLogin           Kind = "login"
	KindPostLogin       Kind = "post_login"
)

// StaticProbeKinds lists the checks served by ProbeResult.
var StaticProbeKinds = []Kind{
	KindSEO,
	KindAccessibility,
	KindSecurityHeaders,
	KindCookies,
	KindHTMLValidation,
	KindContent,
	KindPWA,
	KindFunctionality,
}

// Status is the outcome class of a single check.
type Status string

const (
	StatusPass    Status = "pass"
	StatusWarning Status = "warning"
	StatusFail    Status = "fail"
	StatusSkip    Status = "skip"
	StatusError   Status = "error"
)

// Header is the minimal shape shared by every check result.
type Header struct {
	Status  Status `json:"status" yaml:"status"`
	Score   *int   `json:"score" yaml:"score"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Base returns the header itself so embedding types satisfy CheckResult.
func (h Header) Base() Header {
	return h
}

// CheckResult is implemented by every per-kind result variant. Consumers that
// only need status and score use Base; kind-specific fields are reached with a
// type switch.
type CheckResult interface {
	Kind() Kind
	Base() Header
}

// ScoreOf returns a pointer to n.
func ScoreOf(n int) *int {
	return &n
}

// StatusFromScore maps a 0-100 score onto pass/warning/fail using the given
// lower bounds.
func StatusFromScore(score, passAt, warnAt int) Status {
	switch {
	case score >= passAt:
		return StatusPass
	case score >= warnAt:
		return StatusWarning
	default:
		return StatusFail
	}
}

// ClampScore bounds a computed score to 0..100.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Issue is a single finding reported by a static probe.
type Issue struct {
	Severity string `json:"severity" yaml:"severity"`
	Message  string `json:"message" yaml:"message"`
}

// LinkFinding describes a link or image that failed its integrity probe.
type LinkFinding struct {
	URL        string `json:"url" yaml:"url"`
	FoundOn    string `json:"found_on" yaml:"found_on"`
	StatusCode *int   `json:"status_code" yaml:"status_code"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// SpeedResult reports page load timing.
type SpeedResult struct {
	Header     `yaml:",inline"`
	LoadTimeMs int64   `json:"load_time_ms" yaml:"load_time_ms"`
	TTFBMs     int64   `json:"ttfb_ms" yaml:"ttfb_ms"`
	PageSizeKB float64 `json:"page_size_kb" yaml:"page_size_kb"`
	HTTPStatus int     `json:"http_status" yaml:"http_status"`
}

func (SpeedResult) Kind() Kind { return KindSpeed }

// TLSResult reports certificate validity.
type TLSResult struct {
	Header        `yaml:",inline"`
	Valid         bool   `json:"valid" yaml:"valid"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty" yaml:"expires_in_days,omitempty"`
	Issuer        string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Expires       string `json:"expires,omitempty" yaml:"expires,omitempty"`
	TLSVersion    string `json:"tls_version,omitempty" yaml:"tls_version,omitempty"`
	CipherSuite   string `json:"cipher_suite,omitempty" yaml:"cipher_suite,omitempty"`
	// Weaknesses are protocol and certificate findings reported alongside a
	// valid certificate. They do not affect the score.
	Weaknesses []string `json:"weaknesses,omitempty" yaml:"weaknesses,omitempty"`
}

func (TLSResult) Kind() Kind { return KindSSL }

// BrokenLinksResult is derived from the crawl's link integrity pass.
type BrokenLinksResult struct {
	Header       `yaml:",inline"`
	TotalChecked int           `json:"total_checked" yaml:"total_checked"`
	BrokenCount  int           `json:"broken_count" yaml:"broken_count"`
	PagesCrawled int           `json:"pages_crawled" yaml:"pages_crawled"`
	Links        []LinkFinding `json:"broken_links" yaml:"broken_links"`
}

func (BrokenLinksResult) Kind() Kind { return KindBrokenLinks }

// MissingImagesResult is derived from the crawl's image integrity pass.
type MissingImagesResult struct {
	Header       `yaml:",inline"`
	TotalChecked int           `json:"total_checked" yaml:"total_checked"`
	MissingCount int           `json:"missing_count" yaml:"missing_count"`
	Images       []LinkFinding `json:"missing_images" yaml:"missing_images"`
}

func (MissingImagesResult) Kind() Kind { return KindImages }

// MobileResult reports the responsive-design signal of the first crawled page.
type MobileResult struct {
	Header           `yaml:",inline"`
	HasViewport      bool     `json:"has_viewport" yaml:"has_viewport"`
	HasResponsiveCSS bool     `json:"has_responsive_css" yaml:"has_responsive_css"`
	Issues           []string `json:"issues,omitempty" yaml:"issues,omitempty"`
}

func (MobileResult) Kind() Kind { return KindMobile }

// JSErrorsResult lists script errors captured in a browser session.
type JSErrorsResult struct {
	Header     `yaml:",inline"`
	ErrorCount int      `json:"error_count" yaml:"error_count"`
	Errors     []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func (JSErrorsResult) Kind() Kind { return KindJSErrors }

// ProbeResult is produced by the stateless static-analysis probes.
type ProbeResult struct {
	Header  `yaml:",inline"`
	Check   Kind           `json:"check" yaml:"check"`
	Issues  []Issue        `json:"issues,omitempty" yaml:"issues,omitempty"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	Error   string         `json:"error,omitempty" yaml:"error,omitempty"`
}

func (p ProbeResult) Kind() Kind { return p.Check }

// NewProbeError coerces a failed probe into an error-status result.
func NewProbeError(kind Kind, err error) ProbeResult {
	msg := "probe failed"
	if err != nil {
		msg = err.Error()
	}
	return ProbeResult{
		Header: Header{Status: StatusError, Score: ScoreOf(0), Message: msg},
		Check:  kind,
		Error:  msg,
	}
}

// WebVitalsResult reports Core Web Vitals measured in a real browser.
type WebVitalsResult struct {
	Header `yaml:",inline"`
	LCPMs  *float64 `json:"lcp_ms" yaml:"lcp_ms"`
	CLS    *float64 `json:"cls" yaml:"cls"`
	TBTMs  *float64 `json:"tbt_ms" yaml:"tbt_ms"`
	FCPMs  *float64 `json:"fcp_ms" yaml:"fcp_ms"`
	TTFBMs *float64 `json:"ttfb_ms" yaml:"ttfb_ms"`
	Issues []Issue  `json:"issues,omitempty" yaml:"issues,omitempty"`
}

func (WebVitalsResult) Kind() Kind { return KindWebVitals }

// LoginResult records the login judgment.
type LoginResult struct {
	Header   `yaml:",inline"`
	Success  bool   `json:"success" yaml:"success"`
	Method   string `json:"method" yaml:"method"`
	LoginURL string `json:"login_url" yaml:"login_url"`
	FinalURL string `json:"final_url,omitempty" yaml:"final_url,omitempty"`
}

func (LoginResult) Kind() Kind { return KindLogin }

// PostLoginResult is the exploration report of an authenticated session.
type PostLoginResult struct {
	Header       `yaml:",inline"`
	Tally        ExplorationTally `json:"summary" yaml:"summary"`
	Actions      []UIActionResult `json:"actions" yaml:"actions"`
	JSErrors     []string         `json:"js_errors,omitempty" yaml:"js_errors,omitempty"`
	PagesVisited []string         `json:"pages_visited,omitempty" yaml:"pages_visited,omitempty"`
}

func (PostLoginResult) Kind() Kind { return KindPostLogin }
