package checker

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteqa/siteqa/internal/domain/run"
)

// CookieInfo describes one cookie set by the page.
type CookieInfo struct {
	Name     string `json:"name"`
	Domain   string `json:"domain,omitempty"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httponly"`
	SameSite string `json:"samesite"`
}

// CookieSummary aggregates Secure/HttpOnly flags across cookies.
type CookieSummary struct {
	Cookies         []CookieInfo
	MissingSecure   int
	MissingHTTPOnly int
}

// AnalyzeCookies inspects cookies for missing Secure/HttpOnly flags.
func AnalyzeCookies(cookies []*http.Cookie) CookieSummary {
	var summary CookieSummary
	for _, c := range cookies {
		info := CookieInfo{
			Name:     c.Name,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
			SameSite: sameSiteString(c.SameSite),
		}
		if !c.Secure {
			summary.MissingSecure++
		}
		if !c.HttpOnly {
			summary.MissingHTTPOnly++
		}
		summary.Cookies = append(summary.Cookies, info)
	}
	return summary
}

func sameSiteString(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return "not set"
	}
}

var consentKeywords = []string{
	"cookie", "consent", "gdpr", "we use cookies", "accept cookies",
	"privacy", "cookie policy", "cookie notice", "cookie banner",
}

var consentAttrPattern = regexp.MustCompile(`(?i)cookie|consent|gdpr`)

// CookiesProbe checks cookie flags and GDPR consent signals.
type CookiesProbe struct {
	fetcher *Fetcher
}

func NewCookiesProbe(f *Fetcher) *CookiesProbe { return &CookiesProbe{fetcher: f} }

func (p *CookiesProbe) Name() run.Kind { return run.KindCookies }

func (p *CookiesProbe) Check(ctx context.Context, target string) (run.CheckResult, error) {
	doc, resp, err := p.fetcher.Document(ctx, target, pageFetchTimeout)
	if err != nil {
		return run.NewProbeError(run.KindCookies, err), nil
	}
	f := newFindings(run.KindCookies, 100)
	analyzeCookieConsent(doc, resp.Cookies, target, f)
	return f.result(80, 50), nil
}

func analyzeCookieConsent(doc *goquery.Document, cookies []*http.Cookie, target string, f *findings) {
	summary := AnalyzeCookies(cookies)
	for _, c := range summary.Cookies {
		if !c.Secure {
			f.deduct(5, SeverityWarning, "Cookie '%s' missing Secure flag", c.Name)
		}
	}
	f.set("cookies", summary.Cookies)
	f.set("cookie_count", len(summary.Cookies))

	text := strings.ToLower(doc.Text())
	hasConsent := false
	for _, kw := range consentKeywords {
		if strings.Contains(text, kw) {
			hasConsent = true
			break
		}
	}
	if !hasConsent {
		hasConsent = doc.Find("[id], [class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			id, _ := s.Attr("id")
			class, _ := s.Attr("class")
			return consentAttrPattern.MatchString(id) || consentAttrPattern.MatchString(class)
		}).Length() > 0
	}
	f.set("consent_banner_detected", hasConsent)
	if !hasConsent && len(summary.Cookies) > 0 {
		f.deduct(20, SeverityError, "Cookies set but no consent banner detected (potential GDPR violation)")
	}

	hasPrivacy := doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return strings.Contains(strings.ToLower(s.Text()+href), "privacy")
	}).Length() > 0
	f.set("has_privacy_policy", hasPrivacy)
	if !hasPrivacy {
		f.deduct(10, SeverityWarning, "No privacy policy link found")
	}

	pageHost := ""
	if u, err := url.Parse(target); err == nil {
		pageHost = u.Host
	}
	var thirdParty []string
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		u, err := url.Parse(src)
		if err != nil || u.Host == "" || strings.EqualFold(u.Host, pageHost) {
			return
		}
		thirdParty = append(thirdParty, src)
	})
	f.set("third_party_scripts", len(thirdParty))
	f.set("third_party_script_samples", thirdParty[:min(5, len(thirdParty))])
	if len(thirdParty) > 5 {
		f.issue(SeverityInfo, "%d third-party scripts detected (review for GDPR)", len(thirdParty))
	}
}
