package checker

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteqa/siteqa/internal/domain/run"
)

var ctaKeywords = []string{
	"get started", "sign up", "register", "buy now", "shop now",
	"try free", "contact us", "learn more", "book now", "subscribe",
	"download", "start free", "request demo", "get demo",
}

var socialDomains = []string{
	"twitter.com", "x.com", "facebook.com", "instagram.com",
	"linkedin.com", "youtube.com", "github.com", "tiktok.com",
}

var (
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern      = regexp.MustCompile(`\+?\(?[0-9]{3}\)?[-\s.]?[0-9]{3}[-\s.]?[0-9]{4,6}`)
	searchNamePattern = regexp.MustCompile(`(?i)search|query|q`)
)

const missingPagePath = "/this-page-definitely-does-not-exist-xyz123"

// FunctionalityProbe inventories forms, CTAs, navigation and contact data.
type FunctionalityProbe struct {
	fetcher *Fetcher
}

func NewFunctionalityProbe(f *Fetcher) *FunctionalityProbe { return &FunctionalityProbe{fetcher: f} }

func (p *FunctionalityProbe) Name() run.Kind { return run.KindFunctionality }

func (p *FunctionalityProbe) Check(ctx context.Context, target string) (run.CheckResult, error) {
	doc, page, err := p.fetcher.Document(ctx, target, pageFetchTimeout)
	if err != nil {
		return run.NewProbeError(run.KindFunctionality, err), nil
	}
	f := newFindings(run.KindFunctionality, 100)
	analyzeFunctionality(doc, f)
	analyzeClientSecurity(doc, page.Cookies, f)

	notFoundURL, err := siteURL(target, missingPagePath)
	if err != nil {
		return nil, err
	}
	if resp, err := p.fetcher.Do(ctx, http.MethodGet, notFoundURL, headTimeout); err == nil {
		f.set("has_custom_404", resp.StatusCode == http.StatusNotFound && len(resp.Body) > 500)
		if resp.StatusCode != http.StatusNotFound {
			f.deduct(5, SeverityWarning, "Non-existent pages return %d instead of 404", resp.StatusCode)
		}
	} else {
		f.set("has_custom_404", nil)
	}

	return f.result(80, 50), nil
}

type formInfo struct {
	Action     string `json:"action"`
	Method     string `json:"method"`
	InputCount int    `json:"input_count"`
	HasSubmit  bool   `json:"has_submit"`
}

type linkInfo struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

func analyzeFunctionality(doc *goquery.Document, f *findings) {
	forms := doc.Find("form")
	var formData []formInfo
	forms.Slice(0, min(10, forms.Length())).Each(func(i int, form *goquery.Selection) {
		inputs := form.Find("input").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return !strings.EqualFold(attrValue(s, "type"), "hidden")
		}).Length() + form.Find("textarea").Length()
		hasSubmit := form.Find(`button[type="submit"], input[type="submit"], button`).Length() > 0
		method := strings.ToUpper(attrValue(form, "method"))
		if method == "" {
			method = "GET"
		}
		formData = append(formData, formInfo{
			Action:     attrValue(form, "action"),
			Method:     method,
			InputCount: inputs,
			HasSubmit:  hasSubmit,
		})
		if !hasSubmit {
			f.deduct(5, SeverityWarning, "Form #%d has no visible submit button", i+1)
		}
	})
	f.set("forms", formData)
	f.set("form_count", forms.Length())

	var ctas []linkInfo
	doc.Find("a, button").Each(func(_ int, s *goquery.Selection) {
		text := trimmedText(s)
		lower := strings.ToLower(text)
		for _, kw := range ctaKeywords {
			if strings.Contains(lower, kw) {
				ctas = append(ctas, linkInfo{Text: truncate(text, 60), Href: attrValue(s, "href")})
				return
			}
		}
	})
	f.set("cta_buttons", ctas[:min(10, len(ctas))])
	f.set("cta_count", len(ctas))
	if len(ctas) == 0 {
		f.issue(SeverityInfo, "No clear CTA (call-to-action) buttons detected")
	}

	hasSearch := doc.Find(`input[type="search"]`).Length() > 0 ||
		forms.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(attrValue(s, "action")+attrValue(s, "role")+attrValue(s, "class")), "search")
		}).Length() > 0 ||
		doc.Find("input[name]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return searchNamePattern.MatchString(attrValue(s, "name"))
		}).Length() > 0
	f.set("has_search", hasSearch)

	var navLinks []linkInfo
	navs := doc.Find("nav")
	navs.Slice(0, min(2, navs.Length())).Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		text := trimmedText(s)
		if text != "" && len(text) < 50 {
			navLinks = append(navLinks, linkInfo{Text: text, Href: attrValue(s, "href")})
		}
	})
	f.set("navigation", navLinks[:min(20, len(navLinks))])
	f.set("nav_link_count", len(navLinks))
	if len(navLinks) == 0 {
		f.deduct(10, SeverityWarning, "No navigation structure detected")
	}

	text := doc.Text()
	emails := uniqueMatches(emailPattern.FindAllString(text, -1), 3)
	phones := uniqueMatches(phonePattern.FindAllString(text, -1), 3)
	f.set("contact_emails", emails)
	f.set("contact_phones", phones)
	f.set("has_contact_info", len(emails) > 0 || len(phones) > 0)

	type socialLink struct {
		Platform string `json:"platform"`
		URL      string `json:"url"`
	}
	var social []socialLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := attrValue(s, "href")
		for _, domain := range socialDomains {
			if strings.Contains(href, domain) {
				social = append(social, socialLink{Platform: strings.Split(domain, ".")[0], URL: href})
				return
			}
		}
	})
	f.set("social_links", social[:min(10, len(social))])
}

func uniqueMatches(in []string, limit int) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
