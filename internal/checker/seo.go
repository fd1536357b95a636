package checker

import (
	"context"
	"net/http"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteqa/siteqa/internal/domain/run"
)

// SEOProbe checks on-page search engine basics.
type SEOProbe struct {
	fetcher *Fetcher
}

func NewSEOProbe(f *Fetcher) *SEOProbe { return &SEOProbe{fetcher: f} }

func (p *SEOProbe) Name() run.Kind { return run.KindSEO }

func (p *SEOProbe) Check(ctx context.Context, target string) (run.CheckResult, error) {
	doc, _, err := p.fetcher.Document(ctx, target, pageFetchTimeout)
	if err != nil {
		return run.NewProbeError(run.KindSEO, err), nil
	}
	f := newFindings(run.KindSEO, 100)
	analyzeSEO(doc, f)

	sitemapURL, err := siteURL(target, "/sitemap.xml")
	if err != nil {
		return nil, err
	}
	if resp, err := p.fetcher.Do(ctx, http.MethodHead, sitemapURL, headTimeout); err == nil {
		if resp.StatusCode < 400 {
			f.set("sitemap", sitemapURL)
		} else {
			f.set("sitemap", nil)
			f.issue(SeverityInfo, "No sitemap.xml found")
		}
	} else {
		f.set("sitemap", nil)
	}

	robotsURL, _ := siteURL(target, "/robots.txt")
	if resp, err := p.fetcher.Do(ctx, http.MethodGet, robotsURL, headTimeout); err == nil {
		f.set("robots_txt", resp.StatusCode < 400)
		if resp.StatusCode >= 400 {
			f.issue(SeverityInfo, "No robots.txt found")
		}
	} else {
		f.set("robots_txt", false)
	}

	return f.result(80, 50), nil
}

// analyzeSEO runs the document-only SEO rules.
func analyzeSEO(doc *goquery.Document, f *findings) {
	title := trimmedText(doc.Find("title").First())
	titleLen := utf8.RuneCountInString(title)
	f.set("title", title)
	switch {
	case title == "":
		f.deduct(15, SeverityError, "Missing <title> tag")
	case titleLen < 10:
		f.deduct(5, SeverityWarning, "Title too short (%d chars, recommend 50-60)", titleLen)
	case titleLen > 70:
		f.deduct(5, SeverityWarning, "Title too long (%d chars, recommend 50-60)", titleLen)
	}

	desc := attrValue(doc.Find(`meta[name="description"]`), "content")
	descLen := utf8.RuneCountInString(desc)
	f.set("meta_description", desc)
	switch {
	case desc == "":
		f.deduct(15, SeverityError, "Missing meta description")
	case descLen < 50:
		f.deduct(5, SeverityWarning, "Meta description too short (%d chars)", descLen)
	case descLen > 160:
		f.deduct(3, SeverityWarning, "Meta description too long (%d chars)", descLen)
	}

	h1s := doc.Find("h1")
	f.set("h1_count", h1s.Length())
	f.set("h2_count", doc.Find("h2").Length())
	switch {
	case h1s.Length() == 0:
		f.deduct(10, SeverityError, "No <h1> tag found")
	case h1s.Length() > 1:
		f.deduct(5, SeverityWarning, "Multiple <h1> tags found (%d)", h1s.Length())
	}

	canonical := doc.Find(`link[rel="canonical"]`)
	if canonical.Length() == 0 {
		f.set("canonical", nil)
		f.issue(SeverityInfo, "No canonical URL defined")
	} else {
		f.set("canonical", attrValue(canonical, "href"))
	}

	if doc.Find(`meta[property="og:title"]`).Length() == 0 {
		f.issue(SeverityInfo, "Missing og:title (Open Graph)")
	}
	if doc.Find(`meta[property="og:image"]`).Length() == 0 {
		f.issue(SeverityInfo, "Missing og:image (Open Graph)")
	}

	missingAlt := doc.Find("img").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return !hasAttr(s, "alt")
	}).Length()
	f.set("images_missing_alt", missingAlt)
	if missingAlt > 0 {
		f.deduct(min(10, missingAlt*2), SeverityWarning, "%d image(s) missing alt attributes", missingAlt)
	}
}
