package checker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteqa/siteqa/internal/domain/run"
)

const serviceWorkerTimeout = 6 * time.Second

var serviceWorkerPaths = []string{"/service-worker.js", "/sw.js"}

type webManifest struct {
	Name            string            `json:"name"`
	ShortName       string            `json:"short_name"`
	StartURL        string            `json:"start_url"`
	Display         string            `json:"display"`
	ThemeColor      string            `json:"theme_color"`
	BackgroundColor string            `json:"background_color"`
	Icons           []json.RawMessage `json:"icons"`
}

// PWAProbe scores installability signals additively.
type PWAProbe struct {
	fetcher *Fetcher
}

func NewPWAProbe(f *Fetcher) *PWAProbe { return &PWAProbe{fetcher: f} }

func (p *PWAProbe) Name() run.Kind { return run.KindPWA }

// Check adds points for HTTPS (20), a manifest (25, plus 10 for icons and 5
// for standalone display), a service worker (25 when served, 15 when only
// referenced), an apple-touch-icon, a theme color and a viewport (5 each).
func (p *PWAProbe) Check(ctx context.Context, target string) (run.CheckResult, error) {
	doc, resp, err := p.fetcher.Document(ctx, target, pageFetchTimeout)
	if err != nil {
		return run.NewProbeError(run.KindPWA, err), nil
	}
	base, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	f := newFindings(run.KindPWA, 0)

	isHTTPS := base.Scheme == "https"
	f.set("https", isHTTPS)
	if isHTTPS {
		f.score += 20
	} else {
		f.issue(SeverityError, "PWA requires HTTPS")
	}

	p.checkManifest(ctx, doc, base, f)

	hasSW := false
	for _, path := range serviceWorkerPaths {
		swURL := siteRoot(base) + path
		r, err := p.fetcher.Do(ctx, http.MethodHead, swURL, serviceWorkerTimeout)
		if err == nil && r.StatusCode < 400 {
			hasSW = true
			f.score += 25
			f.set("service_worker_url", swURL)
			break
		}
	}
	if !hasSW {
		body := string(resp.Body)
		if strings.Contains(body, "serviceWorker") || strings.Contains(strings.ToLower(body), "service-worker") {
			hasSW = true
			f.score += 15
			f.set("service_worker_url", "registered in page")
		}
	}
	f.set("has_service_worker", hasSW)
	if !hasSW {
		f.issue(SeverityError, "No service worker detected (required for offline support)")
	}

	hasAppleIcon := doc.Find(`link[rel="apple-touch-icon"]`).Length() > 0
	f.set("has_apple_touch_icon", hasAppleIcon)
	if hasAppleIcon {
		f.score += 5
	}
	hasTheme := doc.Find(`meta[name="theme-color"]`).Length() > 0
	f.set("has_theme_color", hasTheme)
	if hasTheme {
		f.score += 5
	}
	hasViewport := doc.Find(`meta[name="viewport"]`).Length() > 0
	f.set("has_viewport", hasViewport)
	if hasViewport {
		f.score += 5
	} else {
		f.issue(SeverityError, "Missing viewport meta (required for PWA)")
	}

	return f.result(70, 40), nil
}

func (p *PWAProbe) checkManifest(ctx context.Context, doc *goquery.Document, base *url.URL, f *findings) {
	href := attrValue(doc.Find(`link[rel="manifest"]`), "href")
	f.set("has_manifest", href != "")
	if href == "" {
		f.issue(SeverityError, "No web app manifest found")
		return
	}
	f.score += 25

	ref, err := url.Parse(href)
	if err != nil {
		f.issue(SeverityWarning, "Manifest found but could not be parsed")
		return
	}
	resp, err := p.fetcher.Do(ctx, http.MethodGet, base.ResolveReference(ref).String(), headTimeout)
	if err != nil {
		f.issue(SeverityWarning, "Manifest found but could not be parsed")
		return
	}
	var m webManifest
	if err := json.Unmarshal(resp.Body, &m); err != nil {
		f.issue(SeverityWarning, "Manifest found but could not be parsed")
		return
	}
	f.set("manifest", map[string]any{
		"name":             m.Name,
		"short_name":       m.ShortName,
		"start_url":        m.StartURL,
		"display":          m.Display,
		"theme_color":      m.ThemeColor,
		"background_color": m.BackgroundColor,
		"icons":            len(m.Icons),
	})
	if m.Name == "" {
		f.issue(SeverityWarning, "Manifest missing 'name' field")
	}
	if len(m.Icons) == 0 {
		f.issue(SeverityWarning, "Manifest missing icons")
	} else {
		f.score += 10
	}
	if m.Display == "standalone" || m.Display == "fullscreen" {
		f.score += 5
	}
}
