package checker

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteqa/siteqa/internal/domain/run"
)

// AccessibilityProbe runs a static WCAG subset over the page markup.
type AccessibilityProbe struct {
	fetcher *Fetcher
}

func NewAccessibilityProbe(f *Fetcher) *AccessibilityProbe { return &AccessibilityProbe{fetcher: f} }

func (p *AccessibilityProbe) Name() run.Kind { return run.KindAccessibility }

func (p *AccessibilityProbe) Check(ctx context.Context, target string) (run.CheckResult, error) {
	doc, _, err := p.fetcher.Document(ctx, target, pageFetchTimeout)
	if err != nil {
		return run.NewProbeError(run.KindAccessibility, err), nil
	}
	f := newFindings(run.KindAccessibility, 100)
	analyzeAccessibility(doc, f)
	return f.result(80, 50), nil
}

var unlabeledInputExempt = map[string]bool{"hidden": true, "submit": true, "button": true, "image": true}

func analyzeAccessibility(doc *goquery.Document, f *findings) {
	missingAlt := doc.Find("img").FilterFunction(func(_ int, s *goquery.Selection) bool {
		role, _ := s.Attr("role")
		return !hasAttr(s, "alt") && role != "presentation"
	}).Length()
	f.set("images_missing_alt", missingAlt)
	if missingAlt > 0 {
		f.deduct(min(20, missingAlt*3), SeverityError, "%d image(s) missing alt text (WCAG 1.1.1)", missingAlt)
	}

	labelled := make(map[string]bool)
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		labelled[attrValue(s, "for")] = true
	})
	unlabeled := 0
	doc.Find("input").Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(attrValue(s, "type"))
		if unlabeledInputExempt[typ] {
			return
		}
		id := attrValue(s, "id")
		if (id != "" && labelled[id]) || hasAttr(s, "aria-label") || hasAttr(s, "aria-labelledby") {
			return
		}
		unlabeled++
	})
	f.set("unlabeled_inputs", unlabeled)
	if unlabeled > 0 {
		f.deduct(min(15, unlabeled*3), SeverityError, "%d form input(s) missing labels (WCAG 1.3.1)", unlabeled)
	}

	unnamed := doc.Find("button").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return trimmedText(s) == "" && !hasAttr(s, "aria-label") && !hasAttr(s, "title")
	}).Length()
	f.set("unnamed_buttons", unnamed)
	if unnamed > 0 {
		f.deduct(min(10, unnamed*2), SeverityWarning, "%d button(s) have no accessible text (WCAG 4.1.2)", unnamed)
	}

	lang := attrValue(doc.Find("html"), "lang")
	if lang == "" {
		f.set("lang_attribute", nil)
		f.deduct(10, SeverityError, "Missing lang attribute on <html> (WCAG 3.1.1)")
	} else {
		f.set("lang_attribute", lang)
	}

	hasSkip := false
	anchors := doc.Find(`a[href^="#"]`)
	anchors.Slice(0, min(5, anchors.Length())).Each(func(_ int, s *goquery.Selection) {
		href := strings.ToLower(attrValue(s, "href"))
		if strings.Contains(strings.ToLower(s.Text()), "skip") || strings.Contains(href, "main") {
			hasSkip = true
		}
	})
	f.set("has_skip_link", hasSkip)
	if !hasSkip {
		f.issue(SeverityInfo, "No skip navigation link found (WCAG 2.4.1)")
	}

	landmarks := doc.Find("main, nav, header, footer, aside").Length() +
		doc.Find(`[role="main"], [role="navigation"], [role="banner"], [role="contentinfo"], [role="complementary"]`).Length()
	f.set("landmark_count", landmarks)
	if landmarks == 0 {
		f.deduct(5, SeverityWarning, "No ARIA landmark regions found (WCAG 1.3.6)")
	}

	badTabindex := doc.Find("[tabindex]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		n, err := strconv.Atoi(attrValue(s, "tabindex"))
		return err == nil && n > 0
	}).Length()
	if badTabindex > 0 {
		f.deduct(5, SeverityWarning, "%d element(s) with tabindex > 0 (disrupts natural focus order)", badTabindex)
	}
}
