package checker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteqa/siteqa/internal/domain/run"
)

var deprecatedTags = []string{"font", "center", "strike", "tt", "big", "basefont", "applet", "acronym", "frame", "frameset"}

// HTMLValidationProbe runs structural markup checks.
type HTMLValidationProbe struct {
	fetcher *Fetcher
}

func NewHTMLValidationProbe(f *Fetcher) *HTMLValidationProbe { return &HTMLValidationProbe{fetcher: f} }

func (p *HTMLValidationProbe) Name() run.Kind { return run.KindHTMLValidation }

func (p *HTMLValidationProbe) Check(ctx context.Context, target string) (run.CheckResult, error) {
	doc, resp, err := p.fetcher.Document(ctx, target, pageFetchTimeout)
	if err != nil {
		return run.NewProbeError(run.KindHTMLValidation, err), nil
	}
	f := newFindings(run.KindHTMLValidation, 100)
	analyzeHTML(doc, resp.Body, f)
	return f.result(80, 50), nil
}

type tagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

func analyzeHTML(doc *goquery.Document, raw []byte, f *findings) {
	hasDoctype := bytes.HasPrefix(bytes.ToLower(bytes.TrimSpace(raw)), []byte("<!doctype"))
	f.set("has_doctype", hasDoctype)
	if !hasDoctype {
		f.deduct(10, SeverityError, "Missing DOCTYPE declaration")
	}

	hasCharset := doc.Find("meta[charset]").Length() > 0 ||
		doc.Find("meta[http-equiv]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.EqualFold(attrValue(s, "http-equiv"), "content-type")
		}).Length() > 0
	f.set("has_charset", hasCharset)
	if !hasCharset {
		f.deduct(5, SeverityWarning, "No charset declaration found")
	}

	hasViewport := doc.Find(`meta[name="viewport"]`).Length() > 0
	f.set("has_viewport", hasViewport)
	if !hasViewport {
		f.deduct(10, SeverityError, "Missing viewport meta tag (breaks mobile rendering)")
	}

	var found []tagCount
	for _, tag := range deprecatedTags {
		if n := doc.Find(tag).Length(); n > 0 {
			found = append(found, tagCount{Tag: tag, Count: n})
			f.score -= min(5, n)
		}
	}
	f.set("deprecated_tags", found)
	if len(found) > 0 {
		names := make([]string, 0, 5)
		for _, d := range found[:min(5, len(found))] {
			names = append(names, fmt.Sprintf("<%s>", d.Tag))
		}
		f.issue(SeverityWarning, "Deprecated HTML tags found: %s", strings.Join(names, ", "))
	}

	emptyLinks := doc.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return trimmedText(s) == "" && s.Find("img").Length() == 0
	}).Length()
	f.set("empty_links", emptyLinks)
	if emptyLinks > 0 {
		f.deduct(min(10, emptyLinks*2), SeverityWarning, "%d empty <a> tag(s) found", emptyLinks)
	}

	seen := make(map[string]bool)
	dupeSet := make(map[string]bool)
	var dupes []string
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		if seen[id] && !dupeSet[id] {
			dupeSet[id] = true
			dupes = append(dupes, id)
		}
		seen[id] = true
	})
	f.set("duplicate_ids", dupes[:min(10, len(dupes))])
	if len(dupes) > 0 {
		f.deduct(min(15, len(dupes)*3), SeverityError, "%d duplicate ID(s) found (invalid HTML)", len(dupes))
	}

	inline := doc.Find("[style]").Length()
	f.set("inline_style_count", inline)
	if inline > 20 {
		f.issue(SeverityInfo, "%d elements use inline styles (prefer CSS classes)", inline)
	}
}
