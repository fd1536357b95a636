package checker

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/shared/constants"
)

// Issue severities used by the static probes.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// pageFetchTimeout bounds the document fetch of every static probe.
const pageFetchTimeout = constants.PageFetchTimeout

// StaticProbes returns the stage-2 probe set in its declared order. meter may
// be nil, in which case Core Web Vitals reports a skip.
func StaticProbes(f *Fetcher, meter VitalsMeter) []Probe {
	return []Probe{
		NewSEOProbe(f),
		NewAccessibilityProbe(f),
		NewSecurityHeadersProbe(f),
		NewWebVitalsProbe(meter),
		NewCookiesProbe(f),
		NewHTMLValidationProbe(f),
		NewContentProbe(f),
		NewPWAProbe(f),
		NewFunctionalityProbe(f),
	}
}

// findings accumulates issues, deductions and details for one probe run.
type findings struct {
	kind    run.Kind
	score   int
	issues  []run.Issue
	details map[string]any
}

func newFindings(kind run.Kind, start int) *findings {
	return &findings{kind: kind, score: start, details: make(map[string]any)}
}

// deduct records an issue and subtracts points from the score.
func (f *findings) deduct(points int, severity, format string, args ...any) {
	f.score -= points
	f.issue(severity, format, args...)
}

func (f *findings) issue(severity, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	f.issues = append(f.issues, run.Issue{Severity: severity, Message: msg})
}

func (f *findings) set(key string, value any) {
	f.details[key] = value
}

// result clamps the score and maps it onto a status with the given bounds.
func (f *findings) result(passAt, warnAt int) run.ProbeResult {
	score := run.ClampScore(f.score)
	msg := "No issues found"
	if n := f.countAtLeastWarning(); n > 0 {
		msg = fmt.Sprintf("%d issue(s) found", n)
	}
	return run.ProbeResult{
		Header:  run.Header{Status: run.StatusFromScore(score, passAt, warnAt), Score: run.ScoreOf(score), Message: msg},
		Check:   f.kind,
		Issues:  f.issues,
		Details: f.details,
	}
}

func (f *findings) countAtLeastWarning() int {
	n := 0
	for _, is := range f.issues {
		if is.Severity != SeverityInfo {
			n++
		}
	}
	return n
}

// siteURL returns scheme://host/path for target.
func siteURL(target, path string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return siteRoot(u) + path, nil
}

// attrValue returns the trimmed attribute value of the first match.
func attrValue(s *goquery.Selection, name string) string {
	v, _ := s.First().Attr(name)
	return strings.TrimSpace(v)
}

func hasAttr(s *goquery.Selection, name string) bool {
	v, ok := s.Attr(name)
	return ok && strings.TrimSpace(v) != ""
}

func trimmedText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

// headTimeout is the budget of the side requests probes make (sitemap,
// manifest, 404 probe).
const headTimeout = 8 * time.Second
