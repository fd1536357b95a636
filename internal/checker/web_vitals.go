package checker

import (
	"context"
	"fmt"
	"math"

	"github.com/siteqa/siteqa/internal/domain/run"
)

// Vitals holds browser-measured page metrics in milliseconds (CLS is
// unitless). A nil field means the browser did not report it.
type Vitals struct {
	LCP  *float64
	CLS  *float64
	TBT  *float64
	FCP  *float64
	TTFB *float64
}

// VitalsMeter measures Core Web Vitals by loading the page in a browser.
type VitalsMeter interface {
	Measure(ctx context.Context, target string) (Vitals, error)
}

// WebVitalsProbe grades LCP, CLS and TBT against the published thresholds.
type WebVitalsProbe struct {
	meter VitalsMeter
}

func NewWebVitalsProbe(meter VitalsMeter) *WebVitalsProbe { return &WebVitalsProbe{meter: meter} }

func (p *WebVitalsProbe) Name() run.Kind { return run.KindWebVitals }

func (p *WebVitalsProbe) Check(ctx context.Context, target string) (run.CheckResult, error) {
	if p.meter == nil {
		return run.WebVitalsResult{
			Header: run.Header{Status: run.StatusSkip, Message: "Browser automation disabled"},
		}, nil
	}
	v, err := p.meter.Measure(ctx, target)
	if err != nil {
		return run.WebVitalsResult{
			Header: run.Header{Status: run.StatusError, Score: run.ScoreOf(0), Message: truncate(err.Error(), 200)},
		}, nil
	}
	return gradeVitals(v), nil
}

func gradeVitals(v Vitals) run.WebVitalsResult {
	score := 100
	var issues []run.Issue
	add := func(points int, severity, format string, args ...any) {
		score -= points
		issues = append(issues, run.Issue{Severity: severity, Message: fmt.Sprintf(format, args...)})
	}

	if v.LCP != nil {
		switch lcp := *v.LCP; {
		case lcp > 4000:
			add(25, SeverityError, "LCP %.0fms: Poor (>4s)", lcp)
		case lcp > 2500:
			add(10, SeverityWarning, "LCP %.0fms: Needs improvement (>2.5s)", lcp)
		}
	}
	if v.CLS != nil {
		switch cls := *v.CLS; {
		case cls > 0.25:
			add(25, SeverityError, "CLS %.3f: Poor (>0.25)", cls)
		case cls > 0.1:
			add(10, SeverityWarning, "CLS %.3f: Needs improvement (>0.1)", cls)
		}
	}
	if v.TBT != nil {
		switch tbt := *v.TBT; {
		case tbt > 600:
			add(20, SeverityError, "TBT %.0fms: Poor (>600ms)", tbt)
		case tbt > 200:
			add(10, SeverityWarning, "TBT %.0fms: Needs improvement (>200ms)", tbt)
		}
	}

	score = run.ClampScore(score)
	msg := "All Core Web Vitals within good thresholds"
	if len(issues) > 0 {
		msg = fmt.Sprintf("%d vital(s) need attention", len(issues))
	}
	return run.WebVitalsResult{
		Header: run.Header{Status: run.StatusFromScore(score, 80, 50), Score: run.ScoreOf(score), Message: msg},
		LCPMs:  round1(v.LCP),
		CLS:    round3(v.CLS),
		TBTMs:  round1(v.TBT),
		FCPMs:  round1(v.FCP),
		TTFBMs: round1(v.TTFB),
		Issues: issues,
	}
}

func round1(f *float64) *float64 {
	if f == nil {
		return nil
	}
	r := math.Round(*f*10) / 10
	return &r
}

func round3(f *float64) *float64 {
	if f == nil {
		return nil
	}
	r := math.Round(*f*1000) / 1000
	return &r
}
