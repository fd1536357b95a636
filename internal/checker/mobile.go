package checker

import (
	"bytes"
	"fmt"

	"github.com/siteqa/siteqa/internal/domain/run"
)

var responsiveKeywords = [][]byte{
	[]byte("@media"),
	[]byte("max-width"),
	[]byte("min-width"),
	[]byte("flex"),
	[]byte("grid"),
}

// MobileSignal is the responsive-design evidence found in one page's markup.
type MobileSignal struct {
	HasViewport      bool
	HasResponsiveCSS bool
}

// detectResponsiveCSS searches the lowercased markup for responsive idioms.
func detectResponsiveCSS(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, kw := range responsiveKeywords {
		if bytes.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Result scores the signal: 100, minus 50 without a viewport meta tag and
// minus 30 without responsive CSS.
func (m MobileSignal) Result() run.MobileResult {
	score := 100
	var issues []string
	if !m.HasViewport {
		score -= 50
		issues = append(issues, "Missing <meta name='viewport'> tag")
	}
	if !m.HasResponsiveCSS {
		score -= 30
		issues = append(issues, "No responsive CSS patterns detected (missing @media queries or flex/grid)")
	}

	msg := "Site appears mobile-friendly"
	if len(issues) > 0 {
		msg = fmt.Sprintf("%d mobile issue(s) found", len(issues))
	}
	return run.MobileResult{
		Header: run.Header{
			Status:  run.StatusFromScore(score, 80, 50),
			Score:   run.ScoreOf(score),
			Message: msg,
		},
		HasViewport:      m.HasViewport,
		HasResponsiveCSS: m.HasResponsiveCSS,
		Issues:           issues,
	}
}
