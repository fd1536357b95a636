// Package scoring folds the per-check results of a run into one weighted
// 0-100 score and a templated summary.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/siteqa/siteqa/internal/domain/run"
)

// Weight is the share of one check in the overall score.
type Weight struct {
	Kind   run.Kind
	Weight float64
}

// Weights sum to 100. Order is the order values are extracted in.
var Weights = []Weight{
	{run.KindSpeed, 15},
	{run.KindSSL, 10},
	{run.KindSecurityHeaders, 12},
	{run.KindWebVitals, 12},
	{run.KindSEO, 10},
	{run.KindAccessibility, 10},
	{run.KindHTMLValidation, 8},
	{run.KindContent, 8},
	{run.KindBrokenLinks, 8},
	{run.KindCookies, 7},
	{run.KindPWA, 5},
	{run.KindFunctionality, 5},
}

// maxIssueFragments bounds the "Key issues" list of the summary.
const maxIssueFragments = 5

// Lookup returns the result recorded for a check kind.
// (*run.TestRun).Result and run.ResultSet.Get both satisfy it.
type Lookup func(kind run.Kind) (run.CheckResult, bool)

// Summarize computes the overall score and summary.
func Summarize(lookup Lookup) (int, string) {
	score := Score(lookup)
	return score, Summary(score, lookup)
}

// Score is the weight-normalized mean over the checks that produced a value.
// Checks that are absent, skipped, errored or unscored leave both numerator
// and denominator untouched, except TLS, which always counts unless the
// handshake itself errored. No usable check yields 0.
func Score(lookup Lookup) int {
	var sum, total float64
	for _, w := range Weights {
		res, ok := lookup(w.Kind)
		if !ok || res == nil {
			continue
		}
		v, ok := value(res)
		if !ok {
			continue
		}
		sum += math.Max(0, math.Min(100, v)) * w.Weight
		total += w.Weight
	}
	if total == 0 {
		return 0
	}
	return run.ClampScore(int(math.Round(sum / total)))
}

// value extracts the 0-100 contribution of one result. TLS validity is
// mapped before the skip exclusion so a plain http site scores 0 there.
func value(res run.CheckResult) (float64, bool) {
	h := res.Base()
	if h.Status == run.StatusError {
		return 0, false
	}
	if tls, ok := res.(run.TLSResult); ok {
		if tls.Valid {
			return 100, true
		}
		return 0, true
	}
	if h.Status == run.StatusSkip {
		return 0, false
	}
	switch r := res.(type) {
	case run.BrokenLinksResult:
		total := r.TotalChecked
		if total <= 0 {
			total = 1
		}
		return math.Max(0, 100-float64(r.BrokenCount)/float64(total)*200), true
	}
	if h.Score == nil {
		return 0, false
	}
	return float64(*h.Score), true
}

// Label maps a score onto its qualitative band.
func Label(score int) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	default:
		return "poor"
	}
}

// Summary renders the templated summary for score.
func Summary(score int, lookup Lookup) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall health is %s (%d/100).", Label(score), score)
	if issues := keyIssues(lookup); len(issues) > 0 {
		fmt.Fprintf(&sb, " Key issues: %s.", strings.Join(issues, ", "))
	} else {
		sb.WriteString(" No critical issues detected.")
	}
	return sb.String()
}

func keyIssues(lookup Lookup) []string {
	var issues []string

	if res, ok := lookup(run.KindSSL); ok {
		if tls, ok := res.(run.TLSResult); ok {
			switch {
			case !tls.Valid && tls.Status != run.StatusError:
				issues = append(issues, "invalid SSL certificate")
			case tls.Valid && tls.ExpiresInDays != nil && *tls.ExpiresInDays < 14:
				issues = append(issues, fmt.Sprintf("SSL expiring in %d days", *tls.ExpiresInDays))
			}
		}
	}
	if res, ok := lookup(run.KindSpeed); ok {
		if speed, ok := res.(run.SpeedResult); ok && speed.LoadTimeMs > 3000 {
			issues = append(issues, fmt.Sprintf("slow load time (%dms)", speed.LoadTimeMs))
		}
	}
	if res, ok := lookup(run.KindBrokenLinks); ok {
		if links, ok := res.(run.BrokenLinksResult); ok && links.BrokenCount > 0 {
			issues = append(issues, fmt.Sprintf("%d broken link(s)", links.BrokenCount))
		}
	}
	if below(lookup, run.KindSecurityHeaders, 50) {
		issues = append(issues, "weak security headers")
	}
	if below(lookup, run.KindSEO, 50) {
		issues = append(issues, "poor SEO")
	}

	if len(issues) > maxIssueFragments {
		issues = issues[:maxIssueFragments]
	}
	return issues
}

// below reports whether kind has a usable score under threshold.
func below(lookup Lookup, kind run.Kind, threshold int) bool {
	res, ok := lookup(kind)
	if !ok || res == nil {
		return false
	}
	h := res.Base()
	return h.Status != run.StatusError && h.Score != nil && *h.Score < threshold
}
