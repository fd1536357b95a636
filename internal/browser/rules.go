package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/siteqa/siteqa/internal/domain/run"
)

// Candidate selectors, tried in order; the first visible match wins.
var (
	usernameCandidates = []string{
		`input[type="email"]`,
		`input[name="email"]`,
		`input[placeholder*="email" i]`,
		`input[name="username"]`,
		`input[name="user"]`,
		`input[name="login"]`,
		`input[id="email"]`,
		`input[id="username"]`,
		`input[placeholder*="username" i]`,
		`input[type="text"]`,
	}

	submitCandidates = []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`button:has-text("Sign In")`,
		`button:has-text("Sign in")`,
		`button:has-text("Login")`,
		`button:has-text("Log in")`,
		`button:has-text("Submit")`,
		`[role="button"]:has-text("Sign In")`,
		`[role="button"]:has-text("Login")`,
	}

	defaultPasswordSelector = `input[type="password"]`
	emailFieldSelector      = `input[type="email"], input[name="email"], input[name="username"], input[type="text"]`
)

// Page-text keywords used by the judgment rules. Matching is on lowercased text.
var (
	dashboardKeywords = []string{"dashboard", "home", "profile", "account", "welcome", "logout", "sign out", "my account"}
	errorKeywords     = []string{"invalid email", "invalid password", "incorrect", "wrong password", "unauthorized", "login failed", "doesn't match"}
)

// Button labels containing any of these are recorded as skipped and never clicked.
var destructiveKeywords = []string{
	"delete", "remove", "logout", "log out", "sign out", "signout", "deactivate",
	"cancel account", "unsubscribe", "reset", "clear all", "terminate", "destroy",
	"drop", "purge", "ban", "kick",
}

// Exploration selectors.
var (
	navLinkSelectors = []string{
		"nav a[href]",
		"header a[href]",
		"[role='navigation'] a[href]",
		".sidebar a[href]",
		".menu a[href]",
		".navbar a[href]",
	}
	buttonSelectors = []string{
		"button",
		"[role='button']",
		"input[type='button']",
		"input[type='submit']",
		"a.btn",
		"a.button",
		"[class*='btn']",
		"[class*='button']",
		"[class*='Button']",
	}
	modalSelector      = "[role='dialog'], [role='alertdialog'], .modal, [class*='modal'], [class*='dialog']"
	formInputSelector  = "input, textarea, select"
	externalNavDomains = []string{"google.com", "github.com", "facebook.com", "twitter.com"}
)

// Judgment method names, recorded on the login result.
const (
	MethodSuccessIndicator = "success_indicator"
	MethodRedirect         = "redirect"
	MethodErrorKeywords    = "error_keywords"
	MethodDashboard        = "dashboard_keywords"
	MethodAmbiguous        = "ambiguous"
	MethodFieldDetection   = "field_detection"
	MethodException        = "exception"
	MethodBlockedOrigin    = "blocked_origin"
)

// evidence is what the page looked like after submission.
type evidence struct {
	indicatorSupplied bool
	indicatorFound    bool
	redirected        bool
	hasError          bool
	hasDashboard      bool
	finalURL          string
}

// judgmentRule pairs a predicate with the outcome it produces.
type judgmentRule struct {
	method  string
	matches func(e evidence) bool
	outcome func(e evidence) run.LoginOutcome
}

// judgmentRules are evaluated top to bottom; the first match decides. The
// last rule always matches, so an unclear page is reported as a failure
// rather than assumed to be a success.
//
// A URL change with no error text counts as success. This misreads a login
// that lands on an interstitial such as "verify your email".
var judgmentRules = []judgmentRule{
	{
		method:  MethodSuccessIndicator,
		matches: func(e evidence) bool { return e.indicatorSupplied && e.indicatorFound },
		outcome: func(evidence) run.LoginOutcome {
			return run.LoginOutcome{Success: true, Message: "Login successful, success indicator found"}
		},
	},
	{
		method:  MethodRedirect,
		matches: func(e evidence) bool { return e.indicatorSupplied && e.redirected },
		outcome: redirectedOutcome,
	},
	{
		method:  MethodSuccessIndicator,
		matches: func(e evidence) bool { return e.indicatorSupplied },
		outcome: func(evidence) run.LoginOutcome {
			return run.LoginOutcome{Message: "Login failed, success indicator not found and URL unchanged"}
		},
	},
	{
		method:  MethodRedirect,
		matches: func(e evidence) bool { return e.redirected && !e.hasError },
		outcome: redirectedOutcome,
	},
	{
		method:  MethodErrorKeywords,
		matches: func(e evidence) bool { return e.hasError },
		outcome: func(evidence) run.LoginOutcome {
			return run.LoginOutcome{Message: "Login failed, error message detected on page"}
		},
	},
	{
		method:  MethodDashboard,
		matches: func(e evidence) bool { return e.hasDashboard },
		outcome: func(evidence) run.LoginOutcome {
			return run.LoginOutcome{Success: true, Message: "Login likely succeeded, dashboard keywords visible"}
		},
	},
	{
		method:  MethodAmbiguous,
		matches: func(evidence) bool { return true },
		outcome: func(evidence) run.LoginOutcome {
			return run.LoginOutcome{Message: "Login result unclear, page did not change significantly"}
		},
	},
}

func redirectedOutcome(e evidence) run.LoginOutcome {
	return run.LoginOutcome{Success: true, Message: fmt.Sprintf("Login succeeded, redirected to %s", e.finalURL)}
}

// judge applies judgmentRules to e.
func judge(e evidence) run.LoginOutcome {
	for _, r := range judgmentRules {
		if r.matches(e) {
			out := r.outcome(e)
			out.Method = r.method
			return out
		}
	}
	// unreachable: the last rule always matches
	return run.LoginOutcome{Message: "Login result unclear", Method: MethodAmbiguous}
}

// sameLocation compares two URLs on host, path and query, ignoring a
// trailing slash on the path.
func sameLocation(a, b string) bool {
	return locationKey(a) == locationKey(b)
}

func locationKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimSuffix(raw, "/")
	}
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	key := strings.ToLower(u.Host) + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// isDestructive reports whether a button label names a mutating action.
func isDestructive(label string) bool {
	return containsAny(strings.ToLower(label), destructiveKeywords)
}

// classifyFailure maps an aborted login to a user-facing message.
func classifyFailure(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "Login timed out before completing."
	case strings.Contains(msg, "not found"), strings.Contains(msg, "unreachable"), strings.Contains(msg, "net::err"):
		return "Could not reach the login page."
	default:
		return "Login automation encountered an issue."
	}
}

// originOf returns scheme://host of loginURL; the pre-warm request goes there.
func originOf(loginURL string) string {
	u, err := url.Parse(loginURL)
	if err != nil || u.Host == "" {
		return loginURL
	}
	return u.Scheme + "://" + u.Host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
