package checker

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/PuerkitoBio/goquery"
)

// VulnerableLibrary is a script or stylesheet whose version has a known
// advisory.
type VulnerableLibrary struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Source   string   `json:"source"`
	Advisory []string `json:"advisory"`
	Severity string   `json:"severity"`
	Fix      string   `json:"fix"`
}

type libraryAdvisory struct {
	name       string
	pattern    *regexp.Regexp
	vulnerable *semver.Constraints
	ids        []string
	severity   string
	fix        string
}

// libraryAdvisories match versioned asset paths such as jquery-3.4.1.min.js
// or cdn paths like lodash.js/4.17.10/lodash.min.js.
var libraryAdvisories = []libraryAdvisory{
	{
		name:       "jQuery",
		pattern:    regexp.MustCompile(`(?i)jquery[/@-](\d+\.\d+(?:\.\d+)?)`),
		vulnerable: mustConstraint("< 3.5.0"),
		ids:        []string{"CVE-2020-11022", "CVE-2020-11023"},
		severity:   SeverityWarning,
		fix:        "Update jQuery to 3.5.0 or later",
	},
	{
		name:       "AngularJS",
		pattern:    regexp.MustCompile(`(?i)angular(?:\.?js)?[/@](1\.\d+(?:\.\d+)?)`),
		vulnerable: mustConstraint("< 1.7.9"),
		ids:        []string{"CVE-2019-10768"},
		severity:   SeverityError,
		fix:        "Update AngularJS to 1.7.9 or migrate to Angular",
	},
	{
		name:       "Lodash",
		pattern:    regexp.MustCompile(`(?i)lodash(?:\.js)?[@/](\d+\.\d+(?:\.\d+)?)`),
		vulnerable: mustConstraint("< 4.17.12"),
		ids:        []string{"CVE-2019-10744"},
		severity:   SeverityError,
		fix:        "Update Lodash to 4.17.12 or later",
	},
	{
		name:       "Moment.js",
		pattern:    regexp.MustCompile(`(?i)moment(?:\.js)?[/@](\d+\.\d+(?:\.\d+)?)`),
		vulnerable: mustConstraint("< 2.29.2"),
		ids:        []string{"CVE-2022-24785"},
		severity:   SeverityWarning,
		fix:        "Update Moment.js to 2.29.2 or move to a maintained date library",
	},
	{
		name:       "Bootstrap",
		pattern:    regexp.MustCompile(`(?i)bootstrap[/@-](\d+\.\d+(?:\.\d+)?)`),
		vulnerable: mustConstraint("< 3.4.0"),
		ids:        []string{"CVE-2019-8331"},
		severity:   SeverityWarning,
		fix:        "Update Bootstrap to 3.4.0 or later",
	},
}

func mustConstraint(c string) *semver.Constraints {
	constraints, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraints
}

// DetectVulnerableLibraries matches script and stylesheet URLs against the
// advisory list. Each library is reported once per distinct version.
func DetectVulnerableLibraries(doc *goquery.Document) []VulnerableLibrary {
	var sources []string
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		sources = append(sources, attrValue(s, "src"))
	})
	doc.Find(`link[rel="stylesheet"][href]`).Each(func(_ int, s *goquery.Selection) {
		sources = append(sources, attrValue(s, "href"))
	})

	out := []VulnerableLibrary{}
	seen := make(map[string]bool)
	for _, src := range sources {
		for _, adv := range libraryAdvisories {
			m := adv.pattern.FindStringSubmatch(src)
			if m == nil {
				continue
			}
			version, err := semver.NewVersion(m[1])
			if err != nil || !adv.vulnerable.Check(version) {
				continue
			}
			key := adv.name + "@" + version.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, VulnerableLibrary{
				Name:     adv.name,
				Version:  m[1],
				Source:   src,
				Advisory: adv.ids,
				Severity: adv.severity,
				Fix:      adv.fix,
			})
		}
	}
	return out
}

// CSRFCheck summarises anti-forgery measures around a page's POST forms.
type CSRFCheck struct {
	PostForms        int    `json:"post_forms"`
	UnprotectedForms int    `json:"unprotected_forms"`
	MetaToken        bool   `json:"meta_token"`
	DoubleSubmit     bool   `json:"double_submit_cookie"`
	SameSiteCookies  bool   `json:"samesite_cookies"`
	Protection       string `json:"protection"`
}

var (
	csrfFieldNames  = []string{"csrf", "_csrf", "csrf_token", "csrfmiddlewaretoken", "authenticity_token", "__requestverificationtoken", "_token"}
	csrfMetaNames   = []string{"csrf-token", "_csrf", "xsrf-token"}
	csrfCookieNames = []string{"xsrf-token", "csrf_token", "csrftoken"}
)

// CheckCSRFProtection inspects POST forms for a hidden token field and the
// page for meta tokens, double-submit cookies and SameSite cookies. It
// returns nil when the page has no POST form.
func CheckCSRFProtection(doc *goquery.Document, cookies []*http.Cookie) *CSRFCheck {
	check := &CSRFCheck{Protection: "none"}
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		if !strings.EqualFold(attrValue(form, "method"), http.MethodPost) {
			return
		}
		check.PostForms++
		protected := false
		form.Find(`input[type="hidden"][name]`).EachWithBreak(func(_ int, in *goquery.Selection) bool {
			protected = nameIn(csrfFieldNames, attrValue(in, "name"))
			return !protected
		})
		if !protected {
			check.UnprotectedForms++
		}
	})
	if check.PostForms == 0 {
		return nil
	}

	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		if nameIn(csrfMetaNames, attrValue(s, "name")) && attrValue(s, "content") != "" {
			check.MetaToken = true
		}
	})
	for _, c := range cookies {
		if nameIn(csrfCookieNames, c.Name) {
			check.DoubleSubmit = true
		}
		if c.SameSite == http.SameSiteLaxMode || c.SameSite == http.SameSiteStrictMode {
			check.SameSiteCookies = true
		}
	}

	tokens := check.UnprotectedForms == 0 || check.MetaToken || check.DoubleSubmit
	switch {
	case tokens && check.SameSiteCookies:
		check.Protection = "strong"
	case tokens || check.SameSiteCookies:
		check.Protection = "moderate"
	}
	return check
}

// analyzeClientSecurity reports outdated libraries and missing CSRF
// protection as informational findings.
func analyzeClientSecurity(doc *goquery.Document, cookies []*http.Cookie, f *findings) {
	libs := DetectVulnerableLibraries(doc)
	for _, lib := range libs {
		f.issue(SeverityInfo, "%s %s has known vulnerabilities (%s)", lib.Name, lib.Version, strings.Join(lib.Advisory, ", "))
	}
	f.set("vulnerable_libraries", libs)

	csrf := CheckCSRFProtection(doc, cookies)
	if csrf != nil && csrf.Protection == "none" {
		f.issue(SeverityInfo, "%d POST form(s) without CSRF protection", csrf.UnprotectedForms)
	}
	f.set("csrf", csrf)
}

func nameIn(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
