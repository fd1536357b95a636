package checker

import (
	"net/http"
	"strings"
)

// CORSReport describes the cross-origin policy a response advertises.
type CORSReport struct {
	AllowOrigin      string   `json:"allow_origin,omitempty"`
	AllowCredentials bool     `json:"allow_credentials"`
	AllowHeaders     string   `json:"allow_headers,omitempty"`
	ExposeHeaders    string   `json:"expose_headers,omitempty"`
	VaryOrigin       bool     `json:"vary_origin"`
	Issues           []string `json:"issues,omitempty"`
}

// AnalyzeCORS flags permissive CORS headers. A response without
// Access-Control-Allow-Origin shares nothing cross-origin and yields nil.
func AnalyzeCORS(headers http.Header) *CORSReport {
	origin := strings.TrimSpace(headers.Get("Access-Control-Allow-Origin"))
	if origin == "" {
		return nil
	}
	report := &CORSReport{
		AllowOrigin:      origin,
		AllowCredentials: strings.EqualFold(headers.Get("Access-Control-Allow-Credentials"), "true"),
		AllowHeaders:     headers.Get("Access-Control-Allow-Headers"),
		ExposeHeaders:    headers.Get("Access-Control-Expose-Headers"),
		VaryOrigin:       varyIncludesOrigin(headers.Values("Vary")),
	}

	switch {
	case origin == "*" && report.AllowCredentials:
		report.Issues = append(report.Issues, "CORS allows any origin with credentials")
	case origin == "*":
		report.Issues = append(report.Issues, "CORS allows any origin (*)")
	case origin == "null":
		report.Issues = append(report.Issues, "CORS trusts the null origin")
	case !report.VaryOrigin:
		report.Issues = append(report.Issues, "Vary: Origin missing on a per-origin CORS response")
	}
	if strings.Contains(report.AllowHeaders, "*") {
		report.Issues = append(report.Issues, "Access-Control-Allow-Headers allows any header (*)")
	}
	if strings.Contains(report.ExposeHeaders, "*") {
		report.Issues = append(report.Issues, "Access-Control-Expose-Headers exposes all headers (*)")
	}
	return report
}

func varyIncludesOrigin(values []string) bool {
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "origin") {
				return true
			}
		}
	}
	return false
}
