package checker

import (
	"net/http"
	"testing"

	"github.com/siteqa/siteqa/internal/domain/run"
)

func TestDetectVulnerableLibraries(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		want  string
		found bool
	}{
		{"old jquery file", `<script src="/js/jquery-3.4.1.min.js"></script>`, "jQuery", true},
		{"patched jquery", `<script src="https://code.jquery.com/jquery-3.7.1.min.js"></script>`, "", false},
		{"cdn lodash", `<script src="https://cdnjs.cloudflare.com/ajax/libs/lodash.js/4.17.10/lodash.min.js"></script>`, "Lodash", true},
		{"cdn angularjs", `<script src="https://ajax.googleapis.com/ajax/libs/angularjs/1.5.8/angular.min.js"></script>`, "AngularJS", true},
		{"bootstrap stylesheet", `<link rel="stylesheet" href="https://maxcdn.example/bootstrap/3.3.7/css/bootstrap.min.css">`, "Bootstrap", true},
		{"two-part version", `<script src="/vendor/moment.js/2.18/moment.min.js"></script>`, "Moment.js", true},
		{"unversioned", `<script src="/js/jquery.min.js"></script>`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			libs := DetectVulnerableLibraries(mustDoc(t, "<html><head>"+tt.src+"</head></html>"))
			if !tt.found {
				if len(libs) != 0 {
					t.Errorf("expected no findings, got %+v", libs)
				}
				return
			}
			if len(libs) != 1 || libs[0].Name != tt.want {
				t.Fatalf("expected one %s finding, got %+v", tt.want, libs)
			}
			if len(libs[0].Advisory) == 0 || libs[0].Fix == "" {
				t.Errorf("expected advisory ids and a fix, got %+v", libs[0])
			}
		})
	}
}

func TestDetectVulnerableLibraries_ReportsEachVersionOnce(t *testing.T) {
	markup := `<html><head>
<script src="/a/jquery-3.4.1.min.js"></script>
<script src="/b/jquery-3.4.1.js"></script>
</head></html>`
	if libs := DetectVulnerableLibraries(mustDoc(t, markup)); len(libs) != 1 {
		t.Errorf("expected a single jQuery finding, got %d", len(libs))
	}
}

func TestCheckCSRFProtection(t *testing.T) {
	const tokenForm = `<form method="post"><input type="hidden" name="authenticity_token" value="x"></form>`
	const bareForm = `<form method="POST" action="/subscribe"><input name="email"></form>`
	lax := &http.Cookie{Name: "session", SameSite: http.SameSiteLaxMode}

	tests := []struct {
		name    string
		markup  string
		cookies []*http.Cookie
		want    string
	}{
		{"token and samesite", tokenForm, []*http.Cookie{lax}, "strong"},
		{"token only", tokenForm, nil, "moderate"},
		{"samesite only", bareForm, []*http.Cookie{lax}, "moderate"},
		{"meta token", `<meta name="csrf-token" content="abc">` + bareForm, nil, "moderate"},
		{"double submit cookie", bareForm, []*http.Cookie{{Name: "XSRF-TOKEN"}}, "moderate"},
		{"nothing", bareForm, nil, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := CheckCSRFProtection(mustDoc(t, "<html><body>"+tt.markup+"</body></html>"), tt.cookies)
			if check == nil {
				t.Fatal("expected a CSRF check for a page with a POST form")
			}
			if check.Protection != tt.want {
				t.Errorf("expected %s protection, got %s (%+v)", tt.want, check.Protection, check)
			}
		})
	}
}

func TestCheckCSRFProtection_NoPostForms(t *testing.T) {
	doc := mustDoc(t, `<html><body><form action="/search" method="get"><input name="q"></form></body></html>`)
	if check := CheckCSRFProtection(doc, nil); check != nil {
		t.Errorf("expected nil without POST forms, got %+v", check)
	}
}

func TestAnalyzeClientSecurity_DoesNotDeduct(t *testing.T) {
	markup := `<html><head><script src="/js/jquery-1.12.4.min.js"></script></head>
<body><form method="post"><input name="email"></form></body></html>`
	f := newFindings(run.KindFunctionality, 100)
	analyzeClientSecurity(mustDoc(t, markup), nil, f)

	if f.score != 100 {
		t.Errorf("expected client findings to leave the score at 100, got %d", f.score)
	}
	if !hasIssue(f, "jQuery 1.12.4 has known vulnerabilities") {
		t.Errorf("expected jQuery finding, got %v", f.issues)
	}
	if !hasIssue(f, "1 POST form(s) without CSRF protection") {
		t.Errorf("expected CSRF finding, got %v", f.issues)
	}
}
