package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/siteqa/siteqa/internal/domain/run"
)

const (
	loginURL     = "https://site.example/login"
	dashboardURL = "https://site.example/dashboard"
)

// loginPage returns a page with a standard email/password form.
func loginPage(onSubmit func(p *fakePage)) *fakePage {
	p := newFakePage()
	p.visible[`input[type="email"]`] = true
	p.visible[`input[type="password"]`] = true
	p.visible[`button[type="submit"]`] = true
	p.bodies[loginURL] = "Sign in to continue"
	p.onSubmit = onSubmit
	return p
}

func credentials() *Credentials {
	return NewCredentials("qa@site.example", []byte("hunter2"))
}

func TestAgent_RedirectToDashboardSucceeds(t *testing.T) {
	page := loginPage(func(p *fakePage) {
		p.navigate(dashboardURL)
	})
	page.bodies[dashboardURL] = "Welcome back"
	session := &fakeSession{page: page}
	creds := credentials()

	report := newTestAgent(t, &fakeLauncher{session: session}).Run(context.Background(), LoginRequest{
		TargetURL:   "https://site.example",
		LoginURL:    loginURL,
		Credentials: creds,
	})

	if !report.Login.Success {
		t.Fatalf("expected success, got %q", report.Login.Message)
	}
	if report.Login.Method != MethodRedirect {
		t.Errorf("expected method %s, got %s", MethodRedirect, report.Login.Method)
	}
	if report.Login.FinalURL != dashboardURL {
		t.Errorf("expected final URL %s, got %s", dashboardURL, report.Login.FinalURL)
	}
	if report.Login.Status != run.StatusPass {
		t.Errorf("expected pass status, got %s", report.Login.Status)
	}
	if page.fills[`input[type="email"]`] != "qa@site.example" || page.fills[`input[type="password"]`] != "hunter2" {
		t.Errorf("unexpected fills %v", page.fills)
	}
	if report.PostLogin == nil {
		t.Fatal("expected a post-login report after success")
	}
	if report.JSErrors == nil || report.JSErrors.Status != run.StatusPass {
		t.Errorf("expected a passing browser JS error result, got %+v", report.JSErrors)
	}
	if !creds.Scrubbed() {
		t.Error("expected credentials to be scrubbed")
	}
	if !session.cleared || !session.closed {
		t.Errorf("expected session torn down, cleared=%v closed=%v", session.cleared, session.closed)
	}
}

func TestAgent_InvalidPasswordFails(t *testing.T) {
	page := loginPage(func(p *fakePage) {
		p.bodies[loginURL] = "Invalid password. Try again."
	})
	session := &fakeSession{page: page}

	report := newTestAgent(t, &fakeLauncher{session: session}).Run(context.Background(), LoginRequest{
		TargetURL:   "https://site.example",
		LoginURL:    loginURL,
		Credentials: credentials(),
	})

	if report.Login.Success {
		t.Fatal("expected failure when the page stays on login with an error")
	}
	if report.Login.Method != MethodErrorKeywords {
		t.Errorf("expected method %s, got %s", MethodErrorKeywords, report.Login.Method)
	}
	if report.PostLogin != nil {
		t.Error("expected no exploration after a failed login")
	}
	if !session.closed {
		t.Error("expected session closed")
	}
}

func TestAgent_UnclearResultIsFailure(t *testing.T) {
	page := loginPage(nil)
	report := newTestAgent(t, &fakeLauncher{session: &fakeSession{page: page}}).Run(context.Background(), LoginRequest{
		LoginURL:    loginURL,
		Credentials: credentials(),
	})
	if report.Login.Success || report.Login.Method != MethodAmbiguous {
		t.Errorf("expected ambiguous failure, got %+v", report.Login)
	}
	if !strings.HasPrefix(report.Login.Message, "Login result unclear") {
		t.Errorf("unexpected message %q", report.Login.Message)
	}
}

func TestAgent_NoUsernameField(t *testing.T) {
	page := newFakePage()
	page.visible[`input[type="password"]`] = true
	session := &fakeSession{page: page}
	creds := credentials()

	report := newTestAgent(t, &fakeLauncher{session: session}).Run(context.Background(), LoginRequest{
		LoginURL:    loginURL,
		Credentials: creds,
	})

	if report.Login.Message != "Could not find username/email input field on the page" {
		t.Errorf("unexpected message %q", report.Login.Message)
	}
	if report.Login.Method != MethodFieldDetection {
		t.Errorf("expected method %s, got %s", MethodFieldDetection, report.Login.Method)
	}
	if len(page.fills) != 0 {
		t.Errorf("expected nothing filled, got %v", page.fills)
	}
	if !creds.Scrubbed() || !session.cleared || !session.closed {
		t.Error("expected credentials scrubbed and session torn down")
	}
}

func TestAgent_NavigationTimeout(t *testing.T) {
	page := loginPage(nil)
	page.gotoErr[loginURL] = errors.New("Timeout 90000ms exceeded.")
	session := &fakeSession{page: page}

	report := newTestAgent(t, &fakeLauncher{session: session}).Run(context.Background(), LoginRequest{
		LoginURL:    loginURL,
		Credentials: credentials(),
	})

	if report.Login.Message != "Login timed out before completing." {
		t.Errorf("unexpected message %q", report.Login.Message)
	}
	if report.Login.Method != MethodException {
		t.Errorf("expected method %s, got %s", MethodException, report.Login.Method)
	}
	if !session.closed {
		t.Error("expected session closed after an aborted login")
	}
}

func TestAgent_LaunchFailure(t *testing.T) {
	creds := credentials()
	report := newTestAgent(t, &fakeLauncher{err: errors.New("no chromium")}).Run(context.Background(), LoginRequest{
		LoginURL:    loginURL,
		Credentials: creds,
	})
	if report.Login.Success || report.Login.Message != "Login automation encountered an issue." {
		t.Errorf("unexpected outcome %+v", report.Login)
	}
	if report.JSErrors != nil {
		t.Error("expected no JS error result without a browser")
	}
	if !creds.Scrubbed() {
		t.Error("expected credentials scrubbed after launch failure")
	}
}

func TestAgent_SuccessIndicator(t *testing.T) {
	tests := []struct {
		name      string
		visible   bool
		redirect  bool
		success   bool
		wantMatch string
	}{
		{"indicator found", true, false, true, "success indicator found"},
		{"redirect without indicator", false, true, true, "redirected to"},
		{"neither", false, false, false, "success indicator not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := loginPage(func(p *fakePage) {
				if tt.redirect {
					p.navigate(dashboardURL)
				}
			})
			page.visible["#account-menu"] = tt.visible

			report := newTestAgent(t, &fakeLauncher{session: &fakeSession{page: page}}).Run(context.Background(), LoginRequest{
				LoginURL:         loginURL,
				Credentials:      credentials(),
				SuccessIndicator: "#account-menu",
			})
			if report.Login.Success != tt.success {
				t.Errorf("expected success=%v, got %v (%s)", tt.success, report.Login.Success, report.Login.Message)
			}
			if !strings.Contains(report.Login.Message, tt.wantMatch) {
				t.Errorf("expected message containing %q, got %q", tt.wantMatch, report.Login.Message)
			}
		})
	}
}

func TestAgent_PressesEnterWithoutSubmitButton(t *testing.T) {
	page := loginPage(func(p *fakePage) {
		p.navigate(dashboardURL)
	})
	page.visible[`button[type="submit"]`] = false

	report := newTestAgent(t, &fakeLauncher{session: &fakeSession{page: page}}).Run(context.Background(), LoginRequest{
		LoginURL:    loginURL,
		Credentials: credentials(),
	})
	if !report.Login.Success {
		t.Fatalf("expected success, got %q", report.Login.Message)
	}
	if len(page.pressed) == 0 || page.pressed[0] != "Enter" {
		t.Errorf("expected Enter to be pressed, got %v", page.pressed)
	}
}

func TestAgent_ExplicitSelectors(t *testing.T) {
	page := newFakePage()
	page.visible["#user"] = true
	page.visible["#pass"] = true
	page.visible["#go"] = true
	page.onSubmit = func(p *fakePage) { p.navigate(dashboardURL) }

	report := newTestAgent(t, &fakeLauncher{session: &fakeSession{page: page}}).Run(context.Background(), LoginRequest{
		LoginURL:         loginURL,
		Credentials:      credentials(),
		UsernameSelector: "#user",
		PasswordSelector: "#pass",
		SubmitSelector:   "#go",
	})
	if !report.Login.Success {
		t.Fatalf("expected success, got %q", report.Login.Message)
	}
	if page.fills["#user"] == "" || page.fills["#pass"] == "" {
		t.Errorf("expected explicit selectors to be filled, got %v", page.fills)
	}
}

func TestJudge(t *testing.T) {
	tests := []struct {
		name    string
		ev      evidence
		success bool
		method  string
	}{
		{"redirect wins over dashboard", evidence{redirected: true, hasDashboard: true}, true, MethodRedirect},
		{"redirect with error text", evidence{redirected: true, hasError: true}, false, MethodErrorKeywords},
		{"error text", evidence{hasError: true, hasDashboard: true}, false, MethodErrorKeywords},
		{"dashboard text", evidence{hasDashboard: true}, true, MethodDashboard},
		{"nothing", evidence{}, false, MethodAmbiguous},
		{"indicator found", evidence{indicatorSupplied: true, indicatorFound: true}, true, MethodSuccessIndicator},
		{"indicator missing but redirected", evidence{indicatorSupplied: true, redirected: true}, true, MethodRedirect},
		{"indicator missing ignores dashboard text", evidence{indicatorSupplied: true, hasDashboard: true}, false, MethodSuccessIndicator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := judge(tt.ev)
			if out.Success != tt.success || out.Method != tt.method {
				t.Errorf("expected %v/%s, got %v/%s", tt.success, tt.method, out.Success, out.Method)
			}
		})
	}
}

func TestSameLocation(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://site.example/login", "https://site.example/login/", true},
		{"https://site.example/login", "https://SITE.example/login", true},
		{"https://site.example/login", "https://site.example/login#top", true},
		{"https://site.example/login", "https://site.example/dashboard", false},
		{"https://site.example/login", "https://site.example/login?error=1", false},
	}
	for _, tt := range tests {
		if got := sameLocation(tt.a, tt.b); got != tt.want {
			t.Errorf("sameLocation(%s, %s): expected %v, got %v", tt.a, tt.b, tt.want, got)
		}
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := map[string]string{
		"Timeout 90000ms exceeded.":               "Login timed out before completing.",
		"context deadline exceeded":               "Login timed out before completing.",
		"net::ERR_NAME_NOT_RESOLVED at https://x": "Could not reach the login page.",
		"host unreachable":                        "Could not reach the login page.",
		"target closed":                           "Login automation encountered an issue.",
	}
	for msg, want := range tests {
		if got := classifyFailure(errors.New(msg)); got != want {
			t.Errorf("classifyFailure(%q): expected %q, got %q", msg, want, got)
		}
	}
}

func TestCredentialsScrub(t *testing.T) {
	secret := []byte("s3cret")
	c := NewCredentials("user", secret)
	c.Scrub()
	for i, b := range secret {
		if b != 0 {
			t.Fatalf("expected byte %d zeroed, got %q", i, b)
		}
	}
	if !c.Scrubbed() || c.Username != "" {
		t.Error("expected credentials cleared")
	}
	c.Scrub()

	var nilCreds *Credentials
	nilCreds.Scrub()
}
