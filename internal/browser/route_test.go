package browser

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/guard"
)

// hostValidator rejects the listed hosts the way the origin guard does.
type hostValidator struct {
	blocked map[string]bool

	mu    sync.Mutex
	calls int
}

func (v *hostValidator) Validate(_ context.Context, rawURL string) (guard.Origin, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	u, err := url.Parse(rawURL)
	if err != nil {
		return guard.Origin{}, err
	}
	if v.blocked[u.Hostname()] {
		return guard.Origin{}, &guard.BlockedOriginError{URL: rawURL, Reason: "address in blocked range"}
	}
	return guard.Origin{Scheme: u.Scheme, Host: u.Hostname()}, nil
}

func TestRequestGuard_Check(t *testing.T) {
	v := &hostValidator{blocked: map[string]bool{"169.254.169.254": true}}
	g := newRequestGuard(v)

	tests := []struct {
		name    string
		url     string
		allowed bool
	}{
		{"public page", "https://site.example/app.js", true},
		{"metadata endpoint", "http://169.254.169.254/latest/meta-data", false},
		{"inline data", "data:image/png;base64,AAAA", true},
		{"blob", "blob:https://site.example/3f2a", true},
		{"local file", "file:///etc/passwd", false},
		{"websocket", "ws://site.example/socket", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.check(context.Background(), tt.url)
			if tt.allowed && err != nil {
				t.Errorf("expected %s allowed, got %v", tt.url, err)
			}
			if !tt.allowed && err == nil {
				t.Errorf("expected %s refused", tt.url)
			}
		})
	}
}

func TestRequestGuard_CachesPerHost(t *testing.T) {
	v := &hostValidator{blocked: map[string]bool{"10.0.0.5": true}}
	g := newRequestGuard(v)

	for _, u := range []string{"https://site.example/a", "https://site.example/b", "https://SITE.example/c"} {
		if err := g.check(context.Background(), u); err != nil {
			t.Fatalf("expected %s allowed, got %v", u, err)
		}
	}
	for i := 0; i < 2; i++ {
		var blocked *guard.BlockedOriginError
		if err := g.check(context.Background(), "http://10.0.0.5/admin"); !errors.As(err, &blocked) {
			t.Fatalf("expected BlockedOriginError, got %v", err)
		}
	}
	if v.calls != 2 {
		t.Errorf("expected one lookup per host, got %d", v.calls)
	}
}

func TestAgent_BlockedLoginURLIsRefused(t *testing.T) {
	page := loginPage(nil)
	session := &fakeSession{page: page}
	creds := credentials()
	v := &hostValidator{blocked: map[string]bool{"169.254.169.254": true}}

	a := newTestAgent(t, &fakeLauncher{session: session})
	a.validator = v
	report := a.Run(context.Background(), LoginRequest{
		TargetURL:   "https://site.example",
		LoginURL:    "http://169.254.169.254/login",
		Credentials: creds,
	})

	if report.Login.Success {
		t.Fatal("expected blocked login URL to fail")
	}
	if report.Login.Method != MethodBlockedOrigin {
		t.Errorf("expected method %s, got %s", MethodBlockedOrigin, report.Login.Method)
	}
	if page.url != "" || len(page.history) != 0 {
		t.Errorf("expected no navigation, page is at %q", page.url)
	}
	if len(page.fills) != 0 {
		t.Errorf("expected no credentials typed, got %v", page.fills)
	}
	if !creds.Scrubbed() {
		t.Error("expected credentials to be scrubbed")
	}
}

func TestExplore_BlockedNavLinkIsNotVisited(t *testing.T) {
	const internalURL = "https://intranet.site.example/admin"

	page := newFakePage()
	page.navigate(dashboardURL)
	page.add(dashboardURL, "nav a[href]",
		link(internalURL, "Admin"),
		link("/projects", "Projects"),
	)

	a := newTestAgent(t, nil)
	a.validator = &hostValidator{blocked: map[string]bool{"intranet.site.example": true}}
	res := a.explore(context.Background(), page, []string{"site.example", "intranet.site.example"})

	for _, u := range append(page.history, page.url) {
		if u == internalURL {
			t.Fatalf("expected %s never visited, history %v", internalURL, page.history)
		}
	}

	var admin *run.UIActionResult
	for i := range res.Actions {
		if res.Actions[i].Label == "Admin" {
			admin = &res.Actions[i]
		}
	}
	if admin == nil {
		t.Fatal("expected the refused link to be recorded")
	}
	if admin.Status != run.StatusSkip || admin.Error == "" {
		t.Errorf("expected skip with an error, got %s %q", admin.Status, admin.Error)
	}
	if res.Tally.LinksPassed != 1 {
		t.Errorf("expected the safe link to pass, got %d", res.Tally.LinksPassed)
	}
}
