// Package browser drives a real browser through a login form and a safe,
// read-mostly exploration of the authenticated UI.
//
// The agent only talks to the narrow Page and Element interfaces below. The
// production implementation sits on playwright-go (see PlaywrightLauncher);
// tests substitute in-memory fakes.
package browser

import (
	"context"
	"time"
)

// Element is a single DOM node matched by a selector.
type Element interface {
	Text() string
	Attribute(name string) string
	Visible() bool
	Enabled() bool
	// Count returns the number of descendants matching selector.
	Count(selector string) int
	Click(timeout time.Duration) error
}

// Page is one browser tab.
type Page interface {
	Goto(url string, timeout time.Duration) error
	GoBack(timeout time.Duration) error
	URL() string
	Title() (string, error)
	BodyText() (string, error)

	// Visible reports whether the first match of selector is visible.
	Visible(selector string) bool
	WaitVisible(selector string, timeout time.Duration) error
	WaitNetworkIdle(timeout time.Duration) error
	QueryAll(selector string) ([]Element, error)

	Fill(selector, value string) error
	Click(selector string, timeout time.Duration) error
	Press(key string) error

	// JSErrors returns the uncaught exceptions and console errors observed
	// since the page was opened.
	JSErrors() []string
}

// Session is an isolated browser context owning a single page.
type Session interface {
	Page() Page
	ClearCookies() error
	Close() error
}

// Launcher opens a fresh session. Sessions are never shared.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Credentials carries the login secret for a single agent run. The password
// is held in a byte slice so it can be zeroed once the run is over.
type Credentials struct {
	Username string
	password []byte
}

// NewCredentials takes ownership of password; the caller must not reuse it.
func NewCredentials(username string, password []byte) *Credentials {
	return &Credentials{Username: username, password: password}
}

// Scrub zeroes the password. It is safe to call more than once and on nil.
func (c *Credentials) Scrub() {
	if c == nil {
		return
	}
	for i := range c.password {
		c.password[i] = 0
	}
	c.password = nil
	c.Username = ""
}

// Scrubbed reports whether the password has been released.
func (c *Credentials) Scrubbed() bool {
	return c == nil || c.password == nil
}

func (c *Credentials) secret() string {
	return string(c.password)
}
