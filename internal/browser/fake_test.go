package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeElement struct {
	text     string
	attrs    map[string]string
	hidden   bool
	disabled bool
	inputs   int
	clicks   int
	onClick  func() error
}

func (e *fakeElement) Text() string                 { return e.text }
func (e *fakeElement) Attribute(name string) string { return e.attrs[name] }
func (e *fakeElement) Visible() bool                { return !e.hidden }
func (e *fakeElement) Enabled() bool                { return !e.disabled }
func (e *fakeElement) Count(string) int             { return e.inputs }

func (e *fakeElement) Click(time.Duration) error {
	e.clicks++
	if e.onClick != nil {
		return e.onClick()
	}
	return nil
}

// fakePage simulates navigation history, per-URL page text and elements.
type fakePage struct {
	url      string
	history  []string
	bodies   map[string]string
	visible  map[string]bool
	elements map[string]map[string][]*fakeElement
	gotoErr  map[string]error
	fills    map[string]string
	pressed  []string
	jsErrors []string
	modal    bool
	// onSubmit runs when the submit control is clicked or Enter is pressed.
	onSubmit func(p *fakePage)
}

func newFakePage() *fakePage {
	return &fakePage{
		bodies:   make(map[string]string),
		visible:  make(map[string]bool),
		elements: make(map[string]map[string][]*fakeElement),
		gotoErr:  make(map[string]error),
		fills:    make(map[string]string),
	}
}

func (p *fakePage) navigate(url string) {
	p.history = append(p.history, p.url)
	p.url = url
}

func (p *fakePage) add(url, selector string, elems ...*fakeElement) {
	if p.elements[url] == nil {
		p.elements[url] = make(map[string][]*fakeElement)
	}
	p.elements[url][selector] = append(p.elements[url][selector], elems...)
}

func (p *fakePage) Goto(url string, _ time.Duration) error {
	if err := p.gotoErr[url]; err != nil {
		return err
	}
	p.navigate(url)
	return nil
}

func (p *fakePage) GoBack(time.Duration) error {
	if len(p.history) == 0 {
		return errors.New("no history")
	}
	p.url = p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	return nil
}

func (p *fakePage) URL() string                         { return p.url }
func (p *fakePage) Title() (string, error)              { return "", nil }
func (p *fakePage) BodyText() (string, error)           { return p.bodies[p.url], nil }
func (p *fakePage) WaitNetworkIdle(time.Duration) error { return nil }
func (p *fakePage) JSErrors() []string                  { return append([]string(nil), p.jsErrors...) }

func (p *fakePage) Visible(selector string) bool {
	if selector == modalSelector {
		return p.modal
	}
	return p.visible[selector]
}

func (p *fakePage) WaitVisible(selector string, timeout time.Duration) error {
	if p.Visible(selector) {
		return nil
	}
	return errors.New("Timeout " + timeout.String() + " exceeded waiting for " + selector)
}

func (p *fakePage) QueryAll(selector string) ([]Element, error) {
	var out []Element
	for _, e := range p.elements[p.url][selector] {
		out = append(out, e)
	}
	return out, nil
}

func (p *fakePage) Fill(selector, value string) error {
	p.fills[selector] = value
	return nil
}

func (p *fakePage) Click(string, time.Duration) error {
	if p.onSubmit != nil {
		p.onSubmit(p)
	}
	return nil
}

func (p *fakePage) Press(key string) error {
	p.pressed = append(p.pressed, key)
	switch key {
	case "Escape":
		p.modal = false
	case "Enter":
		if p.onSubmit != nil {
			p.onSubmit(p)
		}
	}
	return nil
}

type fakeSession struct {
	page    *fakePage
	cleared bool
	closed  bool
}

func (s *fakeSession) Page() Page { return s.page }

func (s *fakeSession) ClearCookies() error {
	s.cleared = true
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeLauncher struct {
	session *fakeSession
	err     error
}

func (l *fakeLauncher) Launch(context.Context) (Session, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

func newTestAgent(t *testing.T, l Launcher) *Agent {
	a := NewAgent(l, zaptest.NewLogger(t))
	a.sleep = func(context.Context, time.Duration) {}
	return a
}
