package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/siteqa/siteqa/internal/checker"
)

// requestGuard vets every request a browser session makes against the
// origin guard. Verdicts are cached per scheme and host for the life of
// one session.
type requestGuard struct {
	validator checker.Validator

	mu       sync.Mutex
	verdicts map[string]error
}

func newRequestGuard(v checker.Validator) *requestGuard {
	return &requestGuard{validator: v, verdicts: make(map[string]error)}
}

// check returns nil when raw may be loaded. In-document schemes never touch
// the network and pass; any other non-http scheme is refused.
func (g *requestGuard) check(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("unparseable request url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "data", "blob", "about":
		return nil
	case "http", "https":
	default:
		return fmt.Errorf("scheme %q is not allowed", scheme)
	}

	key := scheme + "://" + strings.ToLower(u.Host)
	g.mu.Lock()
	verdict, ok := g.verdicts[key]
	g.mu.Unlock()
	if ok {
		return verdict
	}

	_, verdict = g.validator.Validate(ctx, raw)
	if ctx.Err() != nil {
		// A cancelled lookup says nothing about the host.
		return verdict
	}
	g.mu.Lock()
	g.verdicts[key] = verdict
	g.mu.Unlock()
	return verdict
}
