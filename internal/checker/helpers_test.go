package checker

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteqa/siteqa/internal/guard"
)

// allowAll lets loopback test servers through.
type allowAll struct{}

func (allowAll) Validate(_ context.Context, _ string) (guard.Origin, error) {
	return guard.Origin{}, nil
}

// blockAll rejects every URL the way the guard does.
type blockAll struct{}

func (blockAll) Validate(_ context.Context, rawURL string) (guard.Origin, error) {
	return guard.Origin{}, &guard.BlockedOriginError{URL: rawURL, Reason: "blocked for test"}
}

func newTestFetcher(server *httptest.Server) *Fetcher {
	return NewFetcher(server.Client(), allowAll{})
}

func mustDoc(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	return doc
}

func hasIssue(f *findings, substr string) bool {
	for _, is := range f.issues {
		if strings.Contains(is.Message, substr) {
			return true
		}
	}
	return false
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
