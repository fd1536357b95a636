package checker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siteqa/siteqa/internal/shared/constants"
)

func TestProbe_HeadNotAllowedFallsBackToGet(t *testing.T) {
	var gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gets.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out := NewProber(newTestFetcher(server), time.Second).Probe(context.Background(), server.URL+"/asset")
	if out.Broken {
		t.Errorf("expected GET fallback to succeed, got %+v", out)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", out.StatusCode)
	}
	if gets.Load() != 1 {
		t.Errorf("expected exactly 1 GET, got %d", gets.Load())
	}
}

func TestProbe_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		broken bool
		err    string
	}{
		{"ok", http.StatusOK, false, ""},
		{"redirect target ok", http.StatusNoContent, false, ""},
		{"not found", http.StatusNotFound, true, "HTTP 404"},
		{"server error", http.StatusBadGateway, true, "HTTP 502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			out := NewProber(newTestFetcher(server), time.Second).Probe(context.Background(), server.URL)
			if out.Broken != tt.broken {
				t.Errorf("expected broken=%v, got %v", tt.broken, out.Broken)
			}
			if out.Err != tt.err {
				t.Errorf("expected error %q, got %q", tt.err, out.Err)
			}
		})
	}
}

func TestProbe_TimeoutIsFinal(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	out := NewProber(newTestFetcher(server), 50*time.Millisecond).Probe(context.Background(), server.URL)
	if out.StatusCode != constants.StatusTimeout {
		t.Errorf("expected timeout sentinel, got %d", out.StatusCode)
	}
	if out.Err != "Timeout" {
		t.Errorf("expected Timeout error, got %q", out.Err)
	}

	finding := out.Finding(server.URL, "page")
	if finding.StatusCode != nil {
		t.Errorf("expected nil status code in finding, got %d", *finding.StatusCode)
	}
}

func TestProbe_BlockedOrigin(t *testing.T) {
	out := NewProber(NewFetcher(nil, blockAll{}), time.Second).Probe(context.Background(), "http://169.254.169.254/")
	if !out.Broken || out.Err != "Blocked origin" {
		t.Errorf("expected blocked origin finding, got %+v", out)
	}
}
