package checker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/siteqa/siteqa/internal/domain/run"
)

func TestSpeedProbe_FastPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer server.Close()

	res, err := NewSpeedProbe(newTestFetcher(server)).Check(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	result := res.(run.SpeedResult)
	if result.Status != run.StatusPass || *result.Score != 95 {
		t.Errorf("expected pass/95, got %s/%v", result.Status, result.Score)
	}
	if result.PageSizeKB != 2 {
		t.Errorf("expected 2KB, got %.2f", result.PageSizeKB)
	}
	if result.HTTPStatus != http.StatusOK {
		t.Errorf("expected HTTP 200, got %d", result.HTTPStatus)
	}
	if !strings.HasPrefix(result.Message, "Page loaded in ") {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestSpeedProbe_UnreachableFailsWithZero(t *testing.T) {
	release := make(chan struct{})
	hanging := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer hanging.Close()
	defer close(release)

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name    string
		server  *httptest.Server
		target  string
		message string
	}{
		{name: "timeout", server: hanging, target: hanging.URL, message: "Request timed out after"},
		{name: "connection refused", server: closed, target: closedURL, message: "Speed check error:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := NewSpeedProbe(newTestFetcher(tt.server))
			probe.timeout = 50 * time.Millisecond
			res, err := probe.Check(context.Background(), tt.target)
			if err != nil {
				t.Fatalf("Check returned error: %v", err)
			}
			h := res.Base()
			if h.Status != run.StatusFail || h.Score == nil || *h.Score != 0 {
				t.Errorf("expected fail/0, got %s/%v", h.Status, h.Score)
			}
			if !strings.HasPrefix(h.Message, tt.message) {
				t.Errorf("expected message starting with %q, got %q", tt.message, h.Message)
			}
		})
	}
}

func TestSpeedProbe_BlockedOriginIsError(t *testing.T) {
	probe := NewSpeedProbe(NewFetcher(http.DefaultClient, blockAll{}))
	if _, err := probe.Check(context.Background(), "http://10.0.0.1/"); err == nil {
		t.Fatal("expected blocked origin to be returned as an error")
	}
}

func TestSpeedScore(t *testing.T) {
	tests := []struct {
		ms     int64
		status run.Status
		score  int
	}{
		{200, run.StatusPass, 95},
		{999, run.StatusPass, 95},
		{1000, run.StatusWarning, 70},
		{2499, run.StatusWarning, 70},
		{2500, run.StatusWarning, 45},
		{4999, run.StatusWarning, 45},
		{5000, run.StatusFail, 20},
	}
	for _, tt := range tests {
		status, score := speedScore(tt.ms)
		if status != tt.status || score != tt.score {
			t.Errorf("speedScore(%d): expected %s/%d, got %s/%d", tt.ms, tt.status, tt.score, status, score)
		}
	}
}
