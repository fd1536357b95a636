package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/siteqa/siteqa/internal/domain/run"
	"go.uber.org/zap/zaptest"
)

func TestEventsFor(t *testing.T) {
	prev := func(n int) *int { return &n }

	tests := []struct {
		name      string
		outcome   run.Outcome
		threshold int
		want      []EventType
	}{
		{
			name:    "completed first run",
			outcome: run.Outcome{Status: run.RunStatusCompleted, Score: 80},
			want:    []EventType{EventTestComplete},
		},
		{
			name:    "failed run",
			outcome: run.Outcome{Status: run.RunStatusFailed, Score: 10, PreviousScore: prev(90)},
			want:    []EventType{EventTestFailed},
		},
		{
			name:      "drop beyond threshold",
			outcome:   run.Outcome{Status: run.RunStatusCompleted, Score: 70, PreviousScore: prev(80)},
			threshold: 5,
			want:      []EventType{EventTestComplete, EventScoreDrop},
		},
		{
			name:      "drop equal to threshold",
			outcome:   run.Outcome{Status: run.RunStatusCompleted, Score: 75, PreviousScore: prev(80)},
			threshold: 5,
			want:      []EventType{EventTestComplete},
		},
		{
			name:      "score improved",
			outcome:   run.Outcome{Status: run.RunStatusCompleted, Score: 95, PreviousScore: prev(80)},
			threshold: 5,
			want:      []EventType{EventTestComplete},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EventsFor(tt.outcome, tt.threshold)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestWebhookNotifier_Delivers(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("failed to decode event: %v", err)
		}
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(Config{WebhookURLs: []string{srv.URL}}, zaptest.NewLogger(t))
	previous := 90
	n.Notify(run.Outcome{
		RunID:         "run-1",
		URL:           "https://site.example",
		Status:        run.RunStatusCompleted,
		Score:         60,
		PreviousScore: &previous,
	})
	n.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventTestComplete || events[1].Type != EventScoreDrop {
		t.Errorf("unexpected event order %s, %s", events[0].Type, events[1].Type)
	}
	if events[0].Run.RunID != "run-1" || events[0].ID == "" {
		t.Errorf("unexpected event payload %+v", events[0])
	}
}

func TestWebhookNotifier_FailuresAreSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(Config{WebhookURLs: []string{srv.URL, "http://127.0.0.1:1/unreachable"}}, zaptest.NewLogger(t))
	n.Notify(run.Outcome{RunID: "run-1", Status: run.RunStatusFailed})
	n.Close()
}

func TestWebhookNotifier_NoWebhooksLogsOnly(t *testing.T) {
	n := NewWebhookNotifier(Config{}, zaptest.NewLogger(t))
	n.Notify(run.Outcome{RunID: "run-1", Status: run.RunStatusCompleted, Score: 100})
	n.Close()
	n.Close()
}
