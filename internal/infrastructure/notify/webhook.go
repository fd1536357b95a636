// Package notify delivers run outcome events to operator-configured
// webhooks from a background worker.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/shared/constants"
	"go.uber.org/zap"
)

// EventType names an outbound notification.
type EventType string

const (
	EventTestComplete EventType = "test_complete"
	EventTestFailed   EventType = "test_failed"
	EventScoreDrop    EventType = "score_drop"
)

const (
	defaultQueueSize = 64
	deliveryTimeout  = 10 * time.Second
)

// Event is the JSON body posted to webhooks.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Run       run.Outcome `json:"run"`
}

// Config configures the webhook notifier.
type Config struct {
	WebhookURLs        []string
	ScoreDropThreshold int
	QueueSize          int
	Client             *http.Client
}

// EventsFor derives the events of a finished run. A completed run whose
// score fell more than threshold points below the previous completed run of
// the same URL also yields a score_drop event.
func EventsFor(o run.Outcome, threshold int) []EventType {
	if o.Status != run.RunStatusCompleted {
		return []EventType{EventTestFailed}
	}
	events := []EventType{EventTestComplete}
	if o.PreviousScore != nil && o.Score < *o.PreviousScore-threshold {
		events = append(events, EventScoreDrop)
	}
	return events
}

// WebhookNotifier queues outcomes and posts them from a single worker.
// Notify never blocks and delivery failures are only logged.
type WebhookNotifier struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	queue  chan Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewWebhookNotifier starts the delivery worker.
func NewWebhookNotifier(cfg Config, logger *zap.Logger) *WebhookNotifier {
	if cfg.ScoreDropThreshold <= 0 {
		cfg.ScoreDropThreshold = constants.DefaultScoreDropThreshold
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: deliveryTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	n := &WebhookNotifier{
		cfg:    cfg,
		client: client,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go n.worker()
	return n
}

// Notify enqueues the events of a finished run. Events arriving after
// Close are discarded.
func (n *WebhookNotifier) Notify(o run.Outcome) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	for _, typ := range EventsFor(o, n.cfg.ScoreDropThreshold) {
		ev := Event{
			ID:        uuid.NewString(),
			Type:      typ,
			Timestamp: time.Now().UTC(),
			Run:       o,
		}
		select {
		case n.queue <- ev:
		default:
			n.logger.Warn("Notification queue full, dropping event",
				zap.String("event", string(typ)),
				zap.String("run_id", o.RunID))
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (n *WebhookNotifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	<-n.done
}

func (n *WebhookNotifier) worker() {
	defer close(n.done)
	for ev := range n.queue {
		n.logger.Info("Run event",
			zap.String("event", string(ev.Type)),
			zap.String("run_id", ev.Run.RunID),
			zap.String("url", ev.Run.URL),
			zap.Int("score", ev.Run.Score))

		for _, target := range n.cfg.WebhookURLs {
			if err := n.post(target, ev); err != nil {
				n.logger.Warn("Webhook delivery failed",
					zap.String("webhook", target),
					zap.String("event", string(ev.Type)),
					zap.Error(err))
			}
		}
	}
}

func (n *WebhookNotifier) post(target string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "siteqa-notifier")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
