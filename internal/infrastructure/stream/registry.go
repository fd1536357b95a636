// Package stream fans run snapshots out to live subscribers. Each run id
// keeps its latest snapshot so late subscribers start from current state.
package stream

import (
	"sort"
	"sync"
	"time"

	"github.com/siteqa/siteqa/internal/domain/run"
	"go.uber.org/zap"
)

const (
	defaultMaxRuns = 1000
	subscriberBuf  = 16
)

// DoneEvent is the final message of a run stream.
type DoneEvent struct {
	Done         bool          `json:"done"`
	TestID       string        `json:"test_id"`
	OverallScore *int          `json:"overall_score"`
	Summary      *string       `json:"summary"`
	Status       run.RunStatus `json:"status"`
}

// DoneOf builds the done event of a terminal snapshot.
func DoneOf(snap run.Snapshot) DoneEvent {
	return DoneEvent{
		Done:         true,
		TestID:       snap.ID,
		OverallScore: snap.OverallScore,
		Summary:      snap.Summary,
		Status:       snap.Status,
	}
}

type entry struct {
	latest     run.Snapshot
	subs       map[chan run.Snapshot]struct{}
	finishedAt time.Time
}

// Registry tracks the latest snapshot and subscriber set of every live or
// recently finished run.
type Registry struct {
	mu      sync.Mutex
	runs    map[string]*entry
	maxRuns int
	logger  *zap.Logger
}

// NewRegistry creates a registry. A nil logger disables logging.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		runs:    make(map[string]*entry),
		maxRuns: defaultMaxRuns,
		logger:  logger,
	}
}

// SetMaxRuns configures how many runs are retained in memory
func (r *Registry) SetMaxRuns(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > 0 {
		r.maxRuns = n
	}
}

// Publish records snap as the latest state of its run and delivers it to
// every subscriber. A terminal snapshot ends all streams of that run.
func (r *Registry) Publish(snap run.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.runs[snap.ID]
	if !ok {
		e = &entry{subs: make(map[chan run.Snapshot]struct{})}
		r.runs[snap.ID] = e
	}
	if e.latest.Terminal() {
		return
	}
	e.latest = snap

	for ch := range e.subs {
		r.deliver(ch, snap)
	}

	if snap.Terminal() {
		for ch := range e.subs {
			close(ch)
		}
		e.subs = nil
		e.finishedAt = time.Now()
		r.prune()
	}
}

// deliver never blocks. When a subscriber's buffer is full the oldest
// pending snapshot is discarded; snapshots are cumulative so the newest
// one still carries every result.
func (r *Registry) deliver(ch chan run.Snapshot, snap run.Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
		r.logger.Warn("Dropped snapshot for slow subscriber", zap.String("run_id", snap.ID))
	}
}

// Subscribe returns a channel that first yields the run's latest snapshot
// and then every subsequent one. The channel is closed once the run is
// terminal. ok is false when the registry does not know the run.
func (r *Registry) Subscribe(id string) (<-chan run.Snapshot, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.runs[id]
	if !ok {
		return nil, func() {}, false
	}

	ch := make(chan run.Snapshot, subscriberBuf)
	ch <- e.latest
	if e.latest.Terminal() {
		close(ch)
		return ch, func() {}, true
	}

	e.subs[ch] = struct{}{}
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := e.subs[ch]; ok {
			delete(e.subs, ch)
			close(ch)
		}
	}, true
}

// Latest returns the most recent snapshot of a run.
func (r *Registry) Latest(id string) (run.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.runs[id]
	if !ok {
		return run.Snapshot{}, false
	}
	return e.latest, true
}

// Len reports how many runs are tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// prune removes the oldest finished runs once the registry is over its
// limit. Live runs are never removed. Caller holds the lock.
func (r *Registry) prune() {
	if len(r.runs) <= r.maxRuns {
		return
	}

	type finished struct {
		id   string
		time time.Time
	}
	var done []finished
	for id, e := range r.runs {
		if e.latest.Terminal() {
			done = append(done, finished{id: id, time: e.finishedAt})
		}
	}
	sort.Slice(done, func(i, j int) bool {
		return done[i].time.Before(done[j].time)
	})

	toRemove := min(len(r.runs)-r.maxRuns, len(done))
	for i := 0; i < toRemove; i++ {
		delete(r.runs, done[i].id)
	}
}
