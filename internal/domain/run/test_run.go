package run

import (
	"bytes"
	"encoding/json"
	"time"

	sharedErrors "github.com/siteqa/siteqa/internal/shared/errors"
)

// TestRun is the aggregate root of one execution of the engine against a URL.
// The orchestrator that created it is its only writer.
type TestRun struct {
	id           string
	url          string
	status       RunStatus
	startedAt    time.Time
	finishedAt   time.Time
	results      ResultSet
	overallScore *int
	summary      string
	errMsg       string
}

// RunStatus represents the lifecycle state of a test run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// NewTestRun creates a pending run for url.
func NewTestRun(id, url string) (*TestRun, error) {
	if id == "" {
		return nil, sharedErrors.ErrEmptyRunID
	}
	if url == "" {
		return nil, sharedErrors.ErrEmptyURL
	}
	return &TestRun{
		id:        id,
		url:       url,
		status:    RunStatusPending,
		startedAt: time.Now().UTC(),
	}, nil
}

// Reconstruct creates a test run from persisted data
func Reconstruct(id, url string, status RunStatus, startedAt, finishedAt time.Time,
	results []CheckResult, overallScore *int, summary, errMsg string) *TestRun {
	tr := &TestRun{
		id:           id,
		url:          url,
		status:       status,
		startedAt:    startedAt,
		finishedAt:   finishedAt,
		overallScore: overallScore,
		summary:      summary,
		errMsg:       errMsg,
	}
	for _, r := range results {
		tr.results.put(r)
	}
	return tr
}

// Business methods

// Start marks the run as running
func (tr *TestRun) Start() error {
	if tr.status != RunStatusPending {
		return sharedErrors.ErrInvalidTransition
	}
	tr.status = RunStatusRunning
	tr.startedAt = time.Now().UTC()
	return nil
}

// Record stores a check result under its kind. Recording a kind twice
// replaces the earlier value in place.
func (tr *TestRun) Record(result CheckResult) error {
	if result == nil {
		return sharedErrors.ErrNilResult
	}
	if tr.status.IsTerminal() {
		return sharedErrors.ErrRunTerminal
	}
	if tr.status != RunStatusRunning {
		return sharedErrors.ErrInvalidTransition
	}
	tr.results.put(result)
	return nil
}

// Complete marks the run as completed with its final score
func (tr *TestRun) Complete(score int, summary string) error {
	if tr.status != RunStatusRunning {
		return sharedErrors.ErrInvalidTransition
	}
	tr.finish(RunStatusCompleted, score, summary)
	return nil
}

// Fail marks the run as failed, keeping whatever partial score was computed
func (tr *TestRun) Fail(score int, summary, reason string) error {
	if tr.status.IsTerminal() {
		return sharedErrors.ErrRunTerminal
	}
	tr.finish(RunStatusFailed, score, summary)
	tr.errMsg = reason
	return nil
}

func (tr *TestRun) finish(status RunStatus, score int, summary string) {
	tr.status = status
	tr.overallScore = ScoreOf(score)
	tr.summary = summary
	tr.finishedAt = time.Now().UTC()
}

// Getters

func (tr *TestRun) ID() string {
	return tr.id
}

func (tr *TestRun) URL() string {
	return tr.url
}

func (tr *TestRun) Status() RunStatus {
	return tr.status
}

func (tr *TestRun) IsTerminal() bool {
	return tr.status.IsTerminal()
}

func (tr *TestRun) StartedAt() time.Time {
	return tr.startedAt
}

func (tr *TestRun) FinishedAt() time.Time {
	return tr.finishedAt
}

func (tr *TestRun) OverallScore() *int {
	if tr.overallScore == nil {
		return nil
	}
	return ScoreOf(*tr.overallScore)
}

func (tr *TestRun) Summary() string {
	return tr.summary
}

func (tr *TestRun) Error() string {
	return tr.errMsg
}

// Results returns the recorded results in insertion order.
func (tr *TestRun) Results() []CheckResult {
	return tr.results.List()
}

// Result looks up the result recorded for kind.
func (tr *TestRun) Result(kind Kind) (CheckResult, bool) {
	return tr.results.Get(kind)
}

// Snapshot returns an immutable copy suitable for broadcast and encoding.
func (tr *TestRun) Snapshot() Snapshot {
	snap := Snapshot{
		ID:           tr.id,
		URL:          tr.url,
		Status:       tr.status,
		StartedAt:    tr.startedAt,
		Results:      tr.results.clone(),
		OverallScore: tr.OverallScore(),
		Error:        tr.errMsg,
	}
	if !tr.finishedAt.IsZero() {
		finished := tr.finishedAt
		snap.FinishedAt = &finished
	}
	if tr.summary != "" {
		summary := tr.summary
		snap.Summary = &summary
	}
	return snap
}

// Snapshot is a point-in-time view of a TestRun.
type Snapshot struct {
	ID           string     `json:"id" yaml:"id"`
	URL          string     `json:"url" yaml:"url"`
	Status       RunStatus  `json:"status" yaml:"status"`
	StartedAt    time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt   *time.Time `json:"finished_at" yaml:"finished_at"`
	Results      ResultSet  `json:"results" yaml:"results"`
	OverallScore *int       `json:"overall_score" yaml:"overall_score"`
	Summary      *string    `json:"summary" yaml:"summary"`
	Error        string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Terminal reports whether the snapshot is of a finished run.
func (s Snapshot) Terminal() bool {
	return s.Status.IsTerminal()
}

// Restore rebuilds an independent TestRun from a snapshot.
func (s Snapshot) Restore() *TestRun {
	var finished time.Time
	if s.FinishedAt != nil {
		finished = *s.FinishedAt
	}
	var summary string
	if s.Summary != nil {
		summary = *s.Summary
	}
	return Reconstruct(s.ID, s.URL, s.Status, s.StartedAt, finished,
		s.Results.List(), s.OverallScore, summary, s.Error)
}

// ResultSet is an insertion-ordered map of check kind to result.
type ResultSet struct {
	order []Kind
	items map[Kind]CheckResult
}

func (rs *ResultSet) put(r CheckResult) {
	if rs.items == nil {
		rs.items = make(map[Kind]CheckResult)
	}
	if _, ok := rs.items[r.Kind()]; !ok {
		rs.order = append(rs.order, r.Kind())
	}
	rs.items[r.Kind()] = r
}

func (rs ResultSet) clone() ResultSet {
	out := ResultSet{
		order: append([]Kind(nil), rs.order...),
		items: make(map[Kind]CheckResult, len(rs.items)),
	}
	for k, v := range rs.items {
		out.items[k] = v
	}
	return out
}

// Get looks up a result by kind.
func (rs ResultSet) Get(kind Kind) (CheckResult, bool) {
	r, ok := rs.items[kind]
	return r, ok
}

// Len returns the number of recorded results.
func (rs ResultSet) Len() int {
	return len(rs.order)
}

// List returns the results in insertion order.
func (rs ResultSet) List() []CheckResult {
	out := make([]CheckResult, 0, len(rs.order))
	for _, k := range rs.order {
		out = append(out, rs.items[k])
	}
	return out
}

// MarshalJSON encodes the set as a JSON object preserving insertion order.
func (rs ResultSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range rs.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(k))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(rs.items[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type namedResult struct {
	Check  Kind        `yaml:"check"`
	Result CheckResult `yaml:"result"`
}

// MarshalYAML encodes the set as an ordered list.
func (rs ResultSet) MarshalYAML() (interface{}, error) {
	out := make([]namedResult, 0, len(rs.order))
	for _, k := range rs.order {
		out = append(out, namedResult{Check: k, Result: rs.items[k]})
	}
	return out, nil
}
