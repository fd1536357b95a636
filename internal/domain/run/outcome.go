package run

import "time"

// Outcome describes a run that has reached a terminal state. It is the
// payload of the outbound notification emitted at finalization.
type Outcome struct {
	RunID         string    `json:"test_id"`
	URL           string    `json:"url"`
	Status        RunStatus `json:"status"`
	Score         int       `json:"overall_score"`
	Summary       string    `json:"summary"`
	Error         string    `json:"error,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
	PreviousScore *int      `json:"previous_score,omitempty"`
}

// OutcomeOf builds the outcome of a finished snapshot.
func OutcomeOf(s Snapshot) Outcome {
	o := Outcome{
		RunID:  s.ID,
		URL:    s.URL,
		Status: s.Status,
		Error:  s.Error,
	}
	if s.OverallScore != nil {
		o.Score = *s.OverallScore
	}
	if s.Summary != nil {
		o.Summary = *s.Summary
	}
	if s.FinishedAt != nil {
		o.FinishedAt = *s.FinishedAt
	}
	return o
}
