package run

// ActionType classifies an interaction performed during post-login exploration.
type ActionType string

const (
	ActionNavLink ActionType = "nav_link"
	ActionButton  ActionType = "button"
	ActionForm    ActionType = "form"
)

// UIActionResult records one interaction with the authenticated UI.
type UIActionResult struct {
	ActionType     ActionType `json:"action_type" yaml:"action_type"`
	Label          string     `json:"label" yaml:"label"`
	Selector       string     `json:"selector" yaml:"selector"`
	PageURL        string     `json:"page_url" yaml:"page_url"`
	Status         Status     `json:"status" yaml:"status"`
	ResponseTimeMs *int64     `json:"response_time_ms" yaml:"response_time_ms"`
	ResultURL      string     `json:"result_url,omitempty" yaml:"result_url,omitempty"`
	Error          string     `json:"error,omitempty" yaml:"error,omitempty"`
	Note           string     `json:"note,omitempty" yaml:"note,omitempty"`
}

// ExplorationTally aggregates exploration counters.
type ExplorationTally struct {
	ButtonsFound   int `json:"buttons_found" yaml:"buttons_found"`
	ButtonsPassed  int `json:"buttons_passed" yaml:"buttons_passed"`
	ButtonsFailed  int `json:"buttons_failed" yaml:"buttons_failed"`
	ButtonsSkipped int `json:"buttons_skipped" yaml:"buttons_skipped"`
	LinksFound     int `json:"links_found" yaml:"links_found"`
	LinksPassed    int `json:"links_passed" yaml:"links_passed"`
	LinksFailed    int `json:"links_failed" yaml:"links_failed"`
	FormsFound     int `json:"forms_found" yaml:"forms_found"`
	FormsTested    int `json:"forms_tested" yaml:"forms_tested"`
}

// Passed returns the number of passing interactions.
func (t ExplorationTally) Passed() int {
	return t.ButtonsPassed + t.LinksPassed + t.FormsTested
}

// Failed returns the number of failing interactions.
func (t ExplorationTally) Failed() int {
	return t.ButtonsFailed + t.LinksFailed
}

// LoginOutcome is the decision reached by the login agent.
type LoginOutcome struct {
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message" yaml:"message"`
	Method  string `json:"method" yaml:"method"`
}

// Result converts the outcome into the login check result.
func (o LoginOutcome) Result(loginURL, finalURL string) LoginResult {
	status := StatusFail
	if o.Success {
		status = StatusPass
	}
	return LoginResult{
		Header:   Header{Status: status, Message: o.Message},
		Success:  o.Success,
		Method:   o.Method,
		LoginURL: loginURL,
		FinalURL: finalURL,
	}
}
