package checker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/guard"
	"github.com/siteqa/siteqa/internal/shared/constants"
)

// ProbeOutcome classifies a single link or image probe.
type ProbeOutcome struct {
	// StatusCode is the HTTP status, or constants.StatusTimeout /
	// constants.StatusConnectionFail when no response arrived.
	StatusCode int
	Err        string
	Broken     bool
}

// Finding converts the outcome into a LinkFinding. Sentinel statuses are
// reported as a nil status code with the error text set.
func (o ProbeOutcome) Finding(target, foundOn string) run.LinkFinding {
	f := run.LinkFinding{URL: target, FoundOn: foundOn, Error: o.Err}
	if o.StatusCode > 0 {
		f.StatusCode = run.ScoreOf(o.StatusCode)
	}
	return f
}

func outcomeFor(status int) ProbeOutcome {
	switch {
	case status == constants.StatusTimeout:
		return ProbeOutcome{StatusCode: status, Err: "Timeout", Broken: true}
	case status == constants.StatusConnectionFail:
		return ProbeOutcome{StatusCode: status, Err: "Connection error", Broken: true}
	case status >= 400:
		return ProbeOutcome{StatusCode: status, Err: fmt.Sprintf("HTTP %d", status), Broken: true}
	default:
		return ProbeOutcome{StatusCode: status}
	}
}

// Prober checks link and asset integrity with a bounded HEAD request,
// falling back to GET.
type Prober struct {
	fetcher *Fetcher
	timeout time.Duration
}

// NewProber returns a Prober. A zero timeout uses constants.LinkProbeTimeout.
func NewProber(f *Fetcher, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = constants.LinkProbeTimeout
	}
	return &Prober{fetcher: f, timeout: timeout}
}

// Probe classifies target. A HEAD timeout is final; any other HEAD failure,
// or a 405/501 answer, is retried once with GET.
func (p *Prober) Probe(ctx context.Context, target string) ProbeOutcome {
	resp, err := p.fetcher.Do(ctx, http.MethodHead, target, p.timeout)
	if err == nil && resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusNotImplemented {
		return outcomeFor(resp.StatusCode)
	}
	if err != nil {
		var blocked *guard.BlockedOriginError
		if errors.As(err, &blocked) {
			return ProbeOutcome{StatusCode: constants.StatusConnectionFail, Err: "Blocked origin", Broken: true}
		}
		if isTimeout(err) {
			return outcomeFor(constants.StatusTimeout)
		}
	}

	resp, err = p.fetcher.Do(ctx, http.MethodGet, target, p.timeout)
	if err != nil {
		return outcomeFor(statusForError(err))
	}
	return outcomeFor(resp.StatusCode)
}
