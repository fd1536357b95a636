package checker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/guard"
	"github.com/siteqa/siteqa/internal/shared/constants"
)

// SpeedProbe times a full GET of the page.
type SpeedProbe struct {
	fetcher *Fetcher
	timeout time.Duration
}

// NewSpeedProbe returns a SpeedProbe with the default 30s budget.
func NewSpeedProbe(f *Fetcher) *SpeedProbe {
	return &SpeedProbe{fetcher: f, timeout: constants.SpeedProbeTimeout}
}

func (p *SpeedProbe) Name() run.Kind { return run.KindSpeed }

// Check scores load time: under 1s 95 (pass), under 2.5s 70, under 5s 45
// (both warning), otherwise 20 (fail). A page that cannot be fetched at all
// fails with 0.
func (p *SpeedProbe) Check(ctx context.Context, target string) (run.CheckResult, error) {
	resp, err := p.fetcher.Do(ctx, http.MethodGet, target, p.timeout)
	if err != nil {
		var blocked *guard.BlockedOriginError
		if errors.As(err, &blocked) {
			return nil, err
		}
		return p.unreachable(err), nil
	}

	loadMs := resp.Elapsed.Milliseconds()
	sizeKB := math.Round(float64(len(resp.Body))/1024*100) / 100
	status, score := speedScore(loadMs)

	return run.SpeedResult{
		Header: run.Header{
			Status:  status,
			Score:   run.ScoreOf(score),
			Message: fmt.Sprintf("Page loaded in %dms (%.2fKB)", loadMs, sizeKB),
		},
		LoadTimeMs: loadMs,
		TTFBMs:     resp.TTFB.Milliseconds(),
		PageSizeKB: sizeKB,
		HTTPStatus: resp.StatusCode,
	}, nil
}

// unreachable scores a timeout and a connection failure alike: fail with 0.
func (p *SpeedProbe) unreachable(err error) run.SpeedResult {
	msg := "Speed check error: " + truncate(err.Error(), 120)
	if isTimeout(err) {
		msg = fmt.Sprintf("Request timed out after %s", p.timeout)
	}
	return run.SpeedResult{Header: run.Header{
		Status:  run.StatusFail,
		Score:   run.ScoreOf(0),
		Message: msg,
	}}
}

func speedScore(loadMs int64) (run.Status, int) {
	switch {
	case loadMs < 1000:
		return run.StatusPass, 95
	case loadMs < 2500:
		return run.StatusWarning, 70
	case loadMs < 5000:
		return run.StatusWarning, 45
	default:
		return run.StatusFail, 20
	}
}
