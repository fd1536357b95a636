package checker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/guard"
	sharedErrors "github.com/siteqa/siteqa/internal/shared/errors"
)

// Probe is the interface every single-result check must satisfy
type Probe interface {
	// Name returns the result key this probe writes (e.g., "seo", "pwa")
	Name() run.Kind

	// Check runs the probe against url. Implementations should prefer an
	// error-status result over returning an error.
	Check(ctx context.Context, url string) (run.CheckResult, error)
}

// Validator is the origin check run before any network call.
// *guard.Guard satisfies it.
type Validator interface {
	Validate(ctx context.Context, rawURL string) (guard.Origin, error)
}

// ResultFunc is a callback invoked after each probe finishes
type ResultFunc func(kind run.Kind, result run.CheckResult, duration time.Duration)

// Runner executes a batch of probes concurrently with optional rate limiting
type Runner struct {
	Concurrency int           // Maximum number of concurrent probes (0 = unbounded)
	RateLimit   int           // Probe starts per second (0 = unlimited)
	Timeout     time.Duration // Timeout for each probe
	Logger      *zap.Logger
}

// RunProbes executes every probe against url and returns the results in probe
// order. A probe that errors, returns nothing or panics is coerced into an
// error-status result so one failure never aborts the batch.
func (r *Runner) RunProbes(ctx context.Context, url string, probes []Probe, fn ResultFunc) []run.CheckResult {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if r.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.RateLimit), r.RateLimit)
	}

	results := make([]run.CheckResult, len(probes))
	var g errgroup.Group
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}

	for i, p := range probes {
		g.Go(func() error {
			start := time.Now()
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					results[i] = run.NewProbeError(p.Name(), err)
					return nil
				}
			}

			result := r.runOne(ctx, url, p, logger)
			results[i] = result

			if fn != nil {
				fn(p.Name(), result, time.Since(start))
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (r *Runner) runOne(ctx context.Context, url string, p Probe, logger *zap.Logger) (result run.CheckResult) {
	kind := p.Name()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("probe_panic", zap.String("check", string(kind)), zap.Any("panic", rec))
			result = run.NewProbeError(kind, fmt.Errorf("panic: %v", rec))
		}
	}()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	res, err := p.Check(ctx, url)
	if err != nil {
		logger.Warn("probe_failed", zap.String("check", string(kind)), zap.Error(err))
		return run.NewProbeError(kind, err)
	}
	if res == nil {
		return run.NewProbeError(kind, sharedErrors.ErrNilResult)
	}
	return res
}
