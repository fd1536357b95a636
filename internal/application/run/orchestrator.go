package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteqa/siteqa/internal/browser"
	"github.com/siteqa/siteqa/internal/checker"
	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/scoring"
	sharedErrors "github.com/siteqa/siteqa/internal/shared/errors"
)

// Crawler runs the bounded site crawl of stage 1. *checker.Crawler satisfies it.
type Crawler interface {
	Crawl(ctx context.Context, startURL string, maxPages int) (*checker.CrawlReport, error)
}

// LoginAgent runs the browser login of stage 3. *browser.Agent satisfies it.
type LoginAgent interface {
	Run(ctx context.Context, req browser.LoginRequest) browser.Report
}

// Publisher broadcasts run snapshots to stream subscribers.
type Publisher interface {
	Publish(snap run.Snapshot)
	Subscribe(id string) (<-chan run.Snapshot, func(), bool)
}

// Notifier receives the outcome of every finished run. Notify must not
// block; delivery failures stay inside the notifier.
type Notifier interface {
	Notify(outcome run.Outcome)
}

// Metrics observes engine activity.
type Metrics interface {
	RunStarted()
	RunFinished(status run.RunStatus, score int, elapsed time.Duration)
	CheckObserved(kind run.Kind, status run.Status, elapsed time.Duration)
}

// Checks groups the probes executed by each stage.
type Checks struct {
	Speed   checker.Probe
	TLS     checker.Probe
	Crawler Crawler
	// Static are the stage 2 probes, executed concurrently.
	Static []checker.Probe
	Runner *checker.Runner
	// Agent is nil when browser automation is disabled.
	Agent LoginAgent
}

// Request starts a run.
type Request struct {
	URL      string
	MaxPages int
	// Login is optional. Its TargetURL is filled in by the orchestrator and
	// its credentials are scrubbed once the run finishes.
	Login *browser.LoginRequest
}

// Orchestrator owns the lifecycle of test runs: it validates the target,
// drives the three check stages, persists and publishes every step, and
// finalizes the run exactly once.
type Orchestrator struct {
	validator checker.Validator
	repo      run.Repository
	publisher Publisher
	notifier  Notifier
	metrics   Metrics
	checks    Checks
	logger    *zap.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
	newID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier sets the outbound notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBaseContext sets the context background runs derive from. Cancelling
// it aborts in-flight runs, which then finalize as failed.
func WithBaseContext(ctx context.Context) Option {
	return func(o *Orchestrator) { o.baseCtx = ctx }
}

// NewOrchestrator creates a new run orchestrator
func NewOrchestrator(
	validator checker.Validator,
	repo run.Repository,
	publisher Publisher,
	checks Checks,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		validator: validator,
		repo:      repo,
		publisher: publisher,
		checks:    checks,
		notifier:  nopNotifier{},
		metrics:   nopMetrics{},
		logger:    zap.NewNop(),
		baseCtx:   context.Background(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.checks.Runner == nil {
		o.checks.Runner = &checker.Runner{Logger: o.logger}
	}
	return o
}

// Prepare validates the request and creates a running TestRun. An origin
// rejection is returned as-is and no run is created.
func (o *Orchestrator) Prepare(ctx context.Context, req Request) (*run.TestRun, error) {
	target := checker.NormalizeURL(req.URL)
	if target == "" {
		return nil, fmt.Errorf("%w: %w", sharedErrors.ErrInvalidInput, sharedErrors.ErrEmptyURL)
	}
	if _, err := o.validator.Validate(ctx, target); err != nil {
		return nil, err
	}
	if req.Login != nil && req.Login.LoginURL != "" {
		loginURL := checker.NormalizeURL(req.Login.LoginURL)
		if _, err := o.validator.Validate(ctx, loginURL); err != nil {
			return nil, err
		}
		req.Login.LoginURL = loginURL
	}

	tr, err := run.NewTestRun(o.newID(), target)
	if err != nil {
		return nil, fmt.Errorf("failed to create test run: %w", err)
	}
	if err := tr.Start(); err != nil {
		return nil, fmt.Errorf("failed to start test run: %w", err)
	}
	o.metrics.RunStarted()
	o.commit(ctx, tr)
	o.logger.Info("run started", zap.String("run_id", tr.ID()), zap.String("url", target))
	return tr, nil
}

// StartRun validates the request and executes the run in the background. It
// returns the run ID as soon as the run is recorded.
func (o *Orchestrator) StartRun(ctx context.Context, req Request) (string, error) {
	tr, err := o.Prepare(ctx, req)
	if err != nil {
		if req.Login != nil {
			req.Login.Credentials.Scrub()
		}
		return "", err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.Execute(o.baseCtx, tr, req)
	}()
	return tr.ID(), nil
}

// Wait blocks until every background run has finalized.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// GetRun returns the latest snapshot of a run.
func (o *Orchestrator) GetRun(ctx context.Context, id string) (run.Snapshot, error) {
	tr, err := o.repo.FindByID(ctx, id)
	if err != nil {
		return run.Snapshot{}, fmt.Errorf("failed to get test run: %w", err)
	}
	return tr.Snapshot(), nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns all of them.
func (o *Orchestrator) ListRuns(ctx context.Context, limit int) ([]run.Snapshot, error) {
	runs, err := o.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list test runs: %w", err)
	}
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	snaps := make([]run.Snapshot, len(runs))
	for i, tr := range runs {
		snaps[i] = tr.Snapshot()
	}
	return snaps, nil
}

// Subscribe streams snapshots of a run. The latest known snapshot is
// delivered first and the channel closes after the terminal snapshot.
// Runs no longer held by the publisher are replayed from the repository.
func (o *Orchestrator) Subscribe(ctx context.Context, id string) (<-chan run.Snapshot, func(), error) {
	if ch, cancel, ok := o.publisher.Subscribe(id); ok {
		return ch, cancel, nil
	}
	snap, err := o.GetRun(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan run.Snapshot, 1)
	ch <- snap
	close(ch)
	return ch, func() {}, nil
}

// execution serializes every mutation of one TestRun.
type execution struct {
	mu sync.Mutex
	tr *run.TestRun
}

// Execute runs all stages against a running TestRun and finalizes it. It
// never panics and always returns a terminal snapshot. Executing an already
// finished run leaves it unchanged.
func (o *Orchestrator) Execute(ctx context.Context, tr *run.TestRun, req Request) (snap run.Snapshot) {
	ex := &execution{tr: tr}
	start := time.Now()
	var stageErr error

	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("run panicked", zap.String("run_id", tr.ID()), zap.Any("panic", rec))
			stageErr = fmt.Errorf("panic: %v", rec)
		}
		if req.Login != nil {
			req.Login.Credentials.Scrub()
		}
		if stageErr == nil && ctx.Err() != nil {
			stageErr = fmt.Errorf("run interrupted: %w", ctx.Err())
		}
		snap = o.finalize(context.WithoutCancel(ctx), ex, stageErr, time.Since(start))
	}()

	if tr.IsTerminal() {
		return tr.Snapshot()
	}

	if stageErr = o.stageBasic(ctx, ex, req.MaxPages); stageErr != nil {
		return
	}
	if stageErr = o.stageAdvanced(ctx, ex); stageErr != nil {
		return
	}
	if req.Login != nil {
		stageErr = o.stageLogin(ctx, ex, req.Login)
	}
	return
}

// record stores results, persists the run and publishes the snapshot, all
// under the run's lock so subscribers observe steps in order.
func (o *Orchestrator) record(ctx context.Context, ex *execution, results ...run.CheckResult) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	for _, res := range results {
		if err := ex.tr.Record(res); err != nil {
			return fmt.Errorf("failed to record %s: %w", res.Kind(), err)
		}
	}
	o.commit(ctx, ex.tr)
	return nil
}

// commit persists then publishes. Subscribers only see persisted steps: a
// failed save is logged and the step is held back until the next commit,
// which upserts the whole run again. The terminal snapshot is always
// published so streams can end.
func (o *Orchestrator) commit(ctx context.Context, tr *run.TestRun) {
	if err := o.repo.Save(ctx, tr); err != nil {
		o.logger.Error("failed to persist test run", zap.String("run_id", tr.ID()), zap.Error(err))
		if !tr.IsTerminal() {
			return
		}
	}
	o.publisher.Publish(tr.Snapshot())
}

// stageBasic runs speed, ssl, the crawl-derived checks and the js_errors
// placeholder one after another.
func (o *Orchestrator) stageBasic(ctx context.Context, ex *execution, maxPages int) error {
	target := ex.tr.URL()

	for _, p := range []checker.Probe{o.checks.Speed, o.checks.TLS} {
		if p == nil {
			continue
		}
		if err := o.record(ctx, ex, o.runProbe(ctx, target, p)); err != nil {
			return err
		}
	}

	if o.checks.Crawler != nil {
		start := time.Now()
		links, images, mobile := o.crawl(ctx, target, maxPages)
		for _, res := range []run.CheckResult{links, images, mobile} {
			o.metrics.CheckObserved(res.Kind(), res.Base().Status, time.Since(start))
			if err := o.record(ctx, ex, res); err != nil {
				return err
			}
		}
	}

	return o.record(ctx, ex, checker.JSErrorsPlaceholder())
}

func (o *Orchestrator) runProbe(ctx context.Context, target string, p checker.Probe) run.CheckResult {
	return o.checks.Runner.RunProbes(ctx, target, []checker.Probe{p}, o.observe)[0]
}

func (o *Orchestrator) observe(kind run.Kind, res run.CheckResult, elapsed time.Duration) {
	o.metrics.CheckObserved(kind, res.Base().Status, elapsed)
}

func (o *Orchestrator) crawl(ctx context.Context, target string, maxPages int) (links, images, mobile run.CheckResult) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("crawl panicked", zap.String("url", target), zap.Any("panic", rec))
			links, images, mobile = crawlError(fmt.Errorf("panic: %v", rec))
		}
	}()

	report, err := o.checks.Crawler.Crawl(ctx, target, maxPages)
	switch {
	case err == nil, errors.Is(err, sharedErrors.ErrCrawlUnreachable) && report != nil:
		if err != nil {
			o.logger.Warn("crawl seed unreachable", zap.String("url", target), zap.Error(err))
		}
		return report.BrokenLinksResult(), report.MissingImagesResult(), report.MobileResult()
	default:
		o.logger.Warn("crawl failed", zap.String("url", target), zap.Error(err))
		return crawlError(err)
	}
}

func crawlError(err error) (links, images, mobile run.CheckResult) {
	h := run.Header{Status: run.StatusError, Score: run.ScoreOf(0), Message: err.Error()}
	return run.BrokenLinksResult{Header: h}, run.MissingImagesResult{Header: h}, run.MobileResult{Header: h}
}

// stageAdvanced runs the static probes concurrently and records the batch
// once every member has resolved.
func (o *Orchestrator) stageAdvanced(ctx context.Context, ex *execution) error {
	if len(o.checks.Static) == 0 {
		return nil
	}
	results := o.checks.Runner.RunProbes(ctx, ex.tr.URL(), o.checks.Static, o.observe)
	return o.record(ctx, ex, results...)
}

// stageLogin drives the browser agent. Browser JS errors replace the
// stage 1 placeholder.
func (o *Orchestrator) stageLogin(ctx context.Context, ex *execution, login *browser.LoginRequest) error {
	if o.checks.Agent == nil {
		login.Credentials.Scrub()
		loginURL := login.LoginURL
		if loginURL == "" {
			loginURL = ex.tr.URL()
		}
		res := run.LoginResult{
			Header:   run.Header{Status: run.StatusSkip, Message: "Browser automation disabled"},
			LoginURL: loginURL,
		}
		return o.record(ctx, ex, res)
	}

	req := *login
	req.TargetURL = ex.tr.URL()
	start := time.Now()
	report := o.checks.Agent.Run(ctx, req)
	o.metrics.CheckObserved(run.KindLogin, report.Login.Status, time.Since(start))

	results := []run.CheckResult{report.Login}
	if report.PostLogin != nil {
		results = append(results, *report.PostLogin)
	}
	if report.JSErrors != nil {
		results = append(results, *report.JSErrors)
	}
	return o.record(ctx, ex, results...)
}

// finalize scores the run and moves it to a terminal state. It is a no-op
// on a run that is already terminal.
func (o *Orchestrator) finalize(ctx context.Context, ex *execution, stageErr error, elapsed time.Duration) run.Snapshot {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	tr := ex.tr
	if tr.IsTerminal() {
		return tr.Snapshot()
	}

	score, summary := scoring.Summarize(tr.Result)
	if stageErr != nil {
		if err := tr.Fail(score, summary, stageErr.Error()); err != nil {
			o.logger.Error("failed to mark run failed", zap.String("run_id", tr.ID()), zap.Error(err))
		}
	} else if err := tr.Complete(score, summary); err != nil {
		o.logger.Error("failed to complete run", zap.String("run_id", tr.ID()), zap.Error(err))
		_ = tr.Fail(score, summary, err.Error())
	}

	outcome := run.OutcomeOf(tr.Snapshot())
	outcome.PreviousScore = o.previousScore(ctx, tr)
	o.commit(ctx, tr)
	o.metrics.RunFinished(tr.Status(), score, elapsed)
	o.notifier.Notify(outcome)

	o.logger.Info("run finished",
		zap.String("run_id", tr.ID()),
		zap.String("status", string(tr.Status())),
		zap.Int("score", score))
	return tr.Snapshot()
}

// previousScore is the score of the most recent earlier completed run of
// the same URL.
func (o *Orchestrator) previousScore(ctx context.Context, tr *run.TestRun) *int {
	runs, err := o.repo.FindAll(ctx)
	if err != nil {
		o.logger.Debug("failed to look up previous runs", zap.Error(err))
		return nil
	}
	for _, prev := range runs {
		if prev.ID() == tr.ID() || prev.URL() != tr.URL() || prev.Status() != run.RunStatusCompleted {
			continue
		}
		if prev.StartedAt().After(tr.StartedAt()) {
			continue
		}
		return prev.OverallScore()
	}
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(run.Outcome) {}

type nopMetrics struct{}

func (nopMetrics) RunStarted()                                       {}
func (nopMetrics) RunFinished(run.RunStatus, int, time.Duration)     {}
func (nopMetrics) CheckObserved(run.Kind, run.Status, time.Duration) {}
