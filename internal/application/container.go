package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	apprun "github.com/siteqa/siteqa/internal/application/run"
	"github.com/siteqa/siteqa/internal/browser"
	"github.com/siteqa/siteqa/internal/checker"
	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/guard"
	"github.com/siteqa/siteqa/internal/infrastructure/metrics"
	"github.com/siteqa/siteqa/internal/infrastructure/notify"
	"github.com/siteqa/siteqa/internal/infrastructure/persistence/json"
	"github.com/siteqa/siteqa/internal/infrastructure/persistence/memory"
	"github.com/siteqa/siteqa/internal/infrastructure/stream"
	"github.com/siteqa/siteqa/internal/shared/constants"
)

// CrawlConfig bounds the stage 1 crawl.
type CrawlConfig struct {
	MaxPages          int
	MaxDepth          int
	Concurrency       int
	RespectRobots     bool
	RequestsPerSecond float64
	PageTimeout       time.Duration
}

// BrowserConfig controls browser automation. When disabled, web vitals and
// the login stage are skipped.
type BrowserConfig struct {
	Enabled   bool
	Headless  bool
	Install   bool
	UserAgent string
}

// Config is everything NewContainer needs.
type Config struct {
	// DataDir holds persisted runs. Empty keeps runs in memory only.
	DataDir string

	HTTPTimeout      time.Duration
	DNSServers       []string // Empty uses the system resolver
	DNSTimeout       time.Duration
	ProbeConcurrency int
	ProbeRateLimit   int
	ProbeTimeout     time.Duration
	MaxStreamRuns    int
	RuntimeMetrics   bool

	Crawl   CrawlConfig
	Browser BrowserConfig
	Notify  notify.Config
}

// Container holds all application services and repositories
// This is a simple dependency injection container
type Container struct {
	Guard        *guard.Guard
	Repo         run.Repository
	Streams      *stream.Registry
	Notifier     *notify.WebhookNotifier
	Metrics      *metrics.Collector
	Orchestrator *apprun.Orchestrator

	launcher *browser.PlaywrightLauncher
	cancel   context.CancelFunc
	dataDir  string
	logger   *zap.Logger
}

// NewContainer wires the engine. ctx bounds every background run started
// through the orchestrator.
func NewContainer(ctx context.Context, cfg Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	collector := metrics.NewCollector(cfg.RuntimeMetrics)

	guardOpts := []guard.Option{
		guard.WithLogger(logger.Named("guard")),
		guard.WithBlockHook(collector.OriginBlocked),
	}
	if len(cfg.DNSServers) > 0 {
		resolver, err := guard.NewDNSResolver(cfg.DNSServers, cfg.DNSTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create DNS resolver: %w", err)
		}
		guardOpts = append(guardOpts, guard.WithResolver(resolver))
	}
	g := guard.New(guardOpts...)

	repo, err := newRepository(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	fetcher := checker.NewFetcher(g.NewHTTPClient(guard.ClientOptions{
		Timeout:      cfg.HTTPTimeout,
		MaxRedirects: constants.MaxRedirects,
	}), g)
	prober := checker.NewProber(fetcher, constants.LinkProbeTimeout)
	crawler := checker.NewCrawler(fetcher, prober, checker.CrawlOptions{
		MaxPages:          cfg.Crawl.MaxPages,
		MaxDepth:          cfg.Crawl.MaxDepth,
		Concurrency:       cfg.Crawl.Concurrency,
		RespectRobots:     cfg.Crawl.RespectRobots,
		RequestsPerSecond: cfg.Crawl.RequestsPerSecond,
		PageTimeout:       cfg.Crawl.PageTimeout,
	}, logger.Named("crawler"))

	checks := apprun.Checks{
		Speed:   checker.NewSpeedProbe(fetcher),
		TLS:     checker.NewTLSProbe(g),
		Crawler: crawler,
		Runner: &checker.Runner{
			Concurrency: cfg.ProbeConcurrency,
			RateLimit:   cfg.ProbeRateLimit,
			Timeout:     cfg.ProbeTimeout,
			Logger:      logger.Named("probes"),
		},
	}

	var launcher *browser.PlaywrightLauncher
	if cfg.Browser.Enabled {
		launcher = browser.NewPlaywrightLauncher(browser.PlaywrightConfig{
			Headless:  cfg.Browser.Headless,
			UserAgent: cfg.Browser.UserAgent,
			Install:   cfg.Browser.Install,
			Validator: g,
		}, logger.Named("browser"))
		checks.Static = checker.StaticProbes(fetcher, launcher)
		checks.Agent = browser.NewAgent(launcher, logger.Named("agent"), browser.WithValidator(g))
	} else {
		// A nil meter makes web vitals report skip.
		checks.Static = checker.StaticProbes(fetcher, nil)
	}

	streams := stream.NewRegistry(logger.Named("stream"))
	if cfg.MaxStreamRuns > 0 {
		streams.SetMaxRuns(cfg.MaxStreamRuns)
	}
	notifier := notify.NewWebhookNotifier(cfg.Notify, logger.Named("notify"))

	baseCtx, cancel := context.WithCancel(ctx)
	orchestrator := apprun.NewOrchestrator(g, repo, streams, checks,
		apprun.WithNotifier(notifier),
		apprun.WithMetrics(collector),
		apprun.WithLogger(logger.Named("run")),
		apprun.WithBaseContext(baseCtx),
	)

	return &Container{
		Guard:        g,
		Repo:         repo,
		Streams:      streams,
		Notifier:     notifier,
		Metrics:      collector,
		Orchestrator: orchestrator,
		launcher:     launcher,
		cancel:       cancel,
		dataDir:      cfg.DataDir,
		logger:       logger,
	}, nil
}

func newRepository(dataDir string) (run.Repository, error) {
	if dataDir == "" {
		return memory.NewRunRepository(), nil
	}
	repo, err := json.NewRunRepository(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create run repository: %w", err)
	}
	return repo, nil
}

// Check reports liveness.
func (c *Container) Check(context.Context) error {
	return nil
}

// Ready reports whether runs can be persisted.
func (c *Container) Ready(context.Context) error {
	if c.dataDir == "" {
		return nil
	}
	info, err := os.Stat(c.dataDir)
	if err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", c.dataDir)
	}
	return nil
}

// Close waits for in-flight runs, then releases the notifier and the
// browser. If ctx ends first the remaining runs are cancelled and finalize
// as failed.
func (c *Container) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.Orchestrator.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("cancelling in-flight runs", zap.Error(ctx.Err()))
		c.cancel()
		<-done
	}
	c.cancel()

	var errs []error
	c.Notifier.Close()
	if c.launcher != nil {
		if err := c.launcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	return errors.Join(errs...)
}
