package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/siteqa/siteqa/internal/checker"
	"github.com/siteqa/siteqa/internal/shared/constants"
	sharedErrors "github.com/siteqa/siteqa/internal/shared/errors"
)

const (
	defaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	vitalsLoadTimeout = 45 * time.Second
)

// vitalsScript collects LCP, CLS and TBT through PerformanceObservers for a
// few seconds and reads FCP and TTFB from the timing entries.
const vitalsScript = `() => new Promise((resolve) => {
  const out = { lcp: null, cls: 0, tbt: 0, fcp: null, ttfb: null };
  const observe = (type, cb) => {
    try { new PerformanceObserver((list) => cb(list.getEntries())).observe({ type, buffered: true }); } catch (e) {}
  };
  observe('largest-contentful-paint', (entries) => {
    if (entries.length) out.lcp = entries[entries.length - 1].startTime;
  });
  observe('layout-shift', (entries) => {
    for (const e of entries) { if (!e.hadRecentInput) out.cls += e.value; }
  });
  observe('longtask', (entries) => {
    for (const e of entries) { out.tbt += Math.max(0, e.duration - 50); }
  });
  const nav = performance.getEntriesByType('navigation')[0];
  if (nav) out.ttfb = nav.responseStart - nav.requestStart;
  const fcp = performance.getEntriesByName('first-contentful-paint')[0];
  if (fcp) out.fcp = fcp.startTime;
  setTimeout(() => resolve(out), 4000);
})`

// PlaywrightConfig configures the Chromium launcher.
type PlaywrightConfig struct {
	Headless  bool
	UserAgent string
	// Install downloads the browser binaries on first use.
	Install bool
	// Validator, when set, vets every request the browser makes. Requests
	// to blocked origins are aborted.
	Validator checker.Validator
}

// PlaywrightLauncher starts one Playwright driver and launches a separate
// Chromium process for every session.
type PlaywrightLauncher struct {
	cfg    PlaywrightConfig
	logger *zap.Logger

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightLauncher creates a launcher. The driver starts lazily.
func NewPlaywrightLauncher(cfg PlaywrightConfig, logger *zap.Logger) *PlaywrightLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &PlaywrightLauncher{cfg: cfg, logger: logger}
}

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw != nil {
		return l.pw, nil
	}
	if l.cfg.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			l.logger.Warn("playwright browser install failed (continuing if already installed)", zap.Error(err))
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start playwright: %v", sharedErrors.ErrBrowserUnavailable, err)
	}
	l.pw = pw
	l.logger.Info("playwright driver started")
	return pw, nil
}

// Launch opens a new browser with a single isolated context and page.
func (l *PlaywrightLauncher) Launch(ctx context.Context) (Session, error) {
	return l.launch(ctx)
}

func (l *PlaywrightLauncher) launch(ctx context.Context) (*pwSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.cfg.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
			"--no-first-run",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to launch browser: %v", sharedErrors.ErrBrowserUnavailable, err)
	}
	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(l.cfg.UserAgent),
		Viewport: &playwright.Size{
			Width:  constants.BrowserViewportWidth,
			Height: constants.BrowserViewportHeight,
		},
	})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	if l.cfg.Validator != nil {
		if err := bctx.Route("**/*", l.guardRequests(ctx, newRequestGuard(l.cfg.Validator))); err != nil {
			_ = bctx.Close()
			_ = b.Close()
			return nil, fmt.Errorf("failed to install request guard: %w", err)
		}
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	p := &pwPage{page: page}
	page.OnPageError(func(err error) {
		p.addError(err.Error())
	})
	page.OnConsole(func(msg playwright.ConsoleMessage) {
		if msg.Type() == "error" {
			p.addError(msg.Text())
		}
	})
	return &pwSession{browser: b, context: bctx, page: p}, nil
}

// guardRequests aborts any request whose origin the guard rejects. This
// covers redirects and subresources the agent never navigates to itself.
func (l *PlaywrightLauncher) guardRequests(ctx context.Context, g *requestGuard) func(playwright.Route) {
	return func(route playwright.Route) {
		target := route.Request().URL()
		if err := g.check(ctx, target); err != nil {
			l.logger.Warn("browser request refused", zap.String("url", target), zap.Error(err))
			if abortErr := route.Abort("blockedbyclient"); abortErr != nil {
				l.logger.Debug("failed to abort request", zap.Error(abortErr))
			}
			return
		}
		if err := route.Continue(); err != nil {
			l.logger.Debug("failed to continue request", zap.String("url", target), zap.Error(err))
		}
	}
}

// Measure loads target in a fresh session and reads Core Web Vitals.
func (l *PlaywrightLauncher) Measure(ctx context.Context, target string) (checker.Vitals, error) {
	session, err := l.launch(ctx)
	if err != nil {
		return checker.Vitals{}, err
	}
	defer session.Close()

	p := session.page.page
	if _, err := p.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   millis(vitalsLoadTimeout),
	}); err != nil {
		return checker.Vitals{}, fmt.Errorf("failed to load page: %w", err)
	}
	raw, err := p.Evaluate(vitalsScript)
	if err != nil {
		return checker.Vitals{}, fmt.Errorf("failed to evaluate vitals: %w", err)
	}
	values, ok := raw.(map[string]interface{})
	if !ok {
		return checker.Vitals{}, fmt.Errorf("unexpected vitals payload %T", raw)
	}
	return checker.Vitals{
		LCP:  number(values["lcp"]),
		CLS:  number(values["cls"]),
		TBT:  number(values["tbt"]),
		FCP:  number(values["fcp"]),
		TTFB: number(values["ttfb"]),
	}, nil
}

// Close stops the Playwright driver.
func (l *PlaywrightLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	return err
}

func number(v interface{}) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return nil
	}
	return &f
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

type pwSession struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    *pwPage

	closeOnce sync.Once
	closeErr  error
}

func (s *pwSession) Page() Page { return s.page }

func (s *pwSession) ClearCookies() error {
	return s.context.ClearCookies()
}

// Close tears down the page, context and browser process, in that order.
func (s *pwSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.page.page.Close()
		_ = s.context.Close()
		s.closeErr = s.browser.Close()
	})
	return s.closeErr
}

type pwPage struct {
	page playwright.Page

	mu     sync.Mutex
	errors []string
}

func (p *pwPage) addError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, msg)
}

func (p *pwPage) JSErrors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.errors...)
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(timeout),
	})
	return err
}

func (p *pwPage) GoBack(timeout time.Duration) error {
	_, err := p.page.GoBack(playwright.PageGoBackOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(timeout),
	})
	return err
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) Title() (string, error) { return p.page.Title() }

func (p *pwPage) BodyText() (string, error) {
	return p.page.Locator("body").InnerText()
}

func (p *pwPage) Visible(selector string) bool {
	ok, err := p.page.Locator(selector).First().IsVisible()
	return err == nil && ok
}

func (p *pwPage) WaitVisible(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: millis(timeout),
	})
}

func (p *pwPage) WaitNetworkIdle(timeout time.Duration) error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: millis(timeout),
	})
}

func (p *pwPage) QueryAll(selector string) ([]Element, error) {
	locs, err := p.page.Locator(selector).All()
	if err != nil {
		return nil, err
	}
	elems := make([]Element, len(locs))
	for i, loc := range locs {
		elems[i] = pwElement{loc: loc}
	}
	return elems, nil
}

func (p *pwPage) Fill(selector, value string) error {
	return p.page.Locator(selector).First().Fill(value)
}

func (p *pwPage) Click(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: millis(timeout),
	})
}

func (p *pwPage) Press(key string) error {
	return p.page.Keyboard().Press(key)
}

type pwElement struct {
	loc playwright.Locator
}

func (e pwElement) Text() string {
	text, err := e.loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(1000)})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func (e pwElement) Attribute(name string) string {
	v, err := e.loc.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: playwright.Float(1000)})
	if err != nil {
		return ""
	}
	return v
}

func (e pwElement) Visible() bool {
	ok, err := e.loc.IsVisible()
	return err == nil && ok
}

func (e pwElement) Enabled() bool {
	ok, err := e.loc.IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: playwright.Float(1000)})
	return err == nil && ok
}

func (e pwElement) Count(selector string) int {
	n, err := e.loc.Locator(selector).Count()
	if err != nil {
		return 0
	}
	return n
}

func (e pwElement) Click(timeout time.Duration) error {
	return e.loc.Click(playwright.LocatorClickOptions{
		Timeout: millis(timeout),
		Force:   playwright.Bool(true),
	})
}
