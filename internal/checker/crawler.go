package checker

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/shared/constants"
	sharedErrors "github.com/siteqa/siteqa/internal/shared/errors"
)

// CrawledPage is one visited page of the inventory.
type CrawledPage struct {
	URL        string  `json:"url"`
	StatusCode *int    `json:"status_code"`
	LoadTimeMs *int64  `json:"load_time_ms"`
	Title      *string `json:"title"`
	Depth      int     `json:"depth"`
}

// CrawlOptions configures a crawl.
type CrawlOptions struct {
	MaxPages          int           // Page inventory cap (default 50)
	MaxDepth          int           // Link hops from the seed, 0 = unbounded
	Concurrency       int           // Simultaneous link/image probes (default 10)
	RespectRobots     bool          // Honour robots.txt for page fetches
	RequestsPerSecond float64       // Page fetch rate, 0 = unlimited
	PageTimeout       time.Duration // Per-page fetch timeout (default 15s)
}

// CrawlReport is everything a crawl produces.
type CrawlReport struct {
	StartURL      string
	Pages         []CrawledPage
	BrokenLinks   []run.LinkFinding
	MissingImages []run.LinkFinding
	LinksChecked  int
	ImagesChecked int
	// Mobile is derived from the first page that returned markup; nil when
	// no page did.
	Mobile      *MobileSignal
	Unreachable bool
}

const unreachableMessage = "Could not crawl website (Main page unreachable)"

// BrokenLinksResult derives the broken_links check.
func (r *CrawlReport) BrokenLinksResult() run.BrokenLinksResult {
	if r.Unreachable {
		return run.BrokenLinksResult{
			Header:       run.Header{Status: run.StatusSkip, Message: unreachableMessage},
			PagesCrawled: len(r.Pages),
		}
	}
	broken := len(r.BrokenLinks)
	status := run.StatusFail
	msg := fmt.Sprintf("Found %d broken link(s) out of %d checked", broken, r.LinksChecked)
	switch {
	case broken == 0:
		status = run.StatusPass
		msg = fmt.Sprintf("All %d links OK", r.LinksChecked)
	case broken <= 3:
		status = run.StatusWarning
	}
	return run.BrokenLinksResult{
		Header:       run.Header{Status: status, Score: run.ScoreOf(BrokenLinkScore(broken, r.LinksChecked)), Message: msg},
		TotalChecked: r.LinksChecked,
		BrokenCount:  broken,
		PagesCrawled: len(r.Pages),
		Links:        capFindings(r.BrokenLinks),
	}
}

// MissingImagesResult derives the images check.
func (r *CrawlReport) MissingImagesResult() run.MissingImagesResult {
	if r.Unreachable {
		return run.MissingImagesResult{
			Header: run.Header{Status: run.StatusSkip, Message: unreachableMessage},
		}
	}
	missing := len(r.MissingImages)
	status := run.StatusFail
	msg := fmt.Sprintf("Found %d missing image(s)", missing)
	switch {
	case missing == 0:
		status = run.StatusPass
		msg = fmt.Sprintf("All %d images loaded OK", r.ImagesChecked)
	case missing <= 2:
		status = run.StatusWarning
	}
	return run.MissingImagesResult{
		Header:       run.Header{Status: status, Message: msg},
		TotalChecked: r.ImagesChecked,
		MissingCount: missing,
		Images:       capFindings(r.MissingImages),
	}
}

// MobileResult derives the mobile check.
func (r *CrawlReport) MobileResult() run.MobileResult {
	if r.Unreachable {
		return run.MobileResult{Header: run.Header{Status: run.StatusSkip, Message: unreachableMessage}}
	}
	if r.Mobile == nil {
		return run.MobileResult{Header: run.Header{Status: run.StatusSkip, Message: "No HTML content to analyze"}}
	}
	return r.Mobile.Result()
}

// BrokenLinkScore is max(0, 100 - broken/total*200) rounded, with total 0
// treated as 1.
func BrokenLinkScore(broken, total int) int {
	if total <= 0 {
		total = 1
	}
	score := 100 - float64(broken)/float64(total)*200
	return int(math.Round(math.Max(0, score)))
}

func capFindings(in []run.LinkFinding) []run.LinkFinding {
	if len(in) > constants.MaxListedFindings {
		return in[:constants.MaxListedFindings]
	}
	return in
}

// Crawler performs a bounded breadth-first crawl of one origin and probes
// every discovered link and image once.
type Crawler struct {
	fetcher *Fetcher
	prober  *Prober
	opts    CrawlOptions
	logger  *zap.Logger
}

// NewCrawler returns a Crawler with defaults filled in.
func NewCrawler(f *Fetcher, p *Prober, opts CrawlOptions, logger *zap.Logger) *Crawler {
	if opts.MaxPages <= 0 {
		opts.MaxPages = constants.DefaultMaxPages
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = constants.ProbeConcurrency
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = constants.PageFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil {
		p = NewProber(f, 0)
	}
	return &Crawler{fetcher: f, prober: p, opts: opts, logger: logger}
}

type queueItem struct {
	url   *url.URL
	depth int
}

// discovered keeps the first page each target was seen on, in discovery order.
type discovered struct {
	order   []string
	foundOn map[string]string
}

func newDiscovered() *discovered {
	return &discovered{foundOn: make(map[string]string)}
}

func (d *discovered) add(target, page string) {
	if _, ok := d.foundOn[target]; ok {
		return
	}
	d.foundOn[target] = page
	d.order = append(d.order, target)
}

// Crawl visits at most maxPages pages (0 uses the configured cap) starting at
// startURL. The start URL is validated first and a rejection is returned
// as-is. When the seed cannot be fetched the report is still returned, marked
// Unreachable, together with ErrCrawlUnreachable.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxPages int) (*CrawlReport, error) {
	if maxPages <= 0 {
		maxPages = c.opts.MaxPages
	}
	if c.fetcher.validator != nil {
		if _, err := c.fetcher.validator.Validate(ctx, startURL); err != nil {
			return nil, err
		}
	}
	root, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}

	var robots *robotsPolicy
	if c.opts.RespectRobots {
		robots = fetchRobots(ctx, c.fetcher, root, constants.LinkProbeTimeout)
	}
	limiter := c.pageLimiter(robots)

	report := &CrawlReport{StartURL: startURL}
	links := newDiscovered()
	images := newDiscovered()

	queue := []queueItem{{url: root, depth: 0}}
	seen := map[string]struct{}{stripFragment(root): {}}

	for len(queue) > 0 && len(report.Pages) < maxPages {
		if ctx.Err() != nil {
			break
		}
		item := queue[0]
		queue = queue[1:]
		pageURL := stripFragment(item.url)

		if item.depth > 0 && !robots.Allowed(item.url) {
			c.logger.Debug("crawl_robots_skip", zap.String("url", pageURL))
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}

		page, body := c.fetchPage(ctx, pageURL, item.depth)
		report.Pages = append(report.Pages, page)
		if body == nil {
			continue
		}

		parsed := parsePage(body)
		if parsed.title != nil {
			report.Pages[len(report.Pages)-1].Title = parsed.title
		}
		if report.Mobile == nil {
			report.Mobile = &MobileSignal{
				HasViewport:      parsed.hasViewport,
				HasResponsiveCSS: detectResponsiveCSS(body),
			}
		}

		for _, href := range parsed.hrefs {
			target := resolveReference(item.url, href)
			if target == nil || IsOAuthURL(target) {
				continue
			}
			key := stripFragment(target)
			links.add(key, pageURL)
			if !sameOrigin(root, target) {
				continue
			}
			if c.opts.MaxDepth > 0 && item.depth+1 > c.opts.MaxDepth {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			queue = append(queue, queueItem{url: target, depth: item.depth + 1})
		}
		for _, src := range parsed.images {
			target := resolveReference(item.url, src)
			if target == nil || IsOAuthURL(target) {
				continue
			}
			images.add(stripFragment(target), pageURL)
		}
	}

	if len(report.Pages) == 1 && report.Pages[0].StatusCode != nil && *report.Pages[0].StatusCode < 0 {
		report.Unreachable = true
		c.logger.Info("crawl_unreachable", zap.String("url", startURL), zap.Int("status", *report.Pages[0].StatusCode))
		return report, fmt.Errorf("%w: %s", sharedErrors.ErrCrawlUnreachable, startURL)
	}

	report.LinksChecked = len(links.order)
	report.ImagesChecked = len(images.order)
	report.BrokenLinks, report.MissingImages = c.probeAll(ctx, links, images)

	c.logger.Info("crawl_complete",
		zap.String("url", startURL),
		zap.Int("pages", len(report.Pages)),
		zap.Int("links_checked", report.LinksChecked),
		zap.Int("broken_links", len(report.BrokenLinks)),
		zap.Int("images_checked", report.ImagesChecked),
		zap.Int("missing_images", len(report.MissingImages)),
	)
	return report, nil
}

func (c *Crawler) pageLimiter(robots *robotsPolicy) *rate.Limiter {
	if c.opts.RequestsPerSecond > 0 {
		return rate.NewLimiter(rate.Limit(c.opts.RequestsPerSecond), 1)
	}
	if delay := robots.CrawlDelay(); delay > 0 {
		return rate.NewLimiter(rate.Every(delay), 1)
	}
	return nil
}

// fetchPage records a page even on failure. body is nil unless the page
// answered 2xx with markup.
func (c *Crawler) fetchPage(ctx context.Context, pageURL string, depth int) (CrawledPage, []byte) {
	page := CrawledPage{URL: pageURL, Depth: depth}
	start := time.Now()
	resp, err := c.fetcher.Do(ctx, http.MethodGet, pageURL, c.opts.PageTimeout)
	elapsed := time.Since(start).Milliseconds()
	page.LoadTimeMs = &elapsed
	if err != nil {
		page.StatusCode = run.ScoreOf(statusForError(err))
		c.logger.Debug("crawl_fetch_failed", zap.String("url", pageURL), zap.Error(err))
		return page, nil
	}
	page.StatusCode = run.ScoreOf(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !isHTML(resp.Header.Get("Content-Type")) {
		return page, nil
	}
	return page, resp.Body
}

// probeAll probes every link and image once through a counting semaphore.
func (c *Crawler) probeAll(ctx context.Context, links, images *discovered) ([]run.LinkFinding, []run.LinkFinding) {
	linkOutcomes := make([]ProbeOutcome, len(links.order))
	imageOutcomes := make([]ProbeOutcome, len(images.order))

	sem := semaphore.NewWeighted(int64(c.opts.Concurrency))
	var g errgroup.Group
	launch := func(target string, out *ProbeOutcome) {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				*out = outcomeFor(statusForError(err))
				return nil
			}
			defer sem.Release(1)
			*out = c.prober.Probe(ctx, target)
			return nil
		})
	}
	for i, target := range links.order {
		launch(target, &linkOutcomes[i])
	}
	for i, target := range images.order {
		launch(target, &imageOutcomes[i])
	}
	_ = g.Wait()

	var broken, missing []run.LinkFinding
	for i, target := range links.order {
		if linkOutcomes[i].Broken {
			broken = append(broken, linkOutcomes[i].Finding(target, links.foundOn[target]))
		}
	}
	for i, target := range images.order {
		if imageOutcomes[i].Broken {
			missing = append(missing, imageOutcomes[i].Finding(target, images.foundOn[target]))
		}
	}
	return broken, missing
}

// parsedPage is what the crawler reads out of one page.
type parsedPage struct {
	title       *string
	hrefs       []string
	images      []string
	hasViewport bool
}

func parsePage(body []byte) parsedPage {
	var out parsedPage
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return out
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if out.title == nil {
					t := strings.TrimSpace(textContent(n))
					out.title = &t
				}
			case atom.A:
				if href, ok := attr(n, "href"); ok {
					out.hrefs = append(out.hrefs, href)
				}
			case atom.Img:
				if src, ok := attr(n, "src"); ok {
					out.images = append(out.images, src)
				}
			case atom.Meta:
				if name, _ := attr(n, "name"); strings.EqualFold(name, "viewport") {
					out.hasViewport = true
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return out
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

// resolveReference resolves ref against base and drops anything that is not
// an http(s) target.
func resolveReference(base *url.URL, ref string) *url.URL {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return nil
	}
	lower := strings.ToLower(ref)
	for _, prefix := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return nil
		}
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
