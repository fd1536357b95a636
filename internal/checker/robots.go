package checker

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

const robotsAgent = "siteqa"

// robotsPolicy limits which pages the crawler fetches. Link probes ignore it.
type robotsPolicy struct {
	group *robotstxt.Group
}

// fetchRobots loads /robots.txt for start's origin. Any failure yields an
// allow-all policy.
func fetchRobots(ctx context.Context, f *Fetcher, start *url.URL, timeout time.Duration) *robotsPolicy {
	robotsURL := &url.URL{Scheme: start.Scheme, Host: start.Host, Path: "/robots.txt"}
	resp, err := f.Do(ctx, http.MethodGet, robotsURL.String(), timeout)
	if err != nil {
		return &robotsPolicy{}
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		return &robotsPolicy{}
	}
	return &robotsPolicy{group: data.FindGroup(robotsAgent)}
}

// Allowed reports whether u may be crawled.
func (p *robotsPolicy) Allowed(u *url.URL) bool {
	if p == nil || p.group == nil {
		return true
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return p.group.Test(path)
}

// CrawlDelay returns the delay requested for our agent, or zero.
func (p *robotsPolicy) CrawlDelay() time.Duration {
	if p == nil || p.group == nil {
		return 0
	}
	return p.group.CrawlDelay
}
