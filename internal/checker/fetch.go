package checker

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteqa/siteqa/internal/shared/constants"
)

// DefaultUserAgent is sent with every request issued by this package.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// Response is a fully read HTTP response.
type Response struct {
	URL        string // final URL after redirects
	StatusCode int
	Header     http.Header
	Cookies    []*http.Cookie
	Body       []byte
	TTFB       time.Duration
	Elapsed    time.Duration
	TLS        *tls.ConnectionState
}

// Fetcher issues guarded HTTP requests. Every request validates its URL
// before it is sent, so redirects out of the crawl and subresource URLs get
// the same treatment as the seed.
type Fetcher struct {
	client    *http.Client
	validator Validator
	userAgent string
	maxBody   int64
}

// NewFetcher returns a Fetcher using client for transport and v for origin
// checks. client should come from guard.NewHTTPClient in production.
func NewFetcher(client *http.Client, v Validator) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		client:    client,
		validator: v,
		userAgent: DefaultUserAgent,
		maxBody:   constants.MaxCrawlBodyBytes,
	}
}

// Do sends a request with the given method and reads at most the configured
// body limit. timeout bounds the whole exchange.
func (f *Fetcher) Do(ctx context.Context, method, rawURL string, timeout time.Duration) (*Response, error) {
	if f.validator != nil {
		if _, err := f.validator.Validate(ctx, rawURL); err != nil {
			return nil, err
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	ttfb := time.Since(start)

	out := &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Cookies:    resp.Cookies(),
		TTFB:       ttfb,
		TLS:        resp.TLS,
	}
	if method != http.MethodHead {
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		out.Body = body
	}
	out.Elapsed = time.Since(start)
	return out, nil
}

// Document fetches rawURL and parses it with goquery.
func (f *Fetcher) Document(ctx context.Context, rawURL string, timeout time.Duration) (*goquery.Document, *Response, error) {
	resp, err := f.Do(ctx, http.MethodGet, rawURL, timeout)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, resp, fmt.Errorf("parse html: %w", err)
	}
	return doc, resp, nil
}

// statusForError maps a transport error onto the timeout or connection
// failure sentinel.
func statusForError(err error) int {
	if isTimeout(err) {
		return constants.StatusTimeout
	}
	return constants.StatusConnectionFail
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
