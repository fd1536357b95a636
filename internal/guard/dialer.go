package guard

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

var (
	errBlockedAddress   = errors.New("connection to blocked address refused")
	errTooManyRedirects = errors.New("too many redirects")
)

// SafeDialer returns a net.Dialer whose Control hook refuses blocked
// addresses after resolution, closing the gap between Validate and connect.
func SafeDialer(timeout time.Duration) *net.Dialer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
		Control:   refuseBlocked,
	}
}

func refuseBlocked(_ string, address string, _ syscall.RawConn) error {
	addrPort, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %w", errBlockedAddress, err)
	}
	if IsBlocked(addrPort.Addr()) {
		return fmt.Errorf("%w: %s", errBlockedAddress, addrPort.Addr())
	}
	return nil
}

// ClientOptions tunes NewHTTPClient.
type ClientOptions struct {
	Timeout      time.Duration
	MaxRedirects int
	// NoRedirects returns the first response instead of following Location.
	NoRedirects bool
}

// NewHTTPClient returns an http.Client that dials through SafeDialer and
// re-validates every redirect hop with g.
func (g *Guard) NewHTTPClient(opts ClientOptions) *http.Client {
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         SafeDialer(opts.Timeout).DialContext,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{
		Timeout:       opts.Timeout,
		Transport:     transport,
		CheckRedirect: g.redirectPolicy(opts),
	}
}

func (g *Guard) redirectPolicy(opts ClientOptions) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if opts.NoRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= opts.MaxRedirects {
			return fmt.Errorf("%w: stopped after %d", errTooManyRedirects, opts.MaxRedirects)
		}
		if _, err := g.Validate(req.Context(), req.URL.String()); err != nil {
			return err
		}
		return nil
	}
}
