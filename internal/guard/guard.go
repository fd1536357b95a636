// Package guard keeps siteqa from being used to reach private networks.
//
// Every component that accepts a user-supplied URL calls Validate before its
// first network operation. Validate resolves the host and rejects it when any
// address falls in a blocked range, so a public name that resolves to an
// internal address is caught. SafeDialer repeats the check at connect
// time for the addresses the transport actually dials.
package guard

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// blockedPrefixes are the address ranges a run may never reach.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
}

// IsBlocked reports whether addr lies in a blocked range. IPv4-mapped IPv6
// addresses are unmapped first.
func IsBlocked(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Origin is a validated (scheme, host, port) triple.
type Origin struct {
	Scheme string
	Host   string
	Port   string
	Addrs  []netip.Addr
}

// String renders the origin as scheme://host[:port].
func (o Origin) String() string {
	host := o.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if o.Port == "" {
		return o.Scheme + "://" + host
	}
	return o.Scheme + "://" + host + ":" + o.Port
}

// BlockedOriginError is returned for every rejected URL.
type BlockedOriginError struct {
	URL    string
	Host   string
	Addr   netip.Addr
	Reason string
	Err    error
}

func (e *BlockedOriginError) Error() string {
	msg := fmt.Sprintf("blocked origin %q: %s", e.URL, e.Reason)
	if e.Addr.IsValid() {
		msg += " (" + e.Addr.String() + ")"
	}
	return msg
}

func (e *BlockedOriginError) Unwrap() error {
	return e.Err
}

// Resolver performs forward lookups. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Guard validates URLs against the blocked address ranges.
type Guard struct {
	resolver Resolver
	logger   *zap.Logger
	onBlock  func(reason string)
}

// Option configures a Guard.
type Option func(*Guard)

// WithResolver replaces the system resolver.
func WithResolver(r Resolver) Option {
	return func(g *Guard) {
		if r != nil {
			g.resolver = r
		}
	}
}

// WithLogger attaches a logger for rejections.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithBlockHook registers a callback invoked on every rejection.
func WithBlockHook(fn func(reason string)) Option {
	return func(g *Guard) {
		g.onBlock = fn
	}
}

// New returns a Guard using the system resolver unless overridden.
func New(opts ...Option) *Guard {
	g := &Guard{
		resolver: net.DefaultResolver,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Validate parses rawURL and checks its host. It performs DNS resolution but
// no other network I/O.
func (g *Guard) Validate(ctx context.Context, rawURL string) (Origin, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Origin{}, g.reject(&BlockedOriginError{URL: rawURL, Reason: "unparseable url", Err: err})
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Origin{}, g.reject(&BlockedOriginError{URL: rawURL, Reason: fmt.Sprintf("scheme %q not allowed", u.Scheme)})
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Origin{}, g.reject(&BlockedOriginError{URL: rawURL, Reason: "empty host"})
	}

	origin := Origin{Scheme: scheme, Host: host, Port: u.Port()}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsBlocked(addr) {
			return Origin{}, g.reject(&BlockedOriginError{URL: rawURL, Host: host, Addr: addr, Reason: "address in blocked range"})
		}
		origin.Addrs = []netip.Addr{addr.Unmap()}
		return origin, nil
	}

	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return Origin{}, g.reject(&BlockedOriginError{URL: rawURL, Host: host, Reason: "host did not resolve", Err: err})
	}
	if len(addrs) == 0 {
		return Origin{}, g.reject(&BlockedOriginError{URL: rawURL, Host: host, Reason: "host did not resolve"})
	}
	for _, addr := range addrs {
		if IsBlocked(addr) {
			return Origin{}, g.reject(&BlockedOriginError{URL: rawURL, Host: host, Addr: addr, Reason: "host resolves to blocked address"})
		}
		origin.Addrs = append(origin.Addrs, addr.Unmap())
	}
	return origin, nil
}

func (g *Guard) reject(err *BlockedOriginError) error {
	g.logger.Warn("origin_blocked",
		zap.String("url", err.URL),
		zap.String("host", err.Host),
		zap.String("reason", err.Reason),
	)
	if g.onBlock != nil {
		g.onBlock(err.Reason)
	}
	return err
}
