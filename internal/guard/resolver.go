package guard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync/atomic"
	"time"

	mdns "github.com/miekg/dns"
	"golang.org/x/net/idna"
)

var errNoAnswer = errors.New("no A/AAAA records")

// DNSResolver queries explicit nameservers instead of the system resolver so
// the guard sees the same answers regardless of local caching.
type DNSResolver struct {
	servers   []string
	udpClient *mdns.Client
	tcpClient *mdns.Client
	next      atomic.Uint32
}

// NewDNSResolver returns a resolver for the given nameservers ("ip" or
// "ip:port"). Port 53 is assumed when omitted.
func NewDNSResolver(servers []string, timeout time.Duration) (*DNSResolver, error) {
	if len(servers) == 0 {
		return nil, errors.New("at least one nameserver is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		normalized = append(normalized, s)
	}
	if len(normalized) == 0 {
		return nil, errors.New("at least one nameserver is required")
	}
	return &DNSResolver{
		servers: normalized,
		udpClient: &mdns.Client{
			Net:     "udp",
			Timeout: timeout,
			UDPSize: 1232,
		},
		tcpClient: &mdns.Client{
			Net:     "tcp",
			Timeout: timeout,
		},
	}, nil
}

// LookupNetIP resolves host to its A and/or AAAA addresses. network follows
// net.Resolver semantics: "ip", "ip4" or "ip6".
func (r *DNSResolver) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	ascii, err := idna.ToASCII(strings.TrimSuffix(host, "."))
	if err != nil || ascii == "" {
		return nil, fmt.Errorf("invalid host %q: %w", host, err)
	}

	var qtypes []uint16
	switch network {
	case "ip4":
		qtypes = []uint16{mdns.TypeA}
	case "ip6":
		qtypes = []uint16{mdns.TypeAAAA}
	default:
		qtypes = []uint16{mdns.TypeA, mdns.TypeAAAA}
	}

	var addrs []netip.Addr
	var lastErr error
	for _, qt := range qtypes {
		got, err := r.query(ctx, ascii, qt)
		if err != nil {
			lastErr = err
			continue
		}
		addrs = append(addrs, got...)
	}
	if len(addrs) == 0 {
		if lastErr == nil {
			lastErr = errNoAnswer
		}
		return nil, fmt.Errorf("lookup %s: %w", host, lastErr)
	}
	return addrs, nil
}

func (r *DNSResolver) query(ctx context.Context, host string, qtype uint16) ([]netip.Addr, error) {
	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	server := r.servers[int(r.next.Add(1))%len(r.servers)]
	resp, _, err := r.udpClient.ExchangeContext(ctx, msg, server)
	if err != nil || (resp != nil && resp.Truncated) {
		resp, _, err = r.tcpClient.ExchangeContext(ctx, msg, server)
	}
	if err != nil {
		return nil, fmt.Errorf("dns query failed: %w", err)
	}
	if resp == nil {
		return nil, errors.New("nil DNS response")
	}
	if resp.Rcode != mdns.RcodeSuccess {
		return nil, fmt.Errorf("DNS error: %s", mdns.RcodeToString[resp.Rcode])
	}
	return answerAddrs(resp.Answer), nil
}

func answerAddrs(rrs []mdns.RR) []netip.Addr {
	out := make([]netip.Addr, 0, len(rrs))
	for _, rr := range rrs {
		var ip net.IP
		switch v := rr.(type) {
		case *mdns.A:
			ip = v.A
		case *mdns.AAAA:
			ip = v.AAAA
		default:
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip); ok {
			out = append(out, addr.Unmap())
		}
	}
	return out
}
