package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/guard"
	"github.com/siteqa/siteqa/internal/shared/constants"
)

// DialFunc opens the raw TCP connection for a handshake.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// TLSProbe inspects the certificate served on the target's https port.
type TLSProbe struct {
	validator Validator
	dial      DialFunc
	rootCAs   *x509.CertPool
	now       func() time.Time
}

// TLSOption configures a TLSProbe.
type TLSOption func(*TLSProbe)

// WithDialer replaces the guarded dialer. Used by tests to reach loopback.
func WithDialer(d DialFunc) TLSOption {
	return func(p *TLSProbe) { p.dial = d }
}

// WithRootCAs replaces the system trust store.
func WithRootCAs(pool *x509.CertPool) TLSOption {
	return func(p *TLSProbe) { p.rootCAs = pool }
}

// NewTLSProbe returns a TLSProbe dialing through guard.SafeDialer.
func NewTLSProbe(v Validator, opts ...TLSOption) *TLSProbe {
	p := &TLSProbe{
		validator: v,
		dial:      guard.SafeDialer(constants.TLSDialTimeout).DialContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *TLSProbe) Name() run.Kind { return run.KindSSL }

// Check performs a verified handshake. More than 14 days of validity left is
// a pass, any positive remainder a warning, otherwise a failure. Plain http
// targets are skipped.
func (p *TLSProbe) Check(ctx context.Context, target string) (run.CheckResult, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "https" {
		return run.TLSResult{Header: run.Header{Status: run.StatusSkip, Message: "Site is not served over HTTPS"}}, nil
	}
	if p.validator != nil {
		if _, err := p.validator.Validate(ctx, target); err != nil {
			return nil, err
		}
	}

	port := u.Port()
	if port == "" {
		port = "443"
	}
	ctx, cancel := context.WithTimeout(ctx, constants.TLSDialTimeout)
	defer cancel()

	raw, err := p.dial(ctx, "tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return tlsErrorResult(err), nil
	}
	conn := tls.Client(raw, &tls.Config{ServerName: u.Hostname(), RootCAs: p.rootCAs})
	defer conn.Close()
	if err := conn.HandshakeContext(ctx); err != nil {
		return tlsErrorResult(err), nil
	}

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return run.TLSResult{Header: run.Header{Status: run.StatusFail, Message: "Could not retrieve SSL certificate"}}, nil
	}
	cert := state.PeerCertificates[0]

	days := int(math.Floor(cert.NotAfter.Sub(p.now()).Hours() / 24))
	soon := int(constants.TLSSoonExpiryWindow.Hours() / 24)
	status := run.StatusFail
	switch {
	case days > soon:
		status = run.StatusPass
	case days > 0:
		status = run.StatusWarning
	}

	msg := "SSL valid"
	if days != 0 {
		msg = fmt.Sprintf("SSL valid, expires in %d days", days)
	}
	return run.TLSResult{
		Header:        run.Header{Status: status, Message: msg},
		Valid:         true,
		ExpiresInDays: run.ScoreOf(days),
		Issuer:        issuerName(cert),
		Expires:       cert.NotAfter.UTC().Format("2006-01-02"),
		TLSVersion:    tlsVersionString(state.Version),
		CipherSuite:   cipherSuiteString(state.CipherSuite),
		Weaknesses:    tlsWeaknesses(state, cert),
	}, nil
}

func tlsErrorResult(err error) run.TLSResult {
	var verifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &verifyErr) || errors.As(err, &unknownAuthority) || errors.As(err, &hostErr) || errors.As(err, &invalidErr) {
		return run.TLSResult{Header: run.Header{Status: run.StatusFail, Message: truncate("SSL invalid: "+err.Error(), 100)}}
	}
	return run.TLSResult{Header: run.Header{Status: run.StatusError, Message: truncate(err.Error(), 100)}}
}

func issuerName(cert *x509.Certificate) string {
	if len(cert.Issuer.Organization) > 0 && cert.Issuer.Organization[0] != "" {
		return cert.Issuer.Organization[0]
	}
	if cert.Issuer.CommonName != "" {
		return cert.Issuer.CommonName
	}
	return "Unknown"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
