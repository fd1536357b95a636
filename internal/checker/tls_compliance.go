package checker

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"
)

// versionSSL30 is the legacy SSL 3.0 protocol version, defined locally to
// avoid the deprecated tls.VersionSSL30 symbol.
const versionSSL30 uint16 = 0x0300

// Weak cipher suites, named with a marker so reports flag them.
var weakCipherSuites = map[uint16]string{
	tls.TLS_RSA_WITH_RC4_128_SHA:                "TLS_RSA_WITH_RC4_128_SHA",
	tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA:           "TLS_RSA_WITH_3DES_EDE_CBC_SHA",
	tls.TLS_RSA_WITH_AES_128_CBC_SHA:            "TLS_RSA_WITH_AES_128_CBC_SHA (weak)",
	tls.TLS_RSA_WITH_AES_256_CBC_SHA:            "TLS_RSA_WITH_AES_256_CBC_SHA (weak)",
	tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA:     "TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA",
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256: "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256 (CBC mode)",
}

const (
	minRSAKeyBits   = 2048
	minECDSAKeyBits = 224
)

// tlsWeaknesses lists protocol and certificate findings for a completed
// handshake: legacy protocol versions, weak or non forward-secret cipher
// suites, self-signed certificates, weak signatures and short keys.
func tlsWeaknesses(state tls.ConnectionState, cert *x509.Certificate) []string {
	var out []string

	if state.Version < tls.VersionTLS12 {
		out = append(out, fmt.Sprintf("Insecure protocol %s, only TLS 1.2 and 1.3 should be enabled", tlsVersionString(state.Version)))
	}
	if name, weak := weakCipherSuites[state.CipherSuite]; weak {
		out = append(out, "Weak cipher suite: "+name)
	}
	if state.Version < tls.VersionTLS13 {
		name := tls.CipherSuiteName(state.CipherSuite)
		if !strings.Contains(name, "ECDHE") && !strings.Contains(name, "DHE") {
			out = append(out, "Cipher suite lacks forward secrecy")
		}
	}

	if cert == nil {
		return out
	}
	if cert.Subject.String() == cert.Issuer.String() {
		out = append(out, "Self-signed certificate")
	}
	sig := strings.ToLower(cert.SignatureAlgorithm.String())
	if strings.Contains(sig, "md5") || strings.Contains(sig, "sha1") {
		out = append(out, "Weak signature algorithm: "+cert.SignatureAlgorithm.String())
	}
	switch key := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		if bits := key.N.BitLen(); bits < minRSAKeyBits {
			out = append(out, fmt.Sprintf("RSA key too small: %d bits", bits))
		}
	case *ecdsa.PublicKey:
		if bits := key.Curve.Params().BitSize; bits < minECDSAKeyBits {
			out = append(out, fmt.Sprintf("ECDSA key too small: %d bits", bits))
		}
	}
	return out
}

// tlsVersionString converts TLS version constant to string
func tlsVersionString(version uint16) string {
	switch version {
	case versionSSL30:
		return "SSL 3.0"
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04x)", version)
	}
}

// cipherSuiteString converts cipher suite constant to string
func cipherSuiteString(suite uint16) string {
	if name, ok := weakCipherSuites[suite]; ok {
		return name
	}
	if name := tls.CipherSuiteName(suite); name != "" {
		return name
	}
	return fmt.Sprintf("Unknown (0x%04x)", suite)
}
