package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/sunny-chung/hello-http-sub000/pkg/config"
)

// Errors returned while building or using trust material.
var (
	// ErrNoTrustAnchors is reported during the handshake when neither system
	// nor custom CA certificates are available.
	ErrNoTrustAnchors = errors.New("no trusted CA certificates are configured")

	// ErrInvalidCACertificate is returned when a custom CA entry holds no
	// parseable certificate.
	ErrInvalidCACertificate = errors.New("invalid CA certificate")
)

// Material is the ready-to-use trust and key material of one SSL configuration.
type Material struct {
	// Insecure disables verification.
	Insecure bool

	// Roots is the trust pool; nil when Insecure or DenyAll.
	Roots *x509.CertPool

	// DenyAll is set when no trust anchor is available.
	DenyAll bool

	// ClientCertificate is the active client identity, if any.
	ClientCertificate *tls.Certificate

	// CustomCACount is the number of custom CA certificates added to Roots.
	CustomCACount int

	// UsesSystemRoots reports whether the system pool is part of Roots.
	UsesSystemRoots bool
}

// Build creates Material from an SSL configuration.
func Build(cfg config.SSLConfig) (*Material, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Material{}

	pairs := cfg.EnabledClientKeyPairs()
	if len(pairs) == 1 {
		cert, err := LoadKeyPair(pairs[0])
		if err != nil {
			return nil, err
		}
		m.ClientCertificate = &cert
	}

	if cfg.IsInsecure() {
		m.Insecure = true
		return m, nil
	}

	var pool *x509.CertPool
	if !cfg.SystemCACertificatesDisabled() {
		if sys, err := x509.SystemCertPool(); err == nil && sys != nil {
			pool = sys.Clone()
			m.UsesSystemRoots = true
		}
	}

	for _, ca := range cfg.EnabledCACertificates() {
		pemBytes, err := readPEM(ca.PEM, ca.File)
		if err != nil {
			return nil, fmt.Errorf("CA certificate %q: %w", ca.Name, err)
		}
		if pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCACertificate, ca.Name)
		}
		m.CustomCACount++
	}

	if pool == nil {
		m.DenyAll = true
		return m, nil
	}
	m.Roots = pool
	return m, nil
}

// ClientConfig returns a new client TLS configuration for one connection.
func (m *Material) ClientConfig(serverName string, nextProtos ...string) *tls.Config {
	conf := &tls.Config{
		ServerName: serverName,
		NextProtos: nextProtos,
	}

	switch {
	case m.Insecure:
		conf.InsecureSkipVerify = true
	case m.DenyAll:
		// Verification is replaced by an unconditional rejection.
		conf.InsecureSkipVerify = true
		conf.VerifyConnection = func(tls.ConnectionState) error {
			return ErrNoTrustAnchors
		}
	default:
		conf.RootCAs = m.Roots
	}

	if m.ClientCertificate != nil {
		conf.Certificates = []tls.Certificate{*m.ClientCertificate}
	}
	return conf
}

// Describe returns a one-line summary suitable for a lifecycle event.
func (m *Material) Describe() string {
	switch {
	case m.Insecure:
		return "TLS verification disabled"
	case m.DenyAll:
		return "no trusted CA certificates, all server certificates will be rejected"
	}
	s := fmt.Sprintf("trusting %d custom CA certificate(s)", m.CustomCACount)
	if m.UsesSystemRoots {
		s += " and system CA certificates"
	}
	if m.ClientCertificate != nil {
		s += ", presenting a client certificate"
	}
	return s
}

func readPEM(inline, file string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return data, nil
}
