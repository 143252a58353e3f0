package config

// SSLConfig declares the trust and key material of a subproject.
// Certificates are given either inline as PEM text or as file paths.
type SSLConfig struct {
	// Insecure disables server certificate verification entirely. Nil
	// inherits the value of the configuration underneath.
	Insecure *bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`

	// TrustedCACertificates are custom CAs trusted in addition to, or instead
	// of, the system roots.
	TrustedCACertificates []TrustedCACertificate `json:"trustedCaCertificates,omitempty" yaml:"trustedCaCertificates,omitempty"`

	// DisableSystemCACertificates drops the system root pool. Nil inherits.
	DisableSystemCACertificates *bool `json:"disableSystemCaCertificates,omitempty" yaml:"disableSystemCaCertificates,omitempty"`

	// ClientCertificateKeyPairs are client identities for mutual TLS.
	// At most one may be enabled.
	ClientCertificateKeyPairs []ClientCertificateKeyPair `json:"clientCertificateKeyPairs,omitempty" yaml:"clientCertificateKeyPairs,omitempty"`
}

// TrustedCACertificate is one custom CA certificate (or bundle).
type TrustedCACertificate struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	PEM      string `json:"pem,omitempty" yaml:"pem,omitempty"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Enabled reports whether the certificate takes part in verification.
func (c TrustedCACertificate) Enabled() bool { return !c.Disabled }

// ClientCertificateKeyPair is a client certificate with its private key.
type ClientCertificateKeyPair struct {
	ID              string `json:"id,omitempty" yaml:"id,omitempty"`
	CertificatePEM  string `json:"certificatePem,omitempty" yaml:"certificatePem,omitempty"`
	CertificateFile string `json:"certificateFile,omitempty" yaml:"certificateFile,omitempty"`
	PrivateKeyPEM   string `json:"privateKeyPem,omitempty" yaml:"privateKeyPem,omitempty"`
	PrivateKeyFile  string `json:"privateKeyFile,omitempty" yaml:"privateKeyFile,omitempty"`
	Disabled        bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Enabled reports whether the key pair is offered during handshakes.
func (p ClientCertificateKeyPair) Enabled() bool { return !p.Disabled }

// EnabledClientKeyPairs returns the enabled key pairs in declaration order.
func (s SSLConfig) EnabledClientKeyPairs() []ClientCertificateKeyPair {
	var out []ClientCertificateKeyPair
	for _, p := range s.ClientCertificateKeyPairs {
		if p.Enabled() {
			out = append(out, p)
		}
	}
	return out
}

// EnabledCACertificates returns the enabled custom CAs in declaration order.
func (s SSLConfig) EnabledCACertificates() []TrustedCACertificate {
	var out []TrustedCACertificate
	for _, c := range s.TrustedCACertificates {
		if c.Enabled() {
			out = append(out, c)
		}
	}
	return out
}

// Bool returns a pointer to v, for the optional flags of SSLConfig.
func Bool(v bool) *bool { return &v }

// IsInsecure reports whether certificate verification is disabled.
func (s SSLConfig) IsInsecure() bool {
	return s.Insecure != nil && *s.Insecure
}

// SystemCACertificatesDisabled reports whether the system roots are dropped.
func (s SSLConfig) SystemCACertificatesDisabled() bool {
	return s.DisableSystemCACertificates != nil && *s.DisableSystemCACertificates
}

// IsZero reports whether no SSL setting is given.
func (s SSLConfig) IsZero() bool {
	return s.Insecure == nil && s.DisableSystemCACertificates == nil &&
		len(s.TrustedCACertificates) == 0 && len(s.ClientCertificateKeyPairs) == 0
}

// merge layers over on top of s. Flags set in over replace those of s, CA
// lists are concatenated and client key pairs replaced when over declares any.
func (s SSLConfig) merge(over SSLConfig) SSLConfig {
	out := SSLConfig{
		Insecure:                    overrideBool(s.Insecure, over.Insecure),
		DisableSystemCACertificates: overrideBool(s.DisableSystemCACertificates, over.DisableSystemCACertificates),
	}
	out.TrustedCACertificates = append(append(out.TrustedCACertificates, s.TrustedCACertificates...), over.TrustedCACertificates...)
	if len(over.ClientCertificateKeyPairs) > 0 {
		out.ClientCertificateKeyPairs = append(out.ClientCertificateKeyPairs, over.ClientCertificateKeyPairs...)
	} else {
		out.ClientCertificateKeyPairs = append(out.ClientCertificateKeyPairs, s.ClientCertificateKeyPairs...)
	}
	return out
}

func overrideBool(base, over *bool) *bool {
	if over != nil {
		return Bool(*over)
	}
	if base != nil {
		return Bool(*base)
	}
	return nil
}
