package config

import (
	"errors"
	"fmt"
	"strings"
)

// validLogLevels are the accepted logging.level values.
var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ErrMultipleClientCertificates is returned when more than one client
// certificate/key pair is enabled at the same time.
var ErrMultipleClientCertificates = errors.New("at most one client certificate key pair may be enabled")

// ValidationError describes an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Validate checks the whole document, including every subproject.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}
	if c.Logging.Level != "" && !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return &ValidationError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	if _, err := c.Timeout(); err != nil {
		return &ValidationError{Field: "callTimeout", Message: err.Error()}
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	for id := range c.Subprojects {
		if _, err := c.Resolve(id); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single subproject configuration.
func (s SubprojectConfig) Validate() error {
	switch s.HTTP.ProtocolVersion {
	case "", ProtocolVersionHTTP1Only, ProtocolVersionHTTP2Only, ProtocolVersionNegotiate:
	default:
		return &ValidationError{
			Field:   "http.protocolVersion",
			Message: fmt.Sprintf("unknown protocol version %q", s.HTTP.ProtocolVersion),
		}
	}

	limits := map[string]int64{
		"payload.outboundPayloadStorageLimit":                s.Payload.OutboundPayloadStorageLimit,
		"payload.inboundPayloadStorageLimit":                 s.Payload.InboundPayloadStorageLimit,
		"payload.accumulatedOutboundDataStorageLimitPerCall": s.Payload.AccumulatedOutboundDataStorageLimitPerCall,
		"payload.accumulatedInboundDataStorageLimitPerCall":  s.Payload.AccumulatedInboundDataStorageLimitPerCall,
		"responseSizeLimit":                                  s.ResponseSizeLimit,
	}
	for field, v := range limits {
		if v < 0 {
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
	}

	return s.SSL.Validate()
}

// Validate checks the SSL declaration.
func (s SSLConfig) Validate() error {
	for i, c := range s.TrustedCACertificates {
		if c.PEM == "" && c.File == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("ssl.trustedCaCertificates[%d]", i),
				Message: "either pem or file is required",
			}
		}
	}
	for i, p := range s.ClientCertificateKeyPairs {
		field := fmt.Sprintf("ssl.clientCertificateKeyPairs[%d]", i)
		if p.CertificatePEM == "" && p.CertificateFile == "" {
			return &ValidationError{Field: field, Message: "either certificatePem or certificateFile is required"}
		}
		if p.PrivateKeyPEM == "" && p.PrivateKeyFile == "" {
			return &ValidationError{Field: field, Message: "either privateKeyPem or privateKeyFile is required"}
		}
	}
	if n := len(s.EnabledClientKeyPairs()); n > 1 {
		return fmt.Errorf("%w: %d enabled", ErrMultipleClientCertificates, n)
	}
	return nil
}
