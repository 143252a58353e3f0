package config

import (
	"fmt"
	"time"
)

// ProtocolVersion is the HTTP protocol preference of a subproject.
type ProtocolVersion string

// Supported protocol versions.
const (
	ProtocolVersionHTTP1Only ProtocolVersion = "http1only"
	ProtocolVersionHTTP2Only ProtocolVersion = "http2only"
	ProtocolVersionNegotiate ProtocolVersion = "negotiate"
)

// Default limits, in bytes.
const (
	DefaultPayloadStorageLimit     int64 = 2 << 20
	DefaultAccumulatedStorageLimit int64 = 16 << 20
	DefaultResponseSizeLimit       int64 = 10 << 20
)

// Config is the root configuration document.
type Config struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// CallTimeout is an overall per-call timeout such as "30s". Empty disables it.
	CallTimeout string `json:"callTimeout,omitempty" yaml:"callTimeout,omitempty"`

	// Defaults apply to every subproject.
	Defaults SubprojectConfig `json:"defaults" yaml:"defaults"`

	// Subprojects override Defaults, keyed by subproject id.
	Subprojects map[string]SubprojectConfig `json:"subprojects,omitempty" yaml:"subprojects,omitempty"`
}

// LoggingConfig configures the operational logger.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// SubprojectConfig is the per-subproject configuration.
type SubprojectConfig struct {
	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	SSL     SSLConfig     `json:"ssl" yaml:"ssl"`
	Payload PayloadLimits `json:"payload" yaml:"payload"`

	// ResponseSizeLimit caps the response body kept on the UserResponse.
	ResponseSizeLimit int64 `json:"responseSizeLimit,omitempty" yaml:"responseSizeLimit,omitempty"`
}

// HTTPConfig holds HTTP transport preferences.
type HTTPConfig struct {
	ProtocolVersion ProtocolVersion `json:"protocolVersion,omitempty" yaml:"protocolVersion,omitempty"`
}

// PayloadLimits bound what the raw exchange log stores. They never affect
// what is transferred on the wire.
type PayloadLimits struct {
	OutboundPayloadStorageLimit                int64 `json:"outboundPayloadStorageLimit,omitempty" yaml:"outboundPayloadStorageLimit,omitempty"`
	InboundPayloadStorageLimit                 int64 `json:"inboundPayloadStorageLimit,omitempty" yaml:"inboundPayloadStorageLimit,omitempty"`
	AccumulatedOutboundDataStorageLimitPerCall int64 `json:"accumulatedOutboundDataStorageLimitPerCall,omitempty" yaml:"accumulatedOutboundDataStorageLimitPerCall,omitempty"`
	AccumulatedInboundDataStorageLimitPerCall  int64 `json:"accumulatedInboundDataStorageLimitPerCall,omitempty" yaml:"accumulatedInboundDataStorageLimitPerCall,omitempty"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Defaults: SubprojectConfig{
			HTTP: HTTPConfig{ProtocolVersion: ProtocolVersionNegotiate},
			Payload: PayloadLimits{
				OutboundPayloadStorageLimit:                DefaultPayloadStorageLimit,
				InboundPayloadStorageLimit:                 DefaultPayloadStorageLimit,
				AccumulatedOutboundDataStorageLimitPerCall: DefaultAccumulatedStorageLimit,
				AccumulatedInboundDataStorageLimitPerCall:  DefaultAccumulatedStorageLimit,
			},
			ResponseSizeLimit: DefaultResponseSizeLimit,
		},
	}
}

// Timeout returns the parsed CallTimeout, or zero when unset.
func (c *Config) Timeout() (time.Duration, error) {
	if c.CallTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CallTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid callTimeout %q: %w", c.CallTimeout, err)
	}
	return d, nil
}

// Resolve returns the effective configuration of a subproject.
// Unknown subprojects resolve to the defaults.
func (c *Config) Resolve(subprojectID string) (SubprojectConfig, error) {
	merged := c.Defaults
	if sub, ok := c.Subprojects[subprojectID]; ok {
		merged = merge(c.Defaults, sub)
	}
	if merged.HTTP.ProtocolVersion == "" {
		merged.HTTP.ProtocolVersion = ProtocolVersionNegotiate
	}
	if err := merged.Validate(); err != nil {
		return SubprojectConfig{}, fmt.Errorf("subproject %q: %w", subprojectID, err)
	}
	return merged, nil
}

func merge(base, over SubprojectConfig) SubprojectConfig {
	out := base
	if over.HTTP.ProtocolVersion != "" {
		out.HTTP.ProtocolVersion = over.HTTP.ProtocolVersion
	}
	out.SSL = base.SSL.merge(over.SSL)
	if over.Payload.OutboundPayloadStorageLimit != 0 {
		out.Payload.OutboundPayloadStorageLimit = over.Payload.OutboundPayloadStorageLimit
	}
	if over.Payload.InboundPayloadStorageLimit != 0 {
		out.Payload.InboundPayloadStorageLimit = over.Payload.InboundPayloadStorageLimit
	}
	if over.Payload.AccumulatedOutboundDataStorageLimitPerCall != 0 {
		out.Payload.AccumulatedOutboundDataStorageLimitPerCall = over.Payload.AccumulatedOutboundDataStorageLimitPerCall
	}
	if over.Payload.AccumulatedInboundDataStorageLimitPerCall != 0 {
		out.Payload.AccumulatedInboundDataStorageLimitPerCall = over.Payload.AccumulatedInboundDataStorageLimitPerCall
	}
	if over.ResponseSizeLimit != 0 {
		out.ResponseSizeLimit = over.ResponseSizeLimit
	}
	return out
}
