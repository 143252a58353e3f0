package transport

import (
	"github.com/sunny-chung/hello-http-sub000/pkg/config"
	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
	"github.com/sunny-chung/hello-http-sub000/pkg/postflight"
)

// Options are the per-call inputs of SendRequest besides the request itself.
type Options struct {
	// CallID is optional; an id is generated when empty.
	CallID string

	RequestExampleID string
	RequestID        string
	SubprojectID     string

	// PostFlight runs after a successful call.
	PostFlight postflight.Action

	HTTP config.HTTPConfig
	SSL  config.SSLConfig

	Limits            exchange.Limits
	ResponseSizeLimit int64
}

// OptionsFor fills the configuration part of Options from a resolved
// subproject.
func OptionsFor(subprojectID string, sub config.SubprojectConfig) Options {
	return Options{
		SubprojectID:      subprojectID,
		HTTP:              sub.HTTP,
		SSL:               sub.SSL,
		Limits:            exchange.LimitsFrom(sub.Payload),
		ResponseSizeLimit: sub.ResponseSizeLimit,
	}
}
