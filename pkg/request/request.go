package request

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sunny-chung/hello-http-sub000/pkg/apispec"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
)

// KeyValue is an ordered name/value pair. Disabled pairs are ignored.
type KeyValue struct {
	Key      string `json:"key" yaml:"key"`
	Value    string `json:"value" yaml:"value"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Request is the protocol-agnostic request descriptor.
type Request struct {
	Protocol    protocol.Protocol `json:"protocol" yaml:"protocol"`
	Method      string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL         string            `json:"url" yaml:"url"`
	QueryParams []KeyValue        `json:"queryParams,omitempty" yaml:"queryParams,omitempty"`
	Headers     []KeyValue        `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body        Body              `json:"body,omitempty" yaml:"body,omitempty"`

	GRPC    *GRPC    `json:"grpc,omitempty" yaml:"grpc,omitempty"`
	GraphQL *GraphQL `json:"graphql,omitempty" yaml:"graphql,omitempty"`
}

// GRPC is the gRPC part of a request. The body is the request message in
// protobuf JSON form.
type GRPC struct {
	Service string           `json:"service" yaml:"service"`
	Method  string           `json:"method" yaml:"method"`
	Spec    *apispec.APISpec `json:"-" yaml:"-"`
}

// GraphQL is the GraphQL part of a request.
type GraphQL struct {
	Document      string `json:"document" yaml:"document"`
	Variables     string `json:"variables,omitempty" yaml:"variables,omitempty"`
	OperationName string `json:"operationName,omitempty" yaml:"operationName,omitempty"`

	// ConnectionInitPayload is sent with connection_init. It must be a JSON
	// object when set.
	ConnectionInitPayload string `json:"connectionInitPayload,omitempty" yaml:"connectionInitPayload,omitempty"`
}

// EnabledHeaders returns the headers that are not disabled.
func (r *Request) EnabledHeaders() []KeyValue {
	return enabled(r.Headers)
}

// ResolvedURL parses URL and appends the enabled query parameters.
func (r *Request) ResolvedURL() (*url.URL, error) {
	raw := strings.TrimSpace(r.URL)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty URL", protocol.ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", protocol.ErrInvalidURL, raw)
	}

	params := enabled(r.QueryParams)
	if len(params) > 0 {
		q := u.RawQuery
		for _, p := range params {
			if q != "" {
				q += "&"
			}
			q += url.QueryEscape(p.Key) + "=" + url.QueryEscape(p.Value)
		}
		u.RawQuery = q
	}
	return u, nil
}

// Validate checks the parts every adapter relies on.
func (r *Request) Validate() error {
	if !r.Protocol.IsValid() {
		return fmt.Errorf("%w: %q", protocol.ErrUnsupportedProtocol, r.Protocol)
	}
	if _, err := r.ResolvedURL(); err != nil {
		return err
	}
	switch r.Protocol {
	case protocol.ProtocolGRPC:
		if r.GRPC == nil || r.GRPC.Service == "" || r.GRPC.Method == "" {
			return fmt.Errorf("%w: gRPC service and method are required", protocol.ErrMissingExtra)
		}
	case protocol.ProtocolGraphQL:
		if r.GraphQL == nil || strings.TrimSpace(r.GraphQL.Document) == "" {
			return fmt.Errorf("%w: GraphQL document is required", protocol.ErrMissingExtra)
		}
	}
	return nil
}

func enabled(kvs []KeyValue) []KeyValue {
	out := make([]KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		if !kv.Disabled {
			out = append(out, kv)
		}
	}
	return out
}
