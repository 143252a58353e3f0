package call

import (
	"strings"
	"time"
)

// Header is one header field. Order and duplicates are preserved.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an ordered header list.
type Headers []Header

// Get returns the first value of name, compared case-insensitively.
func (h Headers) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value of name, compared case-insensitively.
func (h Headers) Values(name string) []string {
	var out []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// PayloadType classifies an application-level message of a duplex call.
type PayloadType string

const (
	PayloadConnected    PayloadType = "connected"
	PayloadDisconnected PayloadType = "disconnected"
	PayloadIncomingData PayloadType = "incoming"
	PayloadOutgoingData PayloadType = "outgoing"
	PayloadError        PayloadType = "error"
)

// PayloadExchange is one application-level message of a duplex call. Unlike
// the raw exchange log it carries message boundaries, not wire bytes.
type PayloadExchange struct {
	ID   string      `json:"id"`
	Time time.Time   `json:"time"`
	Type PayloadType `json:"type"`
	Data string      `json:"data,omitempty"`
}

// RequestData is the request as it was actually sent.
type RequestData struct {
	Method  string  `json:"method,omitempty"`
	URL     string  `json:"url"`
	Headers Headers `json:"headers,omitempty"`
	Body    []byte  `json:"body,omitempty"`
}

// UserResponse accumulates what the caller sees of a call.
type UserResponse struct {
	StatusCode int     `json:"statusCode"`
	StatusText string  `json:"statusText,omitempty"`
	Headers    Headers `json:"headers,omitempty"`
	Body       []byte  `json:"body,omitempty"`

	// BodyTruncated is set when the body exceeded the response size limit.
	BodyTruncated bool `json:"bodyTruncated,omitempty"`

	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt,omitempty"`

	IsError                bool   `json:"isError,omitempty"`
	ErrorMessage           string `json:"errorMessage,omitempty"`
	PostFlightErrorMessage string `json:"postFlightErrorMessage,omitempty"`
	Canceled               bool   `json:"canceled,omitempty"`

	ProtocolVersion string `json:"protocolVersion,omitempty"`
	IsCommunicating bool   `json:"isCommunicating"`

	RequestData      *RequestData      `json:"requestData,omitempty"`
	PayloadExchanges []PayloadExchange `json:"payloadExchanges,omitempty"`
}

// Duration returns EndAt - StartAt, or zero while the call is running.
func (r *UserResponse) Duration() time.Duration {
	if r.EndAt.IsZero() || r.StartAt.IsZero() {
		return 0
	}
	return r.EndAt.Sub(r.StartAt)
}

func (r *UserResponse) clone() UserResponse {
	out := *r
	out.Headers = append(Headers(nil), r.Headers...)
	out.Body = append([]byte(nil), r.Body...)
	out.PayloadExchanges = append([]PayloadExchange(nil), r.PayloadExchanges...)
	if r.RequestData != nil {
		rd := *r.RequestData
		rd.Headers = append(Headers(nil), rd.Headers...)
		rd.Body = append([]byte(nil), rd.Body...)
		out.RequestData = &rd
	}
	return out
}
