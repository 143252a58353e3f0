package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/logging"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
	hhtls "github.com/sunny-chung/hello-http-sub000/pkg/tls"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
)

// Adapter opens WebSocket calls.
type Adapter struct {
	log *slog.Logger

	HandshakeTimeout time.Duration
	ConnectTimeout   time.Duration
	Resolver         *net.Resolver
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// New creates a WebSocket adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logging.OrNop(a.log)
	return a
}

// Protocol implements the engine adapter contract.
func (a *Adapter) Protocol() protocol.Protocol {
	return protocol.ProtocolWebSocket
}

// Job returns the steps of one call.
func (a *Adapter) Job(req *request.Request) transport.Job {
	return &job{adapter: a, req: req}
}

// Handshake is a prepared WebSocket upgrade.
type Handshake struct {
	URL          *url.URL
	Header       http.Header
	Subprotocols []string
}

// PrepareHandshake resolves the URL of req and splits its headers into the
// upgrade header and the requested subprotocols. http and https URLs are
// mapped to ws and wss.
func PrepareHandshake(req *request.Request) (*Handshake, call.Headers, error) {
	u, err := req.ResolvedURL()
	if err != nil {
		return nil, nil, err
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, nil, fmt.Errorf("%w: unsupported scheme %q", protocol.ErrInvalidURL, u.Scheme)
	}

	h := &Handshake{URL: u, Header: make(http.Header)}
	var sent call.Headers
	for _, kv := range req.EnabledHeaders() {
		sent = append(sent, call.Header{Name: kv.Key, Value: kv.Value})
		if strings.EqualFold(kv.Key, "Sec-WebSocket-Protocol") {
			for _, p := range strings.Split(kv.Value, ",") {
				if p = strings.TrimSpace(p); p != "" {
					h.Subprotocols = append(h.Subprotocols, p)
				}
			}
			continue
		}
		h.Header.Add(kv.Key, kv.Value)
	}
	return h, sent, nil
}

// Connect dials the handshake for the call in e and records the upgrade
// response. The call is CONNECTED when it returns without error.
func Connect(e *transport.Exec, h *Handshake, timeout time.Duration, connectTimeout time.Duration, resolver *net.Resolver) (*Session, error) {
	s := e.State
	d := &transport.Dialer{State: s, ConnectTimeout: connectTimeout, Resolver: resolver}
	if h.URL.Scheme == "wss" {
		material, err := hhtls.Build(e.Options.SSL)
		if err != nil {
			return nil, err
		}
		d.TLS = material
	}

	sess, resp, err := Dial(e.Context(), h.URL.String(), DialOptions{
		Dialer:           d,
		Header:           h.Header,
		Subprotocols:     h.Subprotocols,
		HandshakeTimeout: timeout,
	})
	if resp != nil {
		recordHandshake(s, resp)
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket upgrade failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, err
	}

	if err := s.SetStatus(call.StatusConnected); err != nil {
		sess.Close(CloseNormal, "")
		return nil, err
	}
	if p := sess.Subprotocol(); p != "" {
		s.Emitf("WebSocket connected (subprotocol %s)", p)
	} else {
		s.Emit("WebSocket connected")
	}
	s.AddPayloadExchange(call.PayloadConnected, "")
	return sess, nil
}

func recordHandshake(s *call.State, resp *http.Response) {
	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	var headers call.Headers
	for _, name := range names {
		for _, v := range resp.Header[name] {
			headers = append(headers, call.Header{Name: name, Value: v})
		}
	}
	s.UpdateResponse(func(r *call.UserResponse) {
		r.StatusCode = resp.StatusCode
		r.StatusText = http.StatusText(resp.StatusCode)
		r.Headers = headers
		r.ProtocolVersion = resp.Proto
	})
}

type job struct {
	adapter   *Adapter
	req       *request.Request
	handshake *Handshake
}

func (j *job) Prepare(e *transport.Exec) error {
	h, sent, err := PrepareHandshake(j.req)
	if err != nil {
		return err
	}
	j.handshake = h
	e.State.UpdateResponse(func(r *call.UserResponse) {
		r.RequestData = &call.RequestData{Method: http.MethodGet, URL: h.URL.String(), Headers: sent}
	})
	return nil
}

func (j *job) Run(e *transport.Exec) error {
	s := e.State
	sess, err := Connect(e, j.handshake, j.adapter.HandshakeTimeout, j.adapter.ConnectTimeout, j.adapter.Resolver)
	if err != nil {
		return err
	}
	defer sess.Close(CloseNormal, "")
	e.OnCancel(func(error) { sess.Close(CloseNormal, "") })

	s.SetSendPayload(func(payload string) error {
		if err := sess.SendText(payload); err != nil {
			return err
		}
		s.AddPayloadExchange(call.PayloadOutgoingData, payload)
		return nil
	})
	defer s.SetSendPayload(nil)

	for {
		msg, err := sess.Receive()
		if err != nil {
			return j.closed(e, err)
		}
		s.AddPayloadExchange(call.PayloadIncomingData, msg.Text())
	}
}

// closed classifies the error that ended the receive loop.
func (j *job) closed(e *transport.Exec, err error) error {
	s := e.State
	if ctx := e.Context(); ctx.Err() != nil {
		s.AddPayloadExchange(call.PayloadDisconnected, "")
		return context.Cause(ctx)
	}
	if IsNormalClose(err) {
		var reason string
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			reason = ce.Text
		}
		s.Emit("Connection closed by server")
		s.AddPayloadExchange(call.PayloadDisconnected, reason)
		return nil
	}
	s.AddPayloadExchange(call.PayloadError, err.Error())
	return err
}

func binarySummary(n int) string {
	return fmt.Sprintf("(%d bytes of binary data)", n)
}
