package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/config"
	"github.com/sunny-chung/hello-http-sub000/pkg/http2trace"
	"github.com/sunny-chung/hello-http-sub000/pkg/logging"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
	hhtls "github.com/sunny-chung/hello-http-sub000/pkg/tls"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
)

// ErrHTTP2NotNegotiated is returned when http2only is configured and the
// server did not accept h2 via ALPN.
var ErrHTTP2NotNegotiated = errors.New("server did not negotiate HTTP/2")

const shutdownTimeout = time.Second

// Adapter sends HTTP requests.
type Adapter struct {
	log *slog.Logger

	// IdleTimeout is how long an HTTP/2 connection may have no open stream
	// before it is closed. Zero uses http2trace.DefaultIdleTimeout.
	IdleTimeout time.Duration

	// ConnectTimeout bounds DNS and TCP connect.
	ConnectTimeout time.Duration

	// Resolver overrides the DNS resolver.
	Resolver *net.Resolver
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// WithIdleTimeout sets the HTTP/2 idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.IdleTimeout = d }
}

// New creates an HTTP adapter.
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
	return protocol.ProtocolHTTP
}

// Job returns the steps of one call.
func (a *Adapter) Job(req *request.Request) transport.Job {
	return &job{adapter: a, req: req}
}

type job struct {
	adapter *Adapter
	req     *request.Request

	url     *url.URL
	method  string
	headers http.Header
	body    []byte
}

func (j *job) Prepare(e *transport.Exec) error {
	u, err := j.req.ResolvedURL()
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", protocol.ErrInvalidURL, u.Scheme)
	}

	encoded, err := j.req.Body.Encode()
	if err != nil {
		return err
	}

	method := strings.ToUpper(strings.TrimSpace(j.req.Method))
	if method == "" {
		method = http.MethodGet
	}

	headers := make(http.Header)
	var sent call.Headers
	for _, kv := range j.req.EnabledHeaders() {
		headers.Add(kv.Key, kv.Value)
		sent = append(sent, call.Header{Name: kv.Key, Value: kv.Value})
	}
	if encoded.ContentType != "" && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", encoded.ContentType)
		sent = append(sent, call.Header{Name: "Content-Type", Value: encoded.ContentType})
	}

	j.url = u
	j.method = method
	j.headers = headers
	j.body = encoded.Data

	e.State.UpdateResponse(func(resp *call.UserResponse) {
		resp.RequestData = &call.RequestData{
			Method:  method,
			URL:     u.String(),
			Headers: sent,
			Body:    encoded.Data,
		}
	})
	return nil
}

func (j *job) newRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if j.body != nil {
		body = bytes.NewReader(j.body)
	}
	req, err := http.NewRequestWithContext(ctx, j.method, j.url.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = j.headers.Clone()
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
		req.Header.Del("Host")
	}
	return req, nil
}

func (j *job) Run(e *transport.Exec) error {
	s := e.State
	ctx := e.Context()
	secure := j.url.Scheme == "https"

	version := e.Options.HTTP.ProtocolVersion
	if version == "" {
		version = config.ProtocolVersionNegotiate
	}

	d := &transport.Dialer{
		State:          s,
		ConnectTimeout: j.adapter.ConnectTimeout,
		Resolver:       j.adapter.Resolver,
	}

	addr := hostPort(j.url)
	var conn *transport.CaptureConn
	if secure {
		material, err := hhtls.Build(e.Options.SSL)
		if err != nil {
			return err
		}
		d.TLS = material
		conn, err = d.DialTLSContext(ctx, "tcp", addr, j.url.Hostname(), alpnFor(version)...)
		if err != nil {
			return err
		}
	} else {
		var err error
		conn, err = d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
	}
	defer conn.Close()
	e.OnCancel(func(error) { conn.Close() })

	useH2 := version == config.ProtocolVersionHTTP2Only
	if secure {
		useH2 = conn.NegotiatedProtocol() == http2.NextProtoTLS
		if version == config.ProtocolVersionHTTP2Only && !useH2 {
			return ErrHTTP2NotNegotiated
		}
	}

	req, err := j.newRequest(ctx)
	if err != nil {
		return err
	}

	if useH2 {
		return j.roundTripH2(e, conn, req)
	}
	return j.roundTripH1(e, conn, req)
}

func (j *job) roundTripH1(e *transport.Exec, conn *transport.CaptureConn, req *http.Request) error {
	var used atomic.Bool
	dial := func(context.Context, string, string) (net.Conn, error) {
		if used.Swap(true) {
			return nil, errors.New("connection already used")
		}
		return conn, nil
	}
	tr := &http.Transport{
		DialContext:        dial,
		DialTLSContext:     dial,
		DisableKeepAlives:  true,
		DisableCompression: true,
		TLSNextProto:       map[string]func(string, *tls.Conn) http.RoundTripper{},
	}
	defer tr.CloseIdleConnections()

	e.State.Emit("Sending request")
	resp, err := tr.RoundTrip(req)
	if err != nil {
		return err
	}
	return j.readResponse(e, resp)
}

func (j *job) roundTripH2(e *transport.Exec, conn *transport.CaptureConn, req *http.Request) error {
	s := e.State

	var idle atomic.Bool
	sniffer := http2trace.New(s.Outgoing(), s.Incoming(),
		http2trace.WithLogger(e.Log),
		http2trace.WithIdleCallback(j.adapter.IdleTimeout, func() {
			idle.Store(true)
			s.Emit("Closing idle HTTP/2 connection")
			conn.Close()
		}),
	)
	defer sniffer.Close()
	conn.SetTaps(sniffer.Outgoing(), sniffer.Incoming())

	tr := &http2.Transport{AllowHTTP: true, DisableCompression: true}
	cc, err := tr.NewClientConn(conn)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := cc.Shutdown(ctx); err != nil {
			cc.Close()
		}
	}()

	s.Emit("Sending request")
	resp, err := cc.RoundTrip(req)
	if err != nil {
		if idle.Load() {
			return protocol.ErrIdleConnection
		}
		return err
	}
	if err := j.readResponse(e, resp); err != nil {
		if idle.Load() {
			return protocol.ErrIdleConnection
		}
		return err
	}
	return nil
}

func (j *job) readResponse(e *transport.Exec, resp *http.Response) error {
	defer resp.Body.Close()
	s := e.State

	s.Emitf("Response headers received: %s", resp.Status)
	s.UpdateResponse(func(r *call.UserResponse) {
		r.StatusCode = resp.StatusCode
		r.StatusText = statusText(resp)
		r.Headers = flattenHeaders(resp.Header)
		r.ProtocolVersion = resp.Proto
	})

	body, truncated, err := readCapped(resp.Body, e.Options.ResponseSizeLimit)
	s.UpdateResponse(func(r *call.UserResponse) {
		r.Body = body
		r.BodyTruncated = truncated
	})
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if truncated {
		s.Emitf("Response body truncated to %d bytes", len(body))
	}
	s.Emit("Response body received")
	return nil
}

// readCapped reads r to the end and keeps at most limit bytes. A limit <= 0
// keeps everything.
func readCapped(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		b, err := io.ReadAll(r)
		return b, false, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, limit)); err != nil {
		return buf.Bytes(), false, err
	}
	rest, err := io.Copy(io.Discard, r)
	return buf.Bytes(), rest > 0, err
}

func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// flattenHeaders returns the header fields sorted by name. Values of one
// name keep their order.
func flattenHeaders(h http.Header) call.Headers {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var out call.Headers
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, call.Header{Name: name, Value: v})
		}
	}
	return out
}

func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func alpnFor(v config.ProtocolVersion) []string {
	switch v {
	case config.ProtocolVersionHTTP1Only:
		return []string{"http/1.1"}
	case config.ProtocolVersionHTTP2Only:
		return []string{http2.NextProtoTLS}
	default:
		return []string{http2.NextProtoTLS, "http/1.1"}
	}
}
