package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/config"
	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
	"github.com/sunny-chung/hello-http-sub000/pkg/metrics"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
)

// drain reads events until the terminal one and returns their texts.
func drain(t *testing.T, s *call.State, events <-chan call.NetworkEvent) []string {
	t.Helper()
	var texts []string
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return texts
			}
			texts = append(texts, ev.Text)
		case <-timeout:
			t.Fatalf("call %s did not finish", s.ID)
		}
	}
}

func TestEngine_SendRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	m := metrics.New(metrics.Config{}, nil)
	eng, err := New(WithMetrics(m))
	require.NoError(t, err)

	s, err := eng.SendRequest(&request.Request{Protocol: protocol.ProtocolHTTP, URL: srv.URL},
		transport.Options{CallID: "call-1", RequestID: "r1", RequestExampleID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, "call-1", s.ID)
	assert.Equal(t, "r1", s.RequestID)

	got, ok := eng.CallState("call-1")
	require.True(t, ok)
	assert.Same(t, s, got)

	events, _ := s.Events().Subscribe(context.Background())
	texts := drain(t, s, events)
	assert.Equal(t, "Response completed", texts[len(texts)-1])

	resp := s.Snapshot()
	require.False(t, resp.IsError, resp.ErrorMessage)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))

	require.Eventually(t, func() bool {
		_, ok := eng.CallState("call-1")
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	var b strings.Builder
	require.NoError(t, m.WriteText(&b))
	assert.Contains(t, b.String(), `hellohttp_calls_completed_total{outcome="success",protocol="http"} 1`)
}

func TestEngine_DuplicateCallID(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	eng, err := New()
	require.NoError(t, err)

	req := &request.Request{Protocol: protocol.ProtocolHTTP, URL: srv.URL}
	s, err := eng.SendRequest(req, transport.Options{CallID: "dup"})
	require.NoError(t, err)
	defer s.Cancel()

	_, err = eng.SendRequest(req, transport.Options{CallID: "dup"})
	assert.ErrorIs(t, err, call.ErrCallExists)
}

func TestEngine_Cancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	eng, err := New()
	require.NoError(t, err)

	s, err := eng.SendRequest(&request.Request{Protocol: protocol.ProtocolHTTP, URL: srv.URL}, transport.Options{})
	require.NoError(t, err)
	events, _ := s.Events().Subscribe(context.Background())

	require.Eventually(t, func() bool {
		return s.Status() == call.StatusConnecting
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, eng.Cancel(s.ID))

	texts := drain(t, s, events)
	assert.Contains(t, texts, "Terminated by user")
	resp := s.Snapshot()
	assert.True(t, resp.Canceled)
	assert.False(t, resp.IsError)

	assert.ErrorIs(t, eng.Cancel("missing"), call.ErrCallNotFound)
}

func TestEngine_CallTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	m := metrics.New(metrics.Config{}, nil)
	eng, err := New(WithCallTimeout(100*time.Millisecond), WithMetrics(m))
	require.NoError(t, err)

	s, err := eng.SendRequest(&request.Request{Protocol: protocol.ProtocolHTTP, URL: srv.URL}, transport.Options{})
	require.NoError(t, err)
	events, _ := s.Events().Subscribe(context.Background())

	texts := drain(t, s, events)
	assert.Contains(t, texts, "Call timed out")
	resp := s.Snapshot()
	assert.True(t, resp.IsError)
	assert.Equal(t, "Call timed out", resp.ErrorMessage)
	assert.Equal(t, call.StatusDisconnected, s.Status())

	require.Eventually(t, func() bool {
		var b strings.Builder
		_ = m.WriteText(&b)
		return strings.Contains(b.String(), `hellohttp_calls_completed_total{outcome="timeout",protocol="http"} 1`)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEngine_ConfigTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.CallTimeout = "2s"
	eng, err := New(WithConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, eng.callTimeout)

	cfg.CallTimeout = "soon"
	_, err = New(WithConfig(cfg))
	assert.Error(t, err)
}

func TestEngine_SubprojectResolution(t *testing.T) {
	cfg := config.Default()
	cfg.Subprojects = map[string]config.SubprojectConfig{
		"legacy": {HTTP: config.HTTPConfig{ProtocolVersion: config.ProtocolVersionHTTP1Only}},
	}
	eng, err := New(WithConfig(cfg))
	require.NoError(t, err)

	opts, err := eng.Options("legacy")
	require.NoError(t, err)
	assert.Equal(t, config.ProtocolVersionHTTP1Only, opts.HTTP.ProtocolVersion)
	assert.Equal(t, config.DefaultResponseSizeLimit, opts.ResponseSizeLimit)

	opts, err = eng.Options("other")
	require.NoError(t, err)
	assert.Equal(t, config.ProtocolVersionNegotiate, opts.HTTP.ProtocolVersion)
}

func TestEngine_Errors(t *testing.T) {
	eng, err := New(WithoutDefaultAdapters())
	require.NoError(t, err)

	_, err = eng.SendRequest(&request.Request{Protocol: protocol.ProtocolHTTP, URL: "http://x"}, transport.Options{})
	assert.ErrorIs(t, err, protocol.ErrUnsupportedProtocol)

	_, err = eng.SendRequest(nil, transport.Options{})
	assert.ErrorIs(t, err, protocol.ErrMissingExtra)

	eng, err = New()
	require.NoError(t, err)
	_, err = eng.FetchGRPCSpec(context.Background(), "ftp://example.com", "")
	assert.ErrorIs(t, err, protocol.ErrInvalidURL)
}

type stubAdapter struct{ p protocol.Protocol }

func (a stubAdapter) Protocol() protocol.Protocol { return a.p }

func (a stubAdapter) Job(*request.Request) transport.Job { return nil }

func TestEngine_Register(t *testing.T) {
	eng, err := New()
	require.NoError(t, err)
	assert.ErrorIs(t, eng.Register(stubAdapter{p: protocol.ProtocolHTTP}), protocol.ErrAdapterExists)

	eng, err = New(WithoutDefaultAdapters())
	require.NoError(t, err)
	assert.NoError(t, eng.Register(stubAdapter{p: protocol.ProtocolHTTP}))
}

func TestEngine_SendPayload(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	eng, err := New()
	require.NoError(t, err)

	s, err := eng.SendRequest(&request.Request{Protocol: protocol.ProtocolHTTP, URL: srv.URL}, transport.Options{})
	require.NoError(t, err)
	defer s.Cancel()

	err = eng.SendPayload(s.ID, "hello")
	assert.ErrorIs(t, err, call.ErrNotSupported)
	assert.ErrorContains(t, err, "http")

	assert.ErrorIs(t, eng.SendPayload("missing", "hello"), call.ErrCallNotFound)
}

func TestEngine_Protocols(t *testing.T) {
	eng, err := New()
	require.NoError(t, err)
	assert.Equal(t, protocol.All, eng.Protocols())

	eng, err = New(WithoutDefaultAdapters())
	require.NoError(t, err)
	assert.Empty(t, eng.Protocols())
	require.NoError(t, eng.Register(stubAdapter{p: "mqtt"}))
	require.NoError(t, eng.Register(stubAdapter{p: protocol.ProtocolWebSocket}))
	assert.Equal(t, []protocol.Protocol{protocol.ProtocolWebSocket, "mqtt"}, eng.Protocols())
}

func TestFillOptions(t *testing.T) {
	resolved := transport.Options{
		HTTP:              config.HTTPConfig{ProtocolVersion: config.ProtocolVersionHTTP2Only},
		SSL:               config.SSLConfig{Insecure: config.Bool(true)},
		Limits:            exchange.Limits{Outbound: 10, Inbound: 10},
		ResponseSizeLimit: 100,
	}

	got := fillOptions(transport.Options{CallID: "c", SubprojectID: "s"}, resolved)
	assert.Equal(t, "c", got.CallID)
	assert.Equal(t, "s", got.SubprojectID)
	assert.Equal(t, config.ProtocolVersionHTTP2Only, got.HTTP.ProtocolVersion)
	assert.True(t, got.SSL.IsInsecure())
	assert.Equal(t, resolved.Limits, got.Limits)
	assert.Equal(t, int64(100), got.ResponseSizeLimit)

	// Caller settings survive even when the protocol version is left to the config.
	own := transport.Options{
		SSL:               config.SSLConfig{TrustedCACertificates: []config.TrustedCACertificate{{Name: "mine", PEM: "x"}}},
		Limits:            exchange.Limits{Inbound: 1},
		ResponseSizeLimit: 5,
	}
	got = fillOptions(own, resolved)
	assert.Equal(t, config.ProtocolVersionHTTP2Only, got.HTTP.ProtocolVersion)
	assert.Equal(t, own.SSL, got.SSL)
	assert.False(t, got.SSL.IsInsecure())
	assert.Equal(t, own.Limits, got.Limits)
	assert.Equal(t, int64(5), got.ResponseSizeLimit)
}
