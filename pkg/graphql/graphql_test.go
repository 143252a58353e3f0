package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
)

const subscriptionDoc = `subscription OnMessage($channel: String!) { messageAdded(channel: $channel) { id text } }`

// fakeServer is a scripted graphql-transport-ws server.
type fakeServer struct {
	t *testing.T

	// ack is the reply to connection_init.
	ack string
	// onSubscribe runs after the subscribe message arrived.
	onSubscribe func(ctx context.Context, conn *cws.Conn, id string)

	mu       sync.Mutex
	received []wsMessage
	done     chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	return &fakeServer{t: t, ack: msgTypeConnectionAck, done: make(chan struct{})}
}

func (f *fakeServer) messages() []wsMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wsMessage(nil), f.received...)
}

func (f *fakeServer) types() []string {
	var out []string
	for _, m := range f.messages() {
		out = append(out, m.Type)
	}
	return out
}

func (f *fakeServer) write(ctx context.Context, conn *cws.Conn, msg wsMessage) {
	data, _ := json.Marshal(msg)
	_ = conn.Write(ctx, cws.MessageText, data)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer close(f.done)
	conn, err := cws.Accept(w, r, &cws.AcceptOptions{Subprotocols: []string{Subprotocol}})
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg wsMessage
		if !assert.NoError(f.t, json.Unmarshal(data, &msg)) {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, msg)
		f.mu.Unlock()

		switch msg.Type {
		case msgTypeConnectionInit:
			f.write(ctx, conn, wsMessage{Type: f.ack})
		case msgTypeSubscribe:
			if f.onSubscribe != nil {
				go f.onSubscribe(ctx, conn, msg.ID)
			}
		}
	}
}

type result struct {
	state  *call.State
	resp   call.UserResponse
	events []string
}

func (r result) payloads(t call.PayloadType) []string {
	var out []string
	for _, p := range r.resp.PayloadExchanges {
		if p.Type == t {
			out = append(out, p.Data)
		}
	}
	return out
}

func run(t *testing.T, srv *httptest.Server, g *request.GraphQL, onEvent func(*call.State, call.NetworkEvent)) result {
	t.Helper()
	s := call.NewState("", call.WithProtocol(string(protocol.ProtocolGraphQL)))
	events, _ := s.Events().Subscribe(context.Background())

	r := &transport.Runner{}
	r.StartJob(s, transport.Options{}, New().Job(&request.Request{
		Protocol: protocol.ProtocolGraphQL,
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/graphql",
		GraphQL:  g,
	}))

	var texts []string
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return result{state: s, resp: s.Snapshot(), events: texts}
			}
			texts = append(texts, ev.Text)
			if onEvent != nil {
				onEvent(s, ev)
			}
		case <-timeout:
			t.Fatal("call did not finish")
		}
	}
}

func TestAdapter_Subscription(t *testing.T) {
	f := newFakeServer(t)
	f.onSubscribe = func(ctx context.Context, conn *cws.Conn, id string) {
		f.write(ctx, conn, wsMessage{Type: msgTypePing})
		f.write(ctx, conn, wsMessage{ID: "other", Type: msgTypeNext, Payload: json.RawMessage(`{"data":{"x":0}}`)})
		f.write(ctx, conn, wsMessage{ID: id, Type: msgTypeNext, Payload: json.RawMessage(`{"data":{"x":1}}`)})
		f.write(ctx, conn, wsMessage{ID: id, Type: msgTypeNext, Payload: json.RawMessage(`{"data":{"x":2}}`)})
		f.write(ctx, conn, wsMessage{ID: id, Type: msgTypeComplete})
	}
	srv := httptest.NewServer(f)
	defer srv.Close()

	res := run(t, srv, &request.GraphQL{
		Document:              subscriptionDoc,
		Variables:             `{"channel": "general"}`,
		ConnectionInitPayload: `{"token": "t"}`,
	}, nil)

	require.False(t, res.resp.IsError, res.resp.ErrorMessage)
	assert.Equal(t, `{"data":{"x":2}}`, string(res.resp.Body))
	assert.Contains(t, res.events, "Connection acknowledged")
	assert.Contains(t, res.events, "Subscription completed by server")
	assert.Equal(t, []call.Status{
		call.StatusPreparing, call.StatusConnecting, call.StatusConnected,
		call.StatusOpenForStreaming, call.StatusDisconnected,
	}, res.state.History())

	<-f.done
	msgs := f.messages()
	require.GreaterOrEqual(t, len(msgs), 3)
	assert.Equal(t, msgTypeConnectionInit, msgs[0].Type)
	assert.JSONEq(t, `{"token":"t"}`, string(msgs[0].Payload))
	assert.Equal(t, msgTypeSubscribe, msgs[1].Type)

	var p subscribePayload
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &p))
	assert.Equal(t, "OnMessage", p.OperationName)
	assert.JSONEq(t, `{"channel":"general"}`, string(p.Variables))
	assert.Equal(t, msgTypePong, msgs[2].Type)
	assert.NotContains(t, f.types(), msgTypeComplete)

	incoming := strings.Join(res.payloads(call.PayloadIncomingData), "\n")
	assert.Contains(t, incoming, `"x":1`)
	assert.Contains(t, incoming, `"other"`)

	require.NotNil(t, res.resp.RequestData)
	assert.JSONEq(t, string(msgs[1].Payload), string(res.resp.RequestData.Body))
}

func TestAdapter_NoConnectionAck(t *testing.T) {
	f := newFakeServer(t)
	f.ack = "connection_error"
	srv := httptest.NewServer(f)
	defer srv.Close()

	res := run(t, srv, &request.GraphQL{Document: subscriptionDoc}, nil)

	assert.True(t, res.resp.IsError)
	assert.Equal(t, "connection_ack was not received", res.resp.ErrorMessage)
	assert.Contains(t, res.events, "Error: connection_ack was not received")
	assert.NotContains(t, res.state.History(), call.StatusOpenForStreaming)

	<-f.done
	assert.Equal(t, []string{msgTypeConnectionInit}, f.types())
}

func TestAdapter_ServerError(t *testing.T) {
	f := newFakeServer(t)
	f.onSubscribe = func(ctx context.Context, conn *cws.Conn, id string) {
		f.write(ctx, conn, wsMessage{ID: id, Type: msgTypeError, Payload: json.RawMessage(`[{"message":"denied"}]`)})
	}
	srv := httptest.NewServer(f)
	defer srv.Close()

	res := run(t, srv, &request.GraphQL{Document: subscriptionDoc}, nil)

	assert.True(t, res.resp.IsError)
	assert.Equal(t, `[{"message":"denied"}]`, res.resp.ErrorMessage)
	assert.Equal(t, []string{`[{"message":"denied"}]`}, res.payloads(call.PayloadError))

	<-f.done
	assert.NotContains(t, f.types(), msgTypeComplete)
}

func TestAdapter_CancelSendsOneComplete(t *testing.T) {
	f := newFakeServer(t)
	f.onSubscribe = func(ctx context.Context, conn *cws.Conn, id string) {
		f.write(ctx, conn, wsMessage{ID: id, Type: msgTypeNext, Payload: json.RawMessage(`{"data":{"x":1}}`)})
	}
	srv := httptest.NewServer(f)
	defer srv.Close()

	var once sync.Once
	res := run(t, srv, &request.GraphQL{Document: subscriptionDoc}, func(s *call.State, ev call.NetworkEvent) {
		if strings.HasPrefix(ev.Text, "Subscribed with operation ID") {
			once.Do(func() {
				go func() {
					time.Sleep(100 * time.Millisecond)
					s.Cancel()
				}()
			})
		}
	})

	assert.True(t, res.resp.Canceled)
	assert.False(t, res.resp.IsError)
	assert.Contains(t, res.events, "Terminated by user")

	<-f.done
	var completes int
	for _, m := range f.messages() {
		if m.Type == msgTypeComplete {
			completes++
		}
	}
	assert.Equal(t, 1, completes)
	assert.Equal(t, msgTypeComplete, f.types()[len(f.types())-1])
}

func TestParseOperation(t *testing.T) {
	tests := []struct {
		name    string
		in      *request.GraphQL
		wantOp  string
		wantErr error
	}{
		{name: "single named", in: &request.GraphQL{Document: subscriptionDoc}, wantOp: "OnMessage"},
		{name: "anonymous", in: &request.GraphQL{Document: `subscription { tick }`}, wantOp: ""},
		{
			name:   "selects by name",
			in:     &request.GraphQL{Document: `subscription A { a } subscription B { b }`, OperationName: "B"},
			wantOp: "B",
		},
		{
			name:    "ambiguous",
			in:      &request.GraphQL{Document: `subscription A { a } subscription B { b }`},
			wantErr: protocol.ErrInvalidMessage,
		},
		{
			name:    "unknown name",
			in:      &request.GraphQL{Document: subscriptionDoc, OperationName: "Nope"},
			wantErr: protocol.ErrInvalidMessage,
		},
		{name: "syntax error", in: &request.GraphQL{Document: `subscription {`}, wantErr: protocol.ErrInvalidMessage},
		{name: "fragment only", in: &request.GraphQL{Document: `fragment F on T { a }`}, wantErr: protocol.ErrInvalidMessage},
		{
			name:    "variables not an object",
			in:      &request.GraphQL{Document: subscriptionDoc, Variables: `[1]`},
			wantErr: protocol.ErrInvalidMessage,
		},
		{
			name:    "init payload not JSON",
			in:      &request.GraphQL{Document: subscriptionDoc, ConnectionInitPayload: `token`},
			wantErr: protocol.ErrInvalidMessage,
		},
		{name: "missing", in: nil, wantErr: protocol.ErrMissingExtra},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := ParseOperation(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOp, op.OperationName)
		})
	}
}

func TestAdapter_PrepareFailure(t *testing.T) {
	srv := httptest.NewServer(newFakeServer(t))
	defer srv.Close()

	res := run(t, srv, &request.GraphQL{Document: `subscription {`}, nil)

	assert.True(t, res.resp.IsError)
	assert.Contains(t, res.resp.ErrorMessage, "invalid message")
}
