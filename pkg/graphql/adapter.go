package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/logging"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
	"github.com/sunny-chung/hello-http-sub000/pkg/websocket"
)

var (
	// ErrNoConnectionAck is returned when the server answers connection_init
	// with anything but connection_ack.
	ErrNoConnectionAck = errors.New("connection_ack was not received")

	// ErrSubscription is returned when the server sends an error message for
	// the subscription.
	ErrSubscription = errors.New("subscription failed")
)

// Adapter runs GraphQL subscriptions.
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

// New creates a GraphQL adapter.
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
	return protocol.ProtocolGraphQL
}

// Job returns the steps of one call.
func (a *Adapter) Job(req *request.Request) transport.Job {
	return &job{adapter: a, req: req}
}

type job struct {
	adapter   *Adapter
	req       *request.Request
	handshake *websocket.Handshake
	op        *Operation
	payload   json.RawMessage
	sub       *subscription
}

func (j *job) Prepare(e *transport.Exec) error {
	op, err := ParseOperation(j.req.GraphQL)
	if err != nil {
		return err
	}
	h, sent, err := websocket.PrepareHandshake(j.req)
	if err != nil {
		return err
	}
	if !hasSubprotocol(h.Subprotocols, Subprotocol) {
		h.Subprotocols = append(h.Subprotocols, Subprotocol)
	}

	j.op = op
	j.handshake = h
	j.sub = &subscription{id: uuid.NewString(), state: e.State}

	body, err := json.Marshal(subscribePayload{
		Query:         op.Document,
		OperationName: op.OperationName,
		Variables:     op.Variables,
	})
	if err != nil {
		return err
	}
	j.payload = body
	e.State.UpdateResponse(func(r *call.UserResponse) {
		r.RequestData = &call.RequestData{
			Method:  http.MethodGet,
			URL:     h.URL.String(),
			Headers: sent,
			Body:    body,
		}
	})
	return nil
}

func (j *job) Run(e *transport.Exec) error {
	s := e.State
	a := j.adapter
	sess, err := websocket.Connect(e, j.handshake, a.HandshakeTimeout, a.ConnectTimeout, a.Resolver)
	if err != nil {
		return err
	}
	defer sess.Close(websocket.CloseNormal, "")

	sub := j.sub
	sub.sess = sess
	e.OnCancel(func(error) {
		sub.complete()
		sess.Close(websocket.CloseNormal, "")
	})

	if p := sess.Subprotocol(); p != Subprotocol {
		e.Log.Debug("server did not select the subprotocol", "subprotocol", p)
	}

	if err := sub.send(wsMessage{Type: msgTypeConnectionInit, Payload: j.op.InitPayload}); err != nil {
		return j.ended(e, err)
	}
	if err := j.awaitAck(e, sess); err != nil {
		return err
	}
	s.Emit("Connection acknowledged")

	if err := sub.subscribe(e.Context(), j.payload); err != nil {
		return j.ended(e, err)
	}
	if err := s.SetStatus(call.StatusOpenForStreaming); err != nil {
		return err
	}
	s.Emitf("Subscribed with operation ID %s", sub.id)

	return j.stream(e, sess)
}

// awaitAck reads until connection_ack. Pings are answered; anything else
// fails the call.
func (j *job) awaitAck(e *transport.Exec, sess *websocket.Session) error {
	for {
		msg, open, err := j.receive(e, sess)
		if err != nil {
			return err
		}
		if !open {
			return ErrNoConnectionAck
		}
		switch msg.Type {
		case msgTypeConnectionAck:
			return nil
		case msgTypePing:
			if err := j.sub.send(wsMessage{Type: msgTypePong}); err != nil {
				return j.ended(e, err)
			}
		default:
			e.Log.Debug("unexpected message before connection_ack", "type", msg.Type)
			e.State.AddPayloadExchange(call.PayloadError, ErrNoConnectionAck.Error())
			return ErrNoConnectionAck
		}
	}
}

func (j *job) stream(e *transport.Exec, sess *websocket.Session) error {
	s := e.State
	sub := j.sub
	for {
		msg, open, err := j.receive(e, sess)
		if err != nil || !open {
			return err
		}

		switch msg.Type {
		case msgTypePing:
			if err := sub.send(wsMessage{Type: msgTypePong}); err != nil {
				return j.ended(e, err)
			}
			continue
		case msgTypePong:
			continue
		case msgTypeNext, msgTypeError, msgTypeComplete:
			if msg.ID != sub.id {
				e.Log.Debug("ignoring message for another operation", "type", msg.Type, "id", msg.ID)
				continue
			}
		default:
			e.Log.Debug("ignoring unknown message", "type", msg.Type)
			continue
		}

		switch msg.Type {
		case msgTypeNext:
			s.UpdateResponse(func(r *call.UserResponse) {
				r.Body = append([]byte(nil), msg.Payload...)
			})
		case msgTypeError:
			sub.markCompleted()
			s.AddPayloadExchange(call.PayloadError, string(msg.Payload))
			s.UpdateResponse(func(r *call.UserResponse) {
				r.ErrorMessage = string(msg.Payload)
			})
			return fmt.Errorf("%w: %s", ErrSubscription, msg.Payload)
		case msgTypeComplete:
			sub.markCompleted()
			s.Emit("Subscription completed by server")
			return nil
		}
	}
}

// receive reads and records one message. open is false once the server
// has closed the socket normally. After cancellation the message read
// concurrently is dropped and the cancel cause returned.
func (j *job) receive(e *transport.Exec, sess *websocket.Session) (msg wsMessage, open bool, err error) {
	s := e.State
	m, err := sess.Receive()
	if ctx := e.Context(); ctx.Err() != nil {
		s.AddPayloadExchange(call.PayloadDisconnected, "")
		return msg, false, context.Cause(ctx)
	}
	if err != nil {
		return msg, false, j.ended(e, err)
	}

	text := m.Text()
	s.AddPayloadExchange(call.PayloadIncomingData, text)
	if msg, err = decode(text); err != nil {
		s.AddPayloadExchange(call.PayloadError, err.Error())
		return msg, false, err
	}
	return msg, true, nil
}

// ended classifies a socket error. A normal close yields nil.
func (j *job) ended(e *transport.Exec, err error) error {
	s := e.State
	if ctx := e.Context(); ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if websocket.IsNormalClose(err) {
		s.Emit("Connection closed by server")
		s.AddPayloadExchange(call.PayloadDisconnected, "")
		return nil
	}
	s.AddPayloadExchange(call.PayloadError, err.Error())
	return err
}

func hasSubprotocol(list []string, p string) bool {
	for _, v := range list {
		if strings.EqualFold(v, p) {
			return true
		}
	}
	return false
}
