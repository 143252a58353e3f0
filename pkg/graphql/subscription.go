package graphql

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/websocket"
)

// subscription tracks the single operation of a call so that complete is
// sent at most once, and only for an operation the server knows about.
type subscription struct {
	id    string
	state *call.State
	sess  *websocket.Session

	mu         sync.Mutex
	subscribed bool
	completed  bool
}

// send writes msg and records it as outgoing data.
func (s *subscription) send(msg wsMessage) error {
	text, err := encode(msg)
	if err != nil {
		return err
	}
	if err := s.sess.SendText(text); err != nil {
		return err
	}
	s.state.AddPayloadExchange(call.PayloadOutgoingData, text)
	return nil
}

// subscribe sends the subscribe message unless ctx is already done.
func (s *subscription) subscribe(ctx context.Context, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if err := s.send(wsMessage{ID: s.id, Type: msgTypeSubscribe, Payload: payload}); err != nil {
		return err
	}
	s.subscribed = true
	return nil
}

// complete tells the server the client is done with the operation.
func (s *subscription) complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.subscribed || s.completed {
		return
	}
	s.completed = true
	_ = s.send(wsMessage{ID: s.id, Type: msgTypeComplete})
}

// markCompleted records that the server ended the operation.
func (s *subscription) markCompleted() {
	s.mu.Lock()
	s.completed = true
	s.mu.Unlock()
}
