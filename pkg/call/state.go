package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sunny-chung/hello-http-sub000/internal/id"
	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
	"github.com/sunny-chung/hello-http-sub000/pkg/logging"
)

// DefaultPreparationTimeout bounds the wait for the preparation barrier.
const DefaultPreparationTimeout = 3 * time.Second

// Option configures a State.
type Option func(*State)

// WithSubproject sets the owning subproject.
func WithSubproject(subprojectID string) Option {
	return func(s *State) { s.SubprojectID = subprojectID }
}

// WithRequest sets the request and request example the call was made from.
func WithRequest(requestID, exampleID string) Option {
	return func(s *State) {
		s.RequestID = requestID
		s.RequestExampleID = exampleID
	}
}

// WithProtocol tags the call with its protocol name.
func WithProtocol(protocol string) Option {
	return func(s *State) { s.Protocol = protocol }
}

// WithLimits sets the exchange log limits.
func WithLimits(l exchange.Limits) Option {
	return func(s *State) { s.limits = l }
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *State) { s.log = log }
}

// State is the mutable record of one call.
type State struct {
	ID               string
	SubprojectID     string
	RequestID        string
	RequestExampleID string
	Protocol         string

	log    *slog.Logger
	limits exchange.Limits

	mu       sync.Mutex
	status   Status
	history  []Status
	response UserResponse

	prepared    chan struct{}
	prepareOnce sync.Once
	prepareErr  error

	events   *EventBus
	recorder *exchange.Recorder

	cancelMu    sync.Mutex
	cancelFn    func(cause error)
	canceled    bool
	cancelCause error

	sendMu      sync.RWMutex
	sendPayload func(string) error
}

// NewState creates a call in PREPARING. An empty id is replaced by a
// generated one.
func NewState(callID string, opts ...Option) *State {
	if callID == "" {
		callID = id.Call()
	}
	s := &State{
		ID:       callID,
		status:   StatusPreparing,
		history:  []Status{StatusPreparing},
		prepared: make(chan struct{}),
		events:   NewEventBus(callID),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.ForCall(logging.OrNop(s.log), s.ID, s.Protocol)
	s.recorder = exchange.NewRecorder(exchange.NewLog(s.limits))
	s.response.StartAt = time.Now()
	return s
}

// Logger returns the call-scoped logger.
func (s *State) Logger() *slog.Logger {
	return s.log
}

// Status returns the current connection status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// History returns every status the call has been in, in order.
func (s *State) History() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Status(nil), s.history...)
}

// IsConnectionActive reports whether the connection is being established or
// is established.
func (s *State) IsConnectionActive() bool {
	return s.Status().IsConnectionActive()
}

// SetStatus moves the call to another status. Reaching DISCONNECTED closes
// the exchange recorder after flushing it.
func (s *State) SetStatus(to Status) error {
	s.mu.Lock()
	from := s.status
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if from == to {
		s.mu.Unlock()
		return nil
	}
	s.status = to
	s.history = append(s.history, to)
	s.mu.Unlock()

	s.log.Debug("call status changed", "from", from.String(), "to", to.String())
	if to == StatusDisconnected {
		s.recorder.Close()
	}
	return nil
}

// MarkPrepared releases the preparation barrier. A non-nil err fails the
// call. Only the first call has an effect.
func (s *State) MarkPrepared(err error) {
	s.prepareOnce.Do(func() {
		s.prepareErr = err
		close(s.prepared)
	})
}

// IsPrepared reports whether the request was prepared successfully.
func (s *State) IsPrepared() bool {
	select {
	case <-s.prepared:
		return s.prepareErr == nil
	default:
		return false
	}
}

// WaitPrepared blocks until the preparation barrier is released, timeout
// elapses (DefaultPreparationTimeout when timeout <= 0) or ctx is done.
func (s *State) WaitPrepared(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultPreparationTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.prepared:
		return s.prepareErr
	case <-timer.C:
		return ErrPreparationTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateResponse mutates the response under the call's lock.
func (s *State) UpdateResponse(fn func(r *UserResponse)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.response)
}

// Snapshot returns a copy of the response as it is now.
func (s *State) Snapshot() UserResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response.clone()
}

// Response waits for the preparation barrier and returns a snapshot of the
// response, so that readers never observe a half-built request.
func (s *State) Response(ctx context.Context) (UserResponse, error) {
	if err := s.WaitPrepared(ctx, 0); err != nil {
		return s.Snapshot(), err
	}
	return s.Snapshot(), nil
}

// AddPayloadExchange records an application-level message.
func (s *State) AddPayloadExchange(t PayloadType, data string) {
	s.UpdateResponse(func(r *UserResponse) {
		r.PayloadExchanges = append(r.PayloadExchanges, PayloadExchange{
			ID:   id.Short(),
			Time: time.Now(),
			Type: t,
			Data: data,
		})
	})
}

// Events returns the call's event bus.
func (s *State) Events() *EventBus {
	return s.events
}

// Exchange returns the raw exchange log.
func (s *State) Exchange() *exchange.Log {
	return s.recorder.Log()
}

// Outgoing returns the sink for bytes written to the peer.
func (s *State) Outgoing() *exchange.Sink {
	return s.recorder.Outgoing()
}

// Incoming returns the sink for bytes read from the peer.
func (s *State) Incoming() *exchange.Sink {
	return s.recorder.Incoming()
}

// Emit publishes a lifecycle event and folds it into the exchange log.
func (s *State) Emit(text string) {
	now := time.Now()
	s.recorder.Mark(now, text)
	s.events.Publish(now, text)
	s.log.Debug("call event", "event", text)
}

// Emitf is Emit with formatting.
func (s *State) Emitf(format string, args ...any) {
	s.Emit(fmt.Sprintf(format, args...))
}

// End publishes the terminal event. It is not written to the exchange log.
func (s *State) End(text string) {
	s.events.End(time.Now(), text)
}

// SetCancel installs the action that aborts the call's transport. Adapters
// replace it once connection resources exist. If the call was already
// cancelled, fn runs immediately.
func (s *State) SetCancel(fn func(cause error)) {
	s.cancelMu.Lock()
	if !s.canceled {
		s.cancelFn = fn
		s.cancelMu.Unlock()
		return
	}
	cause := s.cancelCause
	s.cancelMu.Unlock()
	s.runCancel(fn, cause)
}

// Cancel stops the call on behalf of the user.
func (s *State) Cancel() {
	s.CancelWithCause(ErrCanceled)
}

// CancelWithCause stops the call. The first call wins; later calls are
// no-ops. The status becomes DISCONNECTED even if aborting the transport
// fails.
func (s *State) CancelWithCause(cause error) {
	if cause == nil {
		cause = ErrCanceled
	}

	s.cancelMu.Lock()
	if s.canceled {
		s.cancelMu.Unlock()
		return
	}
	s.canceled = true
	s.cancelCause = cause
	fn := s.cancelFn
	s.cancelMu.Unlock()

	if s.Status() != StatusDisconnected {
		s.Emit(cancelText(cause))
	}
	s.runCancel(fn, cause)
	_ = s.SetStatus(StatusDisconnected)
}

func cancelText(cause error) string {
	if errors.Is(cause, ErrTimeout) {
		return "Call timed out"
	}
	return "Terminated by user"
}

func (s *State) runCancel(fn func(error), cause error) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("cancel action panicked", "panic", r)
		}
	}()
	fn(cause)
}

// CancelCause returns the cancellation cause, or nil if the call was not
// cancelled.
func (s *State) CancelCause() error {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	return s.cancelCause
}

// SetSendPayload installs the function that sends an application message on
// a duplex call. Passing nil removes it.
func (s *State) SetSendPayload(fn func(string) error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.sendPayload = fn
}

// SendPayload sends an application message on a duplex call.
func (s *State) SendPayload(payload string) error {
	s.sendMu.RLock()
	fn := s.sendPayload
	s.sendMu.RUnlock()
	if fn == nil {
		return ErrNotSupported
	}
	if !s.IsConnectionActive() {
		return ErrNotConnected
	}
	return fn(payload)
}
