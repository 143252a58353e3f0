package http2trace

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
	"github.com/sunny-chung/hello-http-sub000/pkg/logging"
)

// DefaultIdleTimeout is how long a connection may have no active stream
// before the idle callback fires.
const DefaultIdleTimeout = 3 * time.Second

// chunkBuffer is the capacity of each decoder's intake channel.
const chunkBuffer = 256

// Sink receives rendered frames.
type Sink interface {
	Emit(p exchange.Payload) bool
}

// Option configures a Sniffer.
type Option func(*Sniffer)

// WithIdleCallback enables the idle watchdog. fn runs once, on its own
// goroutine, after timeout with no active stream. A timeout <= 0 uses
// DefaultIdleTimeout.
func WithIdleCallback(timeout time.Duration, fn func()) Option {
	return func(s *Sniffer) {
		if timeout <= 0 {
			timeout = DefaultIdleTimeout
		}
		s.tracker.idleTimeout = timeout
		s.tracker.onIdle = fn
	}
}

// WithLogger sets the logger for decoding problems.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sniffer) { s.log = log }
}

// Sniffer decodes both directions of one HTTP/2 connection.
type Sniffer struct {
	out     *decoder
	in      *decoder
	tracker *streamTracker
	log     *slog.Logger
	once    sync.Once
}

// New creates a Sniffer writing outgoing frames to out and incoming frames
// to in. The outgoing direction must start with the client connection
// preface.
func New(out, in Sink, opts ...Option) *Sniffer {
	s := &Sniffer{tracker: newStreamTracker()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrNop(s.log)

	s.out = newDecoder(exchange.Outgoing, out, s.tracker, s.log)
	s.in = newDecoder(exchange.Incoming, in, s.tracker, s.log)
	s.tracker.start()
	go s.out.run()
	go s.in.run()
	return s
}

// Outgoing returns the input for bytes written by the client.
func (s *Sniffer) Outgoing() *Input {
	return &Input{d: s.out}
}

// Incoming returns the input for bytes read from the server.
func (s *Sniffer) Incoming() *Input {
	return &Input{d: s.in}
}

// ActiveStreams returns the number of open streams.
func (s *Sniffer) ActiveStreams() int {
	return s.tracker.active()
}

// Close stops accepting bytes, waits until both decoders have emitted every
// complete frame, and stops the idle watchdog.
func (s *Sniffer) Close() {
	s.once.Do(func() {
		s.tracker.stop()
		s.out.close()
		s.in.close()
	})
	<-s.out.done
	<-s.in.done
}

// Input feeds captured bytes of one direction into a Sniffer.
type Input struct {
	d *decoder
}

// Emit queues the bytes of p for decoding. It returns false after Close.
func (i *Input) Emit(p exchange.Payload) bool {
	return i.d.submit(chunk{t: p.Time, b: p.Data})
}
