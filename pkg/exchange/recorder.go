package exchange

import (
	"sync"
	"time"
)

// DefaultBufferSize is the capacity of the recorder's intake channel.
const DefaultBufferSize = 1024

type record struct {
	dir     Direction
	payload Payload
	mark    string
	isMark  bool
}

// Recorder is the single writer of a Log. Producers hand records over a
// bounded channel; a dedicated goroutine applies them in arrival order.
type Recorder struct {
	log    *Log
	intake chan record
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewRecorder starts a recorder writing into log.
func NewRecorder(log *Log) *Recorder {
	r := &Recorder{
		log:    log,
		intake: make(chan record, DefaultBufferSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.intake {
		if rec.isMark {
			r.log.Mark(rec.payload.Time, rec.mark)
			continue
		}
		r.log.Append(rec.dir, rec.payload)
	}
}

func (r *Recorder) submit(rec record) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	r.intake <- rec
	return true
}

// Log returns the log the recorder writes to.
func (r *Recorder) Log() *Log {
	return r.log
}

// Outgoing returns the sink for bytes written to the peer.
func (r *Recorder) Outgoing() *Sink {
	return &Sink{r: r, dir: Outgoing}
}

// Incoming returns the sink for bytes read from the peer.
func (r *Recorder) Incoming() *Sink {
	return &Sink{r: r, dir: Incoming}
}

// Mark records a lifecycle marker. It returns false after Close.
func (r *Recorder) Mark(t time.Time, text string) bool {
	return r.submit(record{payload: Payload{Time: t}, mark: text, isMark: true})
}

// Close stops accepting records and waits until every accepted record has
// been applied to the log. It is safe to call more than once.
func (r *Recorder) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.intake)
		r.mu.Unlock()
	})
	<-r.done
}

// Closed reports whether Close has been called.
func (r *Recorder) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Sink feeds one direction of a recorder.
type Sink struct {
	r   *Recorder
	dir Direction
}

// Emit hands a payload to the recorder. It returns false once the recorder
// is closed, in which case the payload is dropped.
func (s *Sink) Emit(p Payload) bool {
	return s.r.submit(record{dir: s.dir, payload: p})
}

// Direction returns the direction of the sink.
func (s *Sink) Direction() Direction {
	return s.dir
}
