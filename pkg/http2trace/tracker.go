package http2trace

import (
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
)

type streamEnds struct {
	local  bool
	remote bool
}

// streamTracker counts open streams and runs the idle watchdog.
type streamTracker struct {
	idleTimeout time.Duration
	onIdle      func()

	mu      sync.Mutex
	streams map[uint32]*streamEnds
	timer   *time.Timer
	gen     uint64
	fired   bool
	stopped bool
}

func newStreamTracker() *streamTracker {
	return &streamTracker{
		idleTimeout: DefaultIdleTimeout,
		streams:     make(map[uint32]*streamEnds),
	}
}

func (t *streamTracker) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armLocked()
}

func (t *streamTracker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *streamTracker) active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

func (t *streamTracker) observe(dir exchange.Direction, f http2.Frame) {
	id := f.Header().StreamID
	if id == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch f := f.(type) {
	case *http2.MetaHeadersFrame:
		st, ok := t.streams[id]
		if !ok {
			st = &streamEnds{}
			t.streams[id] = st
			t.disarmLocked()
		}
		if f.StreamEnded() {
			t.endLocked(id, st, dir)
		}
	case *http2.DataFrame:
		if st, ok := t.streams[id]; ok && f.StreamEnded() {
			t.endLocked(id, st, dir)
		}
	case *http2.RSTStreamFrame:
		if _, ok := t.streams[id]; ok {
			delete(t.streams, id)
			t.idleCheckLocked()
		}
	}
}

func (t *streamTracker) endLocked(id uint32, st *streamEnds, dir exchange.Direction) {
	if dir == exchange.Outgoing {
		st.local = true
	} else {
		st.remote = true
	}
	if st.local && st.remote {
		delete(t.streams, id)
		t.idleCheckLocked()
	}
}

func (t *streamTracker) idleCheckLocked() {
	if len(t.streams) == 0 {
		t.armLocked()
	}
}

func (t *streamTracker) armLocked() {
	if t.onIdle == nil || t.stopped || t.fired {
		return
	}
	t.disarmLocked()
	gen := t.gen
	t.timer = time.AfterFunc(t.idleTimeout, func() { t.fire(gen) })
}

func (t *streamTracker) disarmLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *streamTracker) fire(gen uint64) {
	t.mu.Lock()
	if t.stopped || t.fired || gen != t.gen || len(t.streams) > 0 {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.timer = nil
	fn := t.onIdle
	t.mu.Unlock()
	fn()
}
