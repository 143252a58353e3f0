package http2trace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
)

// maxDynamicTableSize accepts any table size update a peer may send; the
// sniffer only observes and must not reject what the real endpoints accept.
const maxDynamicTableSize = 1 << 24

// maxFrameSize is the largest frame size HTTP/2 allows.
const maxFrameSize = 1<<24 - 1

type chunk struct {
	t time.Time
	b []byte
}

type decoder struct {
	dir     exchange.Direction
	sink    Sink
	tracker *streamTracker
	log     *slog.Logger

	chunks chan chunk
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newDecoder(dir exchange.Direction, sink Sink, tracker *streamTracker, log *slog.Logger) *decoder {
	return &decoder{
		dir:     dir,
		sink:    sink,
		tracker: tracker,
		log:     log,
		chunks:  make(chan chunk, chunkBuffer),
		done:    make(chan struct{}),
	}
}

func (d *decoder) submit(c chunk) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	d.chunks <- c
	return true
}

func (d *decoder) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.chunks)
	}
}

func (d *decoder) emit(t time.Time, streamID *uint32, text string) {
	if d.sink != nil {
		d.sink.Emit(exchange.Frame(t, streamID, text))
	}
}

func (d *decoder) run() {
	defer close(d.done)
	r := &chunkReader{chunks: d.chunks}
	// Whatever is left after a fatal decoding error is still consumed so
	// that producers never block.
	defer io.Copy(io.Discard, r)

	if d.dir == exchange.Outgoing {
		preface := make([]byte, len(http2.ClientPreface))
		if _, err := io.ReadFull(r, preface); err != nil {
			return
		}
		if string(preface) != http2.ClientPreface {
			d.emit(r.last, nil, "Invalid HTTP/2 connection preface")
			return
		}
		d.emit(r.last, nil, "Connection Preface: PRI * HTTP/2.0")
	}

	hdec := hpack.NewDecoder(4096, nil)
	hdec.SetAllowedMaxDynamicTableSize(maxDynamicTableSize)

	fr := http2.NewFramer(io.Discard, r)
	fr.ReadMetaHeaders = hdec
	fr.MaxHeaderListSize = maxDynamicTableSize
	fr.SetMaxReadFrameSize(maxFrameSize)

	for {
		f, err := fr.ReadFrame()
		if err != nil {
			var se http2.StreamError
			if errors.As(err, &se) {
				d.emit(r.last, exchange.StreamID(se.StreamID), fmt.Sprintf("Malformed frame: %v", se))
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				d.log.Warn("http2 frame decoding stopped", "direction", d.dir.String(), "error", err)
				d.emit(r.last, nil, fmt.Sprintf("Unable to decode frame: %v", err))
			}
			return
		}

		var streamID *uint32
		if id := f.Header().StreamID; id != 0 {
			streamID = exchange.StreamID(id)
		}
		d.emit(r.last, streamID, Render(f))
		d.tracker.observe(d.dir, f)
	}
}

// chunkReader reads the concatenation of queued chunks. last is the time of
// the chunk the most recent byte came from.
type chunkReader struct {
	chunks <-chan chunk
	cur    []byte
	last   time.Time
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		c, ok := <-r.chunks
		if !ok {
			return 0, io.EOF
		}
		r.cur = c.b
		r.last = c.t
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}
