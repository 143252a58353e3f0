package transport

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
)

// Tap receives captured payloads. It returns false when it no longer accepts
// them.
type Tap interface {
	Emit(p exchange.Payload) bool
}

// TapFunc adapts a function to Tap.
type TapFunc func(p exchange.Payload) bool

// Emit calls f(p).
func (f TapFunc) Emit(p exchange.Payload) bool { return f(p) }

// CaptureConn is a net.Conn that forwards a copy of every chunk read or
// written to a Tap. Each direction holds its own lock across the I/O call and
// the capture so that captured chunks keep the order of the socket.
type CaptureConn struct {
	net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex

	tapMu sync.RWMutex
	out   Tap
	in    Tap

	tlsState *tls.ConnectionState
}

// NewCaptureConn wraps c. out receives written bytes and in receives read
// bytes; either may be nil.
func NewCaptureConn(c net.Conn, out, in Tap) *CaptureConn {
	cc := &CaptureConn{Conn: c, out: out, in: in}
	if tc, ok := c.(*tls.Conn); ok {
		st := tc.ConnectionState()
		cc.tlsState = &st
	}
	return cc
}

// SetTaps replaces both taps. Use it before application data flows, e.g.
// once ALPN picked a protocol that needs a different recorder.
func (c *CaptureConn) SetTaps(out, in Tap) {
	c.tapMu.Lock()
	defer c.tapMu.Unlock()
	c.out, c.in = out, in
}

func (c *CaptureConn) taps() (Tap, Tap) {
	c.tapMu.RLock()
	defer c.tapMu.RUnlock()
	return c.out, c.in
}

// Read reads from the connection and captures what was read.
func (c *CaptureConn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	n, err := c.Conn.Read(b)
	if n > 0 {
		if _, in := c.taps(); in != nil {
			in.Emit(exchange.Bytes(time.Now(), append([]byte(nil), b[:n]...)))
		}
	}
	return n, err
}

// Write writes to the connection and captures what was written.
func (c *CaptureConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	n, err := c.Conn.Write(b)
	if n > 0 {
		if out, _ := c.taps(); out != nil {
			out.Emit(exchange.Bytes(time.Now(), append([]byte(nil), b[:n]...)))
		}
	}
	return n, err
}

// TLSState returns the TLS connection state, or nil on a cleartext connection.
func (c *CaptureConn) TLSState() *tls.ConnectionState {
	return c.tlsState
}

// NegotiatedProtocol returns the ALPN protocol, or "" when none was agreed.
func (c *CaptureConn) NegotiatedProtocol() string {
	if c.tlsState == nil {
		return ""
	}
	return c.tlsState.NegotiatedProtocol
}

// ConnectionState implements the interface net/http uses to read the TLS
// state of connections returned by DialTLSContext.
func (c *CaptureConn) ConnectionState() tls.ConnectionState {
	if c.tlsState == nil {
		return tls.ConnectionState{}
	}
	return *c.tlsState
}
