package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
)

// DefaultHandshakeTimeout bounds the HTTP upgrade.
const DefaultHandshakeTimeout = 45 * time.Second

// closeTimeout bounds writing the close frame.
const closeTimeout = time.Second

// ErrSessionClosed is returned by Send after Close.
var ErrSessionClosed = errors.New("websocket session closed")

// DialOptions configure Dial.
type DialOptions struct {
	// Dialer opens the TCP (and TLS) connection. It is required.
	Dialer *transport.Dialer

	Header           http.Header
	Subprotocols     []string
	HandshakeTimeout time.Duration
}

// Session is one client WebSocket connection. Send and Close may be called
// concurrently with Receive.
type Session struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

// Dial performs the WebSocket upgrade on rawURL (ws:// or wss://). The
// handshake response is returned even when the upgrade is rejected.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Session, *http.Response, error) {
	if opts.Dialer == nil {
		return nil, nil, errors.New("websocket: dial options need a dialer")
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	d := &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return opts.Dialer.DialContext(ctx, network, addr)
		},
		NetDialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			return opts.Dialer.DialTLSContext(ctx, network, addr, host, "http/1.1")
		},
		HandshakeTimeout: timeout,
		Subprotocols:     opts.Subprotocols,
	}

	conn, resp, err := d.DialContext(ctx, rawURL, opts.Header)
	if err != nil {
		return nil, resp, err
	}
	return &Session{conn: conn}, resp, nil
}

// Subprotocol returns the negotiated subprotocol.
func (s *Session) Subprotocol() string {
	return s.conn.Subprotocol()
}

// SendText writes one text message.
func (s *Session) SendText(msg string) error {
	return s.send(websocket.TextMessage, []byte(msg))
}

// SendBinary writes one binary message.
func (s *Session) SendBinary(data []byte) error {
	return s.send(websocket.BinaryMessage, data)
}

func (s *Session) send(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.conn.WriteMessage(messageType, data)
}

// Receive blocks until the next data message arrives. Control frames are
// handled internally.
func (s *Session) Receive() (Message, error) {
	messageType, data, err := s.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	return Message{Binary: messageType == websocket.BinaryMessage, Data: data}, nil
}

// Close sends a close frame with code and reason, then closes the
// connection. Later calls do nothing.
func (s *Session) Close(code int, reason string) error {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return nil
	}
	s.closed = true
	err := s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(closeTimeout))
	s.writeMu.Unlock()

	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Message is one received data message.
type Message struct {
	Binary bool
	Data   []byte
}

// Text returns the message as text. Binary messages are summarized.
func (m Message) Text() string {
	if m.Binary {
		return binarySummary(len(m.Data))
	}
	return string(m.Data)
}

// IsNormalClose reports whether err is a close initiated by either side
// without an error condition.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

// CloseNormal is the close code sent on user cancellation.
const CloseNormal = websocket.CloseNormalClosure
