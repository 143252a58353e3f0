package grpc

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
)

// target is the address of a gRPC server.
type target struct {
	// base is scheme://host:port without a path.
	base   string
	addr   string
	host   string
	secure bool
}

// parseTarget accepts grpc://, grpcs://, http:// and https:// URLs. A bare
// host:port is treated as grpc://host:port.
func parseTarget(raw string) (target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return target{}, fmt.Errorf("%w: empty URL", protocol.ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "grpc://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return target{}, fmt.Errorf("%w: %v", protocol.ErrInvalidURL, err)
	}
	if u.Hostname() == "" {
		return target{}, fmt.Errorf("%w: missing host in %q", protocol.ErrInvalidURL, raw)
	}

	var secure bool
	port := u.Port()
	switch u.Scheme {
	case "grpc", "http":
		if port == "" {
			port = "80"
		}
	case "grpcs", "https":
		secure = true
		if port == "" {
			port = "443"
		}
	default:
		return target{}, fmt.Errorf("%w: unsupported scheme %q", protocol.ErrInvalidURL, u.Scheme)
	}

	addr := net.JoinHostPort(u.Hostname(), port)
	return target{
		base:   u.Scheme + "://" + addr,
		addr:   addr,
		host:   u.Hostname(),
		secure: secure,
	}, nil
}

// singleDial returns a context dialer that opens at most one connection
// through d. TLS, when needed, is done by d so that the captured bytes are
// plaintext HTTP/2.
func singleDial(d *transport.Dialer, t target) func(context.Context, string) (net.Conn, error) {
	var used atomic.Bool
	return func(ctx context.Context, addr string) (net.Conn, error) {
		if used.Swap(true) {
			return nil, ErrConnectionUsed
		}
		var (
			conn *transport.CaptureConn
			err  error
		)
		if t.secure {
			conn, err = d.DialTLSContext(ctx, "tcp", addr, t.host, "h2")
		} else {
			conn, err = d.DialContext(ctx, "tcp", addr)
		}
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// newClientConn creates a client that connects only through dial.
func newClientConn(t target, dial func(context.Context, string) (net.Conn, error), opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dial),
		grpc.WithAuthority(t.addr),
	}
	return grpc.NewClient("passthrough:///"+t.addr, append(base, opts...)...)
}
