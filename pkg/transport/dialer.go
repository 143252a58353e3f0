package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	hhtls "github.com/sunny-chung/hello-http-sub000/pkg/tls"
)

// DefaultConnectTimeout bounds DNS resolution plus the TCP connect.
const DefaultConnectTimeout = 30 * time.Second

// Dialer opens the connection of one call, reporting each milestone as a
// lifecycle event of the call.
type Dialer struct {
	State *call.State

	// TLS is the trust material; nil dials cleartext.
	TLS *hhtls.Material

	// Out and In receive captured bytes. They default to the call's
	// recorder sinks.
	Out Tap
	In  Tap

	ConnectTimeout time.Duration
	Resolver       *net.Resolver
}

// DialContext opens a cleartext connection to addr ("host:port").
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (*CaptureConn, error) {
	conn, err := d.dialTCP(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return d.wrap(conn), nil
}

// DialTLSContext opens a TLS connection to addr, offering nextProtos via ALPN.
// serverName defaults to the host part of addr.
func (d *Dialer) DialTLSContext(ctx context.Context, network, addr, serverName string, nextProtos ...string) (*CaptureConn, error) {
	if d.TLS == nil {
		return nil, errors.New("dialer has no TLS material")
	}
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		serverName = host
	}

	raw, err := d.dialTCP(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	d.State.Emit("Performing TLS handshake")
	tc := tls.Client(raw, d.TLS.ClientConfig(serverName, nextProtos...))
	if err := tc.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("TLS handshake failed: %w", err)
	}

	st := tc.ConnectionState()
	alpn := st.NegotiatedProtocol
	if alpn == "" {
		alpn = "none"
	}
	d.State.Emitf("TLS handshake completed: %s, %s, ALPN %s",
		tls.VersionName(st.Version), tls.CipherSuiteName(st.CipherSuite), alpn)

	return d.wrap(tc), nil
}

func (d *Dialer) wrap(c net.Conn) *CaptureConn {
	out, in := d.Out, d.In
	if out == nil {
		out = d.State.Outgoing()
	}
	if in == nil {
		in = d.State.Incoming()
	}
	return NewCaptureConn(c, out, in)
}

func (d *Dialer) dialTCP(ctx context.Context, network, addr string) (net.Conn, error) {
	timeout := d.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolver := d.Resolver
		if resolver == nil {
			resolver = net.DefaultResolver
		}
		d.State.Emitf("Resolving %s", host)
		addrs, err := resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DNS lookup of %s failed: %w", host, err)
		}
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
		d.State.Emitf("DNS resolved %s to %s", host, joinIPs(ips))
	}

	var nd net.Dialer
	var lastErr error
	for _, ip := range ips {
		target := net.JoinHostPort(ip.String(), port)
		d.State.Emitf("Connecting to %s", target)
		conn, err := nd.DialContext(ctx, network, target)
		if err != nil {
			lastErr = err
			continue
		}
		d.State.Emitf("Connected to %s", target)
		return conn, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses for %s", host)
	}
	return nil, lastErr
}

func joinIPs(ips []net.IP) string {
	parts := make([]string, len(ips))
	for i, ip := range ips {
		parts[i] = ip.String()
	}
	return strings.Join(parts, ", ")
}
