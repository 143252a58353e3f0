// Package httpclient is the HTTP/1.1 and HTTP/2 protocol adapter.
//
// Every call dials its own connection through transport.Dialer and never
// reuses it. HTTP/1.1 traffic is captured as raw bytes; HTTP/2 traffic is
// captured through http2trace so the timeline shows decoded frames.
package httpclient
