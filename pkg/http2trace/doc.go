// Package http2trace turns the captured bytes of an HTTP/2 connection into
// a frame-by-frame timeline.
//
// A Sniffer holds one decoder per direction. Captured chunks are handed over
// a bounded channel, so socket goroutines never decode inline. Each decoder
// runs an http2.Framer with an HPACK decoder attached, which merges HEADERS
// and CONTINUATION frames into one complete header block before the frame is
// rendered. Every frame is emitted as an exchange.Frame payload tagged with
// its stream id and the time of the chunk that completed it.
//
// The Sniffer also tracks open streams. When no stream is active for
// IdleTimeout the idle callback fires; the HTTP adapter uses it to close a
// connection that would otherwise hang.
package http2trace
