// Package websocket is the WebSocket protocol adapter.
//
// A Session is one client connection dialed through transport.Dialer, so the
// upgrade handshake and every frame are captured as raw bytes. Messages are
// also recorded as payload exchanges on the call, which keeps message
// boundaries the raw log does not have.
//
// The session is also the transport of the GraphQL adapter.
package websocket
