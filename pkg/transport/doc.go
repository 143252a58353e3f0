// Package transport holds the plumbing every protocol adapter shares.
//
// Runner drives a call through its lifecycle: it prepares the request on its
// own goroutine, waits for the preparation barrier, runs the protocol logic
// and always finishes with the same cleanup path (timing, error
// classification, post-flight action, flush, DISCONNECTED, terminal event,
// registry removal).
//
// Dialer opens the call's connection and reports DNS, TCP and TLS milestones
// as lifecycle events. The connection it returns is a CaptureConn, which
// forwards a timestamped copy of every read and write to a Tap.
package transport
