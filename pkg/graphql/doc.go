// Package graphql runs GraphQL subscriptions over WebSocket using the
// graphql-transport-ws sub-protocol.
//
// A call connects, sends connection_init and waits for connection_ack. It
// then subscribes once and records every next, error and complete message
// for that operation until the server completes it, the socket closes or
// the call is cancelled. Cancelling an open subscription sends a single
// complete message before the socket is closed.
package graphql
