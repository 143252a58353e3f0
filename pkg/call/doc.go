// Package call holds the per-call state shared by every protocol adapter.
//
// A State moves through the connection lifecycle
//
//	PREPARING -> CONNECTING -> [CONNECTED <-> OPEN_FOR_STREAMING] -> DISCONNECTED
//
// and owns the call's UserResponse, its EventBus and its raw exchange
// recorder. Request/response protocols (HTTP, gRPC) go from CONNECTING to
// DISCONNECTED directly; duplex protocols (WebSocket, GraphQL) toggle between
// CONNECTED and OPEN_FOR_STREAMING. DISCONNECTED is terminal: reaching it
// closes the recorder so no further bytes are logged.
//
// The Registry maps call ids to states. A completed call is removed only after
// every subscriber of its EventBus has received the terminal event.
package call
