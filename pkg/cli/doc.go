// Package cli implements the hellohttp command line.
//
// Each protocol has a command that builds a request, sends it through an
// engine.Engine and prints what happened:
//   - http: HTTP/1.1 and HTTP/2 requests
//   - grpc call, grpc describe: unary gRPC calls and server reflection
//   - ws: interactive WebSocket sessions
//   - graphql: GraphQL subscriptions over graphql-transport-ws
//   - version: build information
//
// Lifecycle events go to stderr as they happen; the response goes to stdout
// once the call has completed, as text or, with --json, as the JSON form of
// call.UserResponse. --timeline appends the raw transport timeline.
// Interrupting the process cancels the call in flight.
package cli
