// Package grpc is the gRPC protocol adapter.
//
// Calls are unary and use dynamic messages: the method descriptor comes from
// an apispec.APISpec fetched through server reflection or compiled from
// .proto files, and the request body is the request message in protobuf JSON.
//
// The client runs over a single connection opened by transport.Dialer. Its
// HTTP/2 traffic is decoded by http2trace, so the exchange log shows gRPC
// frames the same way HTTP/2 calls do.
package grpc
