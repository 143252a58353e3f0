// Package request describes an outbound request independently of its
// protocol. Protocol-specific data lives in the GRPC and GraphQL extras.
package request
