package grpc

import "errors"

var (
	// ErrNoSpec is returned when a call has no API spec to resolve its method.
	ErrNoSpec = errors.New("gRPC API spec is not available")

	// ErrStreamingNotSupported is returned for methods that stream in either
	// direction.
	ErrStreamingNotSupported = errors.New("only unary gRPC methods are supported")

	// ErrReflection is returned when the reflection service answers with an
	// error or not at all.
	ErrReflection = errors.New("gRPC reflection failed")

	// ErrConnectionUsed is returned when the client tries to open a second
	// connection for one call.
	ErrConnectionUsed = errors.New("connection already used")
)
