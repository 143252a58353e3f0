package protocol

// Error is a simple error type for protocol errors.
// It allows defining sentinel errors as constants.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors shared by the protocol adapters.
const (
	// ErrUnsupportedProtocol is returned for a protocol no adapter serves.
	ErrUnsupportedProtocol = Error("unsupported protocol")

	// ErrAdapterExists is returned when registering a second adapter for
	// the same protocol.
	ErrAdapterExists = Error("adapter for this protocol already exists")

	// ErrMissingExtra is returned when a request lacks the protocol-specific
	// part its protocol requires.
	ErrMissingExtra = Error("request is missing protocol-specific data")

	// ErrInvalidURL is returned when the request URL cannot be used.
	ErrInvalidURL = Error("invalid request URL")

	// ErrServiceNotFound is returned when an RPC service is not in the API spec.
	ErrServiceNotFound = Error("service not found")

	// ErrMethodNotFound is returned when an RPC method is not in the API spec.
	ErrMethodNotFound = Error("method not found")

	// ErrInvalidMessage is returned when a message cannot be processed
	// due to invalid format or content.
	ErrInvalidMessage = Error("invalid message")

	// ErrProtocolViolation is returned when the peer breaks the sub-protocol.
	ErrProtocolViolation = Error("protocol violation")

	// ErrIdleConnection is returned when a connection is closed for having no
	// active stream.
	ErrIdleConnection = Error("connection closed for inactivity")
)
