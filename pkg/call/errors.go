package call

import "errors"

var (
	// ErrPreparationTimeout is returned when a call is not prepared in time.
	ErrPreparationTimeout = errors.New("request preparation timed out")

	// ErrCanceled is the cause of a user-initiated cancellation.
	ErrCanceled = errors.New("call canceled by user")

	// ErrTimeout is the cause of a cancellation triggered by a call timeout.
	ErrTimeout = errors.New("call timed out")

	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCallNotFound is returned when looking up an unknown call id.
	ErrCallNotFound = errors.New("call not found")

	// ErrCallExists is returned when creating a call with an id in use.
	ErrCallExists = errors.New("call with this ID already exists")

	// ErrNotSupported is returned by SendPayload on non-duplex calls.
	ErrNotSupported = errors.New("sending payloads is not supported by this call")

	// ErrNotConnected is returned by SendPayload when the connection is not active.
	ErrNotConnected = errors.New("call is not connected")
)

// IsCancellation reports whether err was caused by Cancel or a call timeout.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, ErrTimeout)
}
