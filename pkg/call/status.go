package call

// Status is the connection status of a call. Values are ordered.
type Status int

const (
	StatusPreparing Status = iota
	StatusConnecting
	StatusConnected
	StatusOpenForStreaming
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusPreparing:
		return "PREPARING"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusOpenForStreaming:
		return "OPEN_FOR_STREAMING"
	case StatusDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// IsConnectionActive reports whether s is CONNECTING, CONNECTED or
// OPEN_FOR_STREAMING.
func (s Status) IsConnectionActive() bool {
	return s >= StatusConnecting && s < StatusDisconnected
}

// CanTransition reports whether a call may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	switch {
	case from == to:
		return true
	case from == StatusDisconnected:
		return false
	case from == StatusOpenForStreaming && to == StatusConnected:
		return true
	default:
		return to > from
	}
}
