package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []Status{
	StatusPreparing,
	StatusConnecting,
	StatusConnected,
	StatusOpenForStreaming,
	StatusDisconnected,
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "PREPARING", StatusPreparing.String())
	assert.Equal(t, "OPEN_FOR_STREAMING", StatusOpenForStreaming.String())
	assert.Equal(t, "UNKNOWN", Status(42).String())
}

func TestStatus_IsConnectionActive(t *testing.T) {
	want := map[Status]bool{
		StatusPreparing:        false,
		StatusConnecting:       true,
		StatusConnected:        true,
		StatusOpenForStreaming: true,
		StatusDisconnected:     false,
	}
	for _, s := range allStatuses {
		assert.Equal(t, want[s], s.IsConnectionActive(), s.String())
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPreparing, StatusConnecting, true},
		{StatusPreparing, StatusDisconnected, true},
		{StatusConnecting, StatusDisconnected, true},
		{StatusConnecting, StatusConnected, true},
		{StatusConnected, StatusOpenForStreaming, true},
		{StatusOpenForStreaming, StatusConnected, true},
		{StatusConnected, StatusConnecting, false},
		{StatusConnecting, StatusPreparing, false},
		{StatusOpenForStreaming, StatusConnecting, false},
		{StatusDisconnected, StatusConnected, false},
		{StatusDisconnected, StatusPreparing, false},
		{StatusDisconnected, StatusDisconnected, true},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanTransition_NothingLeavesDisconnected(t *testing.T) {
	for _, to := range allStatuses {
		if to == StatusDisconnected {
			continue
		}
		assert.False(t, CanTransition(StatusDisconnected, to), to.String())
	}
}

// assertLifecycle checks that a status history is non-decreasing except for
// the CONNECTED/OPEN_FOR_STREAMING cycle and ends at most once in
// DISCONNECTED.
func assertLifecycle(t *testing.T, history []Status) {
	t.Helper()
	for i := 1; i < len(history); i++ {
		assert.True(t, CanTransition(history[i-1], history[i]),
			"illegal transition %s -> %s in %v", history[i-1], history[i], history)
	}
	for i, s := range history {
		if s == StatusDisconnected {
			assert.Equal(t, len(history)-1, i, "DISCONNECTED must be last: %v", history)
		}
	}
}
