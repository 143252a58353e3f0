package id

import (
	"strings"

	"github.com/google/uuid"
)

// Call returns a new call identifier.
func Call() string {
	return uuid.NewString()
}

// Operation returns a new identifier for a protocol-level operation.
func Operation() string {
	return uuid.NewString()
}

// Short returns a 12-character identifier for display purposes.
func Short() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// IsValid reports whether s parses as a UUID.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
