package apispec

import "errors"

var (
	// ErrNoProtoFiles is returned when SpecFromProtoFiles is called with an empty slice.
	ErrNoProtoFiles = errors.New("no proto files provided")

	// ErrFileNotFound is returned when a file is not part of the spec.
	ErrFileNotFound = errors.New("file descriptor not found")

	// ErrMissingDependency is returned when a dependency is neither part of the
	// spec nor a well-known file.
	ErrMissingDependency = errors.New("missing file descriptor dependency")

	// ErrInvalidDescriptor is returned when raw descriptor bytes cannot be decoded.
	ErrInvalidDescriptor = errors.New("invalid file descriptor")
)
