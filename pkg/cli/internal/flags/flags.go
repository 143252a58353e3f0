// Package flags provides reusable flag types for CLI commands.
package flags

import "strings"

// StringSlice is a repeatable string flag that keeps every value verbatim.
// Unlike pflag's StringSlice it does not split on commas, so header values
// such as "Accept: a, b" survive intact.
type StringSlice []string

// String returns the string representation of the flag value.
func (s *StringSlice) String() string {
	return strings.Join(*s, ",")
}

// Set appends a value to the slice.
func (s *StringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// Type specifies the type label for Cobra flags.
func (s *StringSlice) Type() string {
	return "stringArray"
}
