// Package parse provides string parsing utilities for CLI commands.
package parse

import (
	"fmt"
	"strings"
)

// KeyValue splits s at the first of delimiters, defaulting to ':'.
// The value is trimmed of surrounding whitespace.
func KeyValue(s string, delimiters ...rune) (key, value string, ok bool) {
	if len(delimiters) == 0 {
		delimiters = []rune{':'}
	}
	for i, c := range s {
		for _, d := range delimiters {
			if c == d {
				return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
			}
		}
	}
	return "", "", false
}

// Pair is one parsed name/value flag.
type Pair struct {
	Key   string
	Value string
}

// Pairs parses every entry of list with KeyValue. An entry without a
// delimiter or with an empty key is an error naming flag.
func Pairs(flag string, list []string, delimiters ...rune) ([]Pair, error) {
	out := make([]Pair, 0, len(list))
	for _, s := range list {
		k, v, ok := KeyValue(s, delimiters...)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --%s value %q", flag, s)
		}
		out = append(out, Pair{Key: k, Value: v})
	}
	return out, nil
}

// ServiceMethod splits "pkg.Service/Method" (a leading slash is allowed).
func ServiceMethod(s string) (service, method string, err error) {
	s = strings.TrimPrefix(s, "/")
	i := strings.LastIndex(s, "/")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("expected SERVICE/METHOD, got %q", s)
	}
	return s[:i], s[i+1:], nil
}
