package exchange

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

const timeLayout = "15:04:05.000"

// Render formats entries as a human-readable timeline.
//
//	12:00:00.001 * DNS resolved example.com to 93.184.216.34
//	12:00:00.010 > GET / HTTP/1.1
//	12:00:00.010 > Host: example.com
//	12:00:00.052 < [stream 1] HEADERS ...
func Render(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		ts := e.Time.Format(timeLayout)
		if e.Direction == Unspecified {
			fmt.Fprintf(&b, "%s * %s\n", ts, e.Detail)
			continue
		}

		prefix := ">"
		if e.Direction == Incoming {
			prefix = "<"
		}
		if e.StreamID != nil {
			prefix += fmt.Sprintf(" [stream %d]", *e.StreamID)
		}

		if !utf8.Valid(e.Payload) {
			fmt.Fprintf(&b, "%s %s (%d bytes of binary data)\n", ts, prefix, len(e.Payload))
			continue
		}
		lines := bytes.Split(bytes.TrimRight(e.Payload, "\r\n"), []byte("\n"))
		for _, line := range lines {
			fmt.Fprintf(&b, "%s %s %s\n", ts, prefix, bytes.TrimRight(line, "\r"))
		}
	}
	return b.String()
}
