package http2trace

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/http2"
)

// Render formats a decoded frame as timeline text. The first line names the
// frame type and its flags; header fields, settings and payloads follow on
// their own lines.
func Render(f http2.Frame) string {
	var b strings.Builder
	fh := f.Header()
	b.WriteString("Frame: ")
	b.WriteString(fh.Type.String())
	if flags := flagNames(f); len(flags) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(flags, ", "))
		b.WriteString("]")
	}

	switch f := f.(type) {
	case *http2.MetaHeadersFrame:
		if f.HasPriority() {
			writePriority(&b, f.Priority)
		}
		for _, hf := range f.Fields {
			fmt.Fprintf(&b, "\n%s: %s", hf.Name, hf.Value)
		}
		if f.Truncated {
			b.WriteString("\n(header list truncated)")
		}
	case *http2.DataFrame:
		data := f.Data()
		fmt.Fprintf(&b, "\nLength: %d", len(data))
		if len(data) > 0 {
			b.WriteString("\n")
			b.WriteString(printable(data))
		}
	case *http2.SettingsFrame:
		_ = f.ForeachSetting(func(s http2.Setting) error {
			fmt.Fprintf(&b, "\n%s = %d", s.ID, s.Val)
			return nil
		})
	case *http2.WindowUpdateFrame:
		fmt.Fprintf(&b, "\nIncrement: %d", f.Increment)
	case *http2.PingFrame:
		fmt.Fprintf(&b, "\nData: %s", hex.EncodeToString(f.Data[:]))
	case *http2.RSTStreamFrame:
		fmt.Fprintf(&b, "\nError: %s", f.ErrCode)
	case *http2.GoAwayFrame:
		fmt.Fprintf(&b, "\nLast Stream: %d\nError: %s", f.LastStreamID, f.ErrCode)
		if debug := f.DebugData(); len(debug) > 0 {
			fmt.Fprintf(&b, "\nDebug: %s", printable(debug))
		}
	case *http2.PriorityFrame:
		writePriority(&b, f.PriorityParam)
	case *http2.PushPromiseFrame:
		fmt.Fprintf(&b, "\nPromised Stream: %d", f.PromiseID)
	case *http2.UnknownFrame:
		fmt.Fprintf(&b, "\nLength: %d", len(f.Payload()))
	}
	return b.String()
}

func writePriority(b *strings.Builder, p http2.PriorityParam) {
	fmt.Fprintf(b, "\nPriority: depends on %d, weight %d", p.StreamDep, int(p.Weight)+1)
	if p.Exclusive {
		b.WriteString(", exclusive")
	}
}

func flagNames(f http2.Frame) []string {
	fh := f.Header()
	var names []string
	add := func(flag http2.Flags, name string) {
		if fh.Flags.Has(flag) {
			names = append(names, name)
		}
	}
	switch fh.Type {
	case http2.FrameData:
		add(http2.FlagDataEndStream, "END_STREAM")
		add(http2.FlagDataPadded, "PADDED")
	case http2.FrameHeaders:
		add(http2.FlagHeadersEndStream, "END_STREAM")
		add(http2.FlagHeadersEndHeaders, "END_HEADERS")
		add(http2.FlagHeadersPadded, "PADDED")
		add(http2.FlagHeadersPriority, "PRIORITY")
	case http2.FrameSettings:
		add(http2.FlagSettingsAck, "ACK")
	case http2.FramePing:
		add(http2.FlagPingAck, "ACK")
	case http2.FramePushPromise:
		add(http2.FlagPushPromiseEndHeaders, "END_HEADERS")
		add(http2.FlagPushPromisePadded, "PADDED")
	}
	return names
}

func printable(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return fmt.Sprintf("(%d bytes of binary data)", len(data))
}
