// Package exchange records the raw transport timeline of a call.
//
// A Log is an ordered, append-only list of entries. Stream-oriented bytes
// (HTTP/1, WebSocket) arriving back to back in the same direction are
// coalesced into one entry; frames (HTTP/2) always get an entry of their own.
// Lifecycle events are folded in as Unspecified-direction marker entries.
//
// A Recorder owns a Log and serializes every producer through one channel,
// so socket goroutines never touch the Log directly:
//
//	rec := exchange.NewRecorder(exchange.NewLog(limits))
//	out, in := rec.Outgoing(), rec.Incoming()
//	out.Emit(exchange.Bytes(time.Now(), b))
//	rec.Mark(time.Now(), "Connected")
//	rec.Close() // flush
//	entries := rec.Log().Entries()
package exchange
