package exchange

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_PreservesPerDirectionOrder(t *testing.T) {
	rec := NewRecorder(NewLog(Limits{}))
	out, in := rec.Outgoing(), rec.Incoming()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			out.Emit(Frame(time.Now(), nil, fmt.Sprintf("out-%d", i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			in.Emit(Frame(time.Now(), nil, fmt.Sprintf("in-%d", i)))
		}
	}()
	wg.Wait()
	rec.Close()

	var nextOut, nextIn int
	for _, e := range rec.Log().Entries() {
		switch e.Direction {
		case Outgoing:
			assert.Equal(t, fmt.Sprintf("out-%d", nextOut), string(e.Payload))
			nextOut++
		case Incoming:
			assert.Equal(t, fmt.Sprintf("in-%d", nextIn), string(e.Payload))
			nextIn++
		}
	}
	assert.Equal(t, 200, nextOut)
	assert.Equal(t, 200, nextIn)
}

func TestRecorder_InterleavesMarkers(t *testing.T) {
	rec := NewRecorder(NewLog(Limits{}))
	now := time.Now()

	require.True(t, rec.Mark(now, "Connecting"))
	require.True(t, rec.Outgoing().Emit(Bytes(now, []byte("hello"))))
	require.True(t, rec.Mark(now, "Request sent"))
	require.True(t, rec.Incoming().Emit(Bytes(now, []byte("world"))))
	rec.Close()

	entries := rec.Log().Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, "Connecting", entries[0].Detail)
	assert.Equal(t, "hello", string(entries[1].Payload))
	assert.Equal(t, "Request sent", entries[2].Detail)
	assert.Equal(t, "world", string(entries[3].Payload))
}

func TestRecorder_DropsAfterClose(t *testing.T) {
	rec := NewRecorder(NewLog(Limits{}))
	sink := rec.Outgoing()
	require.True(t, sink.Emit(Bytes(time.Now(), []byte("a"))))

	rec.Close()
	rec.Close()
	assert.True(t, rec.Closed())

	assert.False(t, sink.Emit(Bytes(time.Now(), []byte("b"))))
	assert.False(t, rec.Mark(time.Now(), "late"))

	entries := rec.Log().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "a", string(entries[0].Payload))
}

func TestRecorder_CloseWhileEmitting(t *testing.T) {
	rec := NewRecorder(NewLog(Limits{}))
	sink := rec.Incoming()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				sink.Emit(Bytes(time.Now(), []byte("x")))
			}
		}()
	}
	time.Sleep(time.Millisecond)
	rec.Close()
	wg.Wait()

	accepted := rec.Log().TotalBytes(Incoming)
	assert.LessOrEqual(t, accepted, int64(4000))
	assert.False(t, sink.Emit(Bytes(time.Now(), []byte("x"))))
	assert.Equal(t, accepted, rec.Log().TotalBytes(Incoming))
}

func TestRender(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	out := Render([]Entry{
		{Time: ts, Direction: Unspecified, Detail: "Connected"},
		{Time: ts, Direction: Outgoing, Payload: []byte("GET / HTTP/1.1\r\nHost: a\r\n\r\n")},
		{Time: ts, Direction: Incoming, StreamID: StreamID(3), Payload: []byte("DATA")},
		{Time: ts, Direction: Incoming, Payload: []byte{0xff, 0xfe}},
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "03:04:05.006 * Connected", lines[0])
	assert.Equal(t, "03:04:05.006 > GET / HTTP/1.1", lines[1])
	assert.Equal(t, "03:04:05.006 > Host: a", lines[2])
	assert.Equal(t, "03:04:05.006 < [stream 3] DATA", lines[3])
	assert.Equal(t, "03:04:05.006 < (2 bytes of binary data)", lines[4])
}
