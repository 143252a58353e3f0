package exchange

import (
	"sync"
	"time"
)

type entry struct {
	Entry
	kind Kind
}

// Log is the raw exchange log of one call. It is safe for concurrent use.
type Log struct {
	mu          sync.Mutex
	limits      Limits
	entries     []*entry
	accumulated [3]int64
	totals      [3]int64
}

// NewLog creates an empty log.
func NewLog(limits Limits) *Log {
	return &Log{limits: limits}
}

// Append records a payload in direction d.
func (l *Log) Append(d Direction, p Payload) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data := p.Data
	if p.Kind == KindFrame {
		if limit := l.limits.accumulated(d); limit > 0 {
			remaining := limit - l.accumulated[d]
			if remaining <= 0 {
				return
			}
			if int64(len(data)) > remaining {
				data = data[:remaining]
			}
		}
		l.accumulated[d] += int64(len(data))
	}

	if tail := l.tail(); tail != nil && p.Kind == KindBytes && tail.kind == KindBytes &&
		d != Unspecified && tail.Direction == d {
		tail.Payload = appendCapped(tail.Payload, data, l.limits.perEntry(d), &l.totals[d])
		tail.LastUpdate = p.Time
		return
	}

	e := &entry{
		Entry: Entry{
			ID:         len(l.entries),
			Time:       p.Time,
			Direction:  d,
			StreamID:   p.StreamID,
			LastUpdate: p.Time,
		},
		kind: p.Kind,
	}
	e.Payload = appendCapped(nil, data, l.limits.perEntry(d), &l.totals[d])
	l.entries = append(l.entries, e)
}

// Mark appends a lifecycle marker entry.
func (l *Log) Mark(t time.Time, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, &entry{
		Entry: Entry{
			ID:         len(l.entries),
			Time:       t,
			Direction:  Unspecified,
			Detail:     text,
			LastUpdate: t,
		},
		kind: KindFrame,
	})
}

// Entries returns a copy of every entry in order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Entry
		out[i].Payload = append([]byte(nil), e.Payload...)
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// TotalBytes returns the number of bytes stored for direction d.
func (l *Log) TotalBytes(d Direction) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[d]
}

func (l *Log) tail() *entry {
	if len(l.entries) == 0 {
		return nil
	}
	return l.entries[len(l.entries)-1]
}

func appendCapped(buf, data []byte, limit int64, total *int64) []byte {
	if limit > 0 {
		room := limit - int64(len(buf))
		if room <= 0 {
			return buf
		}
		if int64(len(data)) > room {
			data = data[:room]
		}
	}
	*total += int64(len(data))
	return append(buf, data...)
}
