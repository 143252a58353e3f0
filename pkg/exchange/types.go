package exchange

import (
	"time"

	"github.com/sunny-chung/hello-http-sub000/pkg/config"
)

// Direction is the direction of an exchange entry.
type Direction int

const (
	Unspecified Direction = iota
	Outgoing
	Incoming
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	default:
		return "unspecified"
	}
}

// Kind tells whether a payload is part of a byte stream or a whole frame.
type Kind int

const (
	KindBytes Kind = iota
	KindFrame
)

// Payload is one unit handed to the recorder.
type Payload struct {
	Kind     Kind
	Time     time.Time
	StreamID *uint32
	Data     []byte
}

// Bytes returns a stream-oriented payload. b must not be modified afterwards.
func Bytes(t time.Time, b []byte) Payload {
	return Payload{Kind: KindBytes, Time: t, Data: b}
}

// Frame returns a frame payload carrying its textual rendering.
func Frame(t time.Time, streamID *uint32, text string) Payload {
	return Payload{Kind: KindFrame, Time: t, StreamID: streamID, Data: []byte(text)}
}

// StreamID is a helper for building the optional stream id of a frame.
func StreamID(id uint32) *uint32 {
	return &id
}

// Limits bound what the log stores. Zero or negative means unlimited.
type Limits struct {
	// Outbound and Inbound cap a single entry.
	Outbound int64
	Inbound  int64

	// AccumulatedOutbound and AccumulatedInbound cap the frame bytes of
	// the whole call.
	AccumulatedOutbound int64
	AccumulatedInbound  int64
}

// LimitsFrom converts configured payload limits.
func LimitsFrom(p config.PayloadLimits) Limits {
	return Limits{
		Outbound:            p.OutboundPayloadStorageLimit,
		Inbound:             p.InboundPayloadStorageLimit,
		AccumulatedOutbound: p.AccumulatedOutboundDataStorageLimitPerCall,
		AccumulatedInbound:  p.AccumulatedInboundDataStorageLimitPerCall,
	}
}

func (l Limits) perEntry(d Direction) int64 {
	switch d {
	case Outgoing:
		return l.Outbound
	case Incoming:
		return l.Inbound
	}
	return 0
}

func (l Limits) accumulated(d Direction) int64 {
	switch d {
	case Outgoing:
		return l.AccumulatedOutbound
	case Incoming:
		return l.AccumulatedInbound
	}
	return 0
}

// Entry is a snapshot of one exchange entry.
type Entry struct {
	ID         int       `json:"id"`
	Time       time.Time `json:"time"`
	Direction  Direction `json:"direction"`
	StreamID   *uint32   `json:"streamId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Payload    []byte    `json:"payload,omitempty"`
	LastUpdate time.Time `json:"lastUpdate"`
}
