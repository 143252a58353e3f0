package protocol

import (
	"fmt"
	"strings"
)

// Protocol identifies the wire protocol of a call.
type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolGRPC      Protocol = "grpc"
	ProtocolWebSocket Protocol = "websocket"
	ProtocolGraphQL   Protocol = "graphql"
)

// All lists every supported protocol.
var All = []Protocol{ProtocolHTTP, ProtocolGRPC, ProtocolWebSocket, ProtocolGraphQL}

// String returns the string representation of the protocol.
func (p Protocol) String() string {
	return string(p)
}

// IsValid reports whether p is a supported protocol.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolHTTP, ProtocolGRPC, ProtocolWebSocket, ProtocolGraphQL:
		return true
	default:
		return false
	}
}

// Parse converts a name such as "ws" or "GraphQL" to a Protocol.
func Parse(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http", "https":
		return ProtocolHTTP, nil
	case "grpc":
		return ProtocolGRPC, nil
	case "websocket", "ws", "wss":
		return ProtocolWebSocket, nil
	case "graphql":
		return ProtocolGraphQL, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProtocol, s)
}

// Capability identifies optional features a protocol supports.
type Capability string

const (
	// CapabilityBidirectional means the call stays open and accepts payloads.
	CapabilityBidirectional Capability = "bidirectional"

	// CapabilityStreaming means the peer may push several messages.
	CapabilityStreaming Capability = "streaming"

	// CapabilityFrameTimeline means the exchange log may hold frames.
	CapabilityFrameTimeline Capability = "frame_timeline"

	// CapabilitySchemaIntrospect means the API can be discovered from the server.
	CapabilitySchemaIntrospect Capability = "schema_introspect"
)

var capabilities = map[Protocol][]Capability{
	ProtocolHTTP:      {CapabilityFrameTimeline},
	ProtocolGRPC:      {CapabilitySchemaIntrospect},
	ProtocolWebSocket: {CapabilityBidirectional, CapabilityStreaming},
	ProtocolGraphQL:   {CapabilityStreaming},
}

// Capabilities returns the capabilities of p.
func (p Protocol) Capabilities() []Capability {
	return append([]Capability(nil), capabilities[p]...)
}

// HasCapability reports whether p supports c.
func (p Protocol) HasCapability(c Capability) bool {
	for _, have := range capabilities[p] {
		if have == c {
			return true
		}
	}
	return false
}
