// Package protocol names the wire protocols a call can use and the errors
// shared by their adapters.
//
// Each protocol is served by one adapter, selected by its Protocol value when
// the call is created. Capabilities tell callers what a protocol supports
// beyond a single request/response exchange:
//
//	if p.HasCapability(protocol.CapabilityBidirectional) {
//	    // the call accepts SendPayload while connected
//	}
package protocol
