package graphql

import (
	"encoding/json"
	"fmt"

	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
)

// Subprotocol is the WebSocket subprotocol negotiated for subscriptions.
const Subprotocol = "graphql-transport-ws"

// graphql-transport-ws message types.
const (
	msgTypeConnectionInit = "connection_init"
	msgTypeConnectionAck  = "connection_ack"
	msgTypePing           = "ping"
	msgTypePong           = "pong"
	msgTypeSubscribe      = "subscribe"
	msgTypeNext           = "next"
	msgTypeError          = "error"
	msgTypeComplete       = "complete"
)

// wsMessage is one graphql-transport-ws message.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribePayload is the payload of a subscribe message.
type subscribePayload struct {
	Query         string          `json:"query"`
	OperationName string          `json:"operationName,omitempty"`
	Variables     json.RawMessage `json:"variables,omitempty"`
}

func encode(msg wsMessage) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decode(text string) (wsMessage, error) {
	var msg wsMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", protocol.ErrProtocolViolation, err)
	}
	if msg.Type == "" {
		return msg, fmt.Errorf("%w: message without type", protocol.ErrProtocolViolation)
	}
	return msg, nil
}
