package protocol

import "encoding/json"

// Frame types exchanged over the websocket.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameEvent       = "event"
	FrameError       = "error"
	FrameSubscribed  = "subscribed"
)

// ClientFrame is sent by clients.
type ClientFrame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerFrame is sent by the gateway.
type ServerFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Event   string `json:"event,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}
