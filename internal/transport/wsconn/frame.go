// Package wsconn carries room service calls and events as JSON frames over a
// websocket connection.
package wsconn

import (
	"encoding/json"

	"github.com/cory-johannsen/roomlink/internal/events"
)

// Frame types.
const (
	FrameCall     = "call"
	FrameReply    = "reply"
	FrameListen   = "listen"
	FrameUnlisten = "unlisten"
	FrameEvent    = "event"
)

// Frame is one websocket message in either direction.
type Frame struct {
	Type    string           `json:"type"`
	CallID  int64            `json:"callId,omitempty"`
	Method  string           `json:"method,omitempty"`
	Args    json.RawMessage  `json:"args,omitempty"`
	Reply   json.RawMessage  `json:"reply,omitempty"`
	Channel string           `json:"channel,omitempty"`
	Event   *events.Envelope `json:"event,omitempty"`
}
