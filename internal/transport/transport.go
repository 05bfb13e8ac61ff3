// Package transport defines the server-side contract shared by the websocket,
// gRPC and in-process room service transports.
//
// A client transport carries a call (correlation id, method name, JSON args)
// to a Handler and hands the reply envelope back as raw JSON to the bridge
// callback. Pushed events flow the other way on named channels.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/result"
)

// Reply is a Handler's answer to one call.
type Reply struct {
	Code    result.Code
	Message string
	Payload string
}

// Envelope stamps the reply with the call's correlation id.
func (r Reply) Envelope(callID int64) result.Envelope {
	return result.Envelope{CallID: callID, ReturnCode: r.Code, Message: r.Message, Payload: r.Payload}
}

// OK builds a success reply whose payload is v encoded as JSON. A nil v yields
// an empty payload.
func OK(v any) Reply {
	if v == nil {
		return Reply{Code: result.CodeSuccess}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Errorf(result.CodeFailure, "encoding reply: %v", err)
	}
	return Reply{Code: result.CodeSuccess, Payload: string(data)}
}

// Errorf builds a failure reply.
func Errorf(code result.Code, format string, args ...any) Reply {
	return Reply{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Handler serves room service calls and event subscriptions.
// Implementations must be safe for concurrent use.
type Handler interface {
	// Handle executes method with JSON-encoded args.
	Handle(ctx context.Context, method string, args json.RawMessage) Reply
	// Subscribe registers fn for events published on channel until the
	// returned function is called. fn may be invoked from any goroutine.
	Subscribe(channel string, fn func(events.Envelope)) (unsubscribe func())
}
