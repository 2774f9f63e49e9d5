// Package broker implements a request broker and pub/sub layer on top
// of a Redis keyspace. Clients push serialized requests onto a list and
// wake workers over pub/sub; workers claim items with an atomic LPOP,
// run the registered handler and publish the response on a
// request-specific channel. Publishers and subscribers share the same
// backend for plain fan-out messaging.
package broker

import "encoding/json"

// Handler processes one request claimed by a worker. The returned value
// is serialized into the response; a non-nil error is serialized into
// an error response and re-raised on the requesting client.
type Handler func(c *Context) (any, error)

// MessageHandler processes one pub/sub message. Errors are logged and
// swallowed; they never stop the subscriber.
type MessageHandler func(c *Context) error

// wireRequest is the frame pushed onto a request queue.
type wireRequest struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// wireResponse is the frame published on a response channel. Exactly
// one of Response and Error is set, selected by OK.
type wireResponse struct {
	ID       string          `json:"id"`
	OK       bool            `json:"ok"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    *WireError      `json:"error,omitempty"`
}

// wirePubSub is the frame published on a user pub/sub channel. The id
// exists for logging and tracing only.
type wirePubSub struct {
	ID      string          `json:"id"`
	Message json.RawMessage `json:"message"`
}
