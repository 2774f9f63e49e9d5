package broker

import (
	"context"
	"encoding/json"
)

// Context carries one delivery into a handler: the decoded payload plus
// the ids a handler may want for logging.
type Context struct {
	ctx     context.Context
	id      string
	name    string
	payload json.RawMessage
}

// Ctx returns the context the delivery runs under. It is canceled when
// the owning worker or subscriber shuts down.
func (c *Context) Ctx() context.Context { return c.ctx }

// RequestID returns the request id of an RPC delivery.
func (c *Context) RequestID() string { return c.id }

// MessageID returns the publish id of a pub/sub delivery.
func (c *Context) MessageID() string { return c.id }

// Queue returns the queue name a request arrived on.
func (c *Context) Queue() string { return c.name }

// Channel returns the channel name a message arrived on.
func (c *Context) Channel() string { return c.name }

// Raw returns the payload without decoding it.
func (c *Context) Raw() json.RawMessage { return c.payload }

// Bind decodes the payload into v.
func (c *Context) Bind(v any) error {
	return json.Unmarshal(c.payload, v)
}
