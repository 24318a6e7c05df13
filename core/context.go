package core

import (
	"context"
	"sync"
)

// Context is the handler context for a routed Message. One Context is built
// per delivery, so a broadcast to three players produces three Contexts.
type Context interface {
	// Context returns the underlying context.Context.
	Context() context.Context

	// SetContext replaces the underlying context.Context.
	// Useful for middleware that enriches the context with values or deadlines.
	SetContext(ctx context.Context)

	// Message returns the delivered envelope.
	Message() *Message

	// Type is shorthand for Message().Type().
	Type() MessageType

	// Payload returns a copy of the message payload, or nil.
	Payload() *Payload

	// Receiver returns the local user this delivery is for, or nil when the
	// message targets the server itself.
	Receiver() User

	// ServerName returns the name of the local server.
	ServerName() string

	// Set stores a key-value pair in the context store.
	// Used by middleware to pass data to downstream handlers.
	Set(key string, val any)

	// Get retrieves a value from the context store.
	Get(key string) (any, bool)
}

// HandlerFunc is the function signature for message handlers.
//
//	r.Handle(core.TypeUpdateUserList, func(c core.Context) error {
//	    users.Replace(c.Message().SourceServer(), c.Payload().Names)
//	    return nil
//	})
type HandlerFunc func(c Context) error

// MiddlewareFunc wraps a HandlerFunc to add cross-cutting behavior.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

type deliveryContext struct {
	ctx        context.Context
	msg        *Message
	receiver   User
	serverName string
	store      map[string]any
	mu         sync.RWMutex
}

// NewContext creates a Context for one delivery of msg.
// This is called internally by the Router for each receiver.
func NewContext(ctx context.Context, msg *Message, receiver User, serverName string) Context {
	return &deliveryContext{
		ctx:        ctx,
		msg:        msg,
		receiver:   receiver,
		serverName: serverName,
		store:      make(map[string]any),
	}
}

func (c *deliveryContext) Context() context.Context { return c.ctx }

func (c *deliveryContext) SetContext(ctx context.Context) { c.ctx = ctx }

func (c *deliveryContext) Message() *Message { return c.msg }

func (c *deliveryContext) Type() MessageType { return c.msg.Type() }

func (c *deliveryContext) Payload() *Payload { return c.msg.Payload() }

func (c *deliveryContext) Receiver() User { return c.receiver }

func (c *deliveryContext) ServerName() string { return c.serverName }

func (c *deliveryContext) Set(key string, val any) {
	c.mu.Lock()
	c.store[key] = val
	c.mu.Unlock()
}

func (c *deliveryContext) Get(key string) (any, bool) {
	c.mu.RLock()
	val, ok := c.store[key]
	c.mu.RUnlock()
	return val, ok
}
