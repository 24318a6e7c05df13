package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Router decides which local identities an inbound Message is for and hands
// each delivery to the handler registered for the message type.
type Router struct {
	serverName  string
	roster      Roster
	matcher     TargetMatcher
	middlewares []MiddlewareFunc
	routes      map[MessageType]HandlerFunc
	fallback    HandlerFunc
	ignoreOwn   bool
	logger      zerolog.Logger
	mu          sync.RWMutex
}

// NewRouter creates a Router for the server called serverName. roster may be
// nil, in which case player-targeted messages are never delivered.
func NewRouter(serverName string, roster Roster) *Router {
	return &Router{
		serverName: serverName,
		roster:     roster,
		matcher:    DefaultMatcher{},
		routes:     make(map[MessageType]HandlerFunc),
		logger:     zerolog.Nop(),
	}
}

// ServerName returns the name this router matches server targets against.
func (r *Router) ServerName() string { return r.serverName }

// SetMatcher replaces the target matcher.
func (r *Router) SetMatcher(m TargetMatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matcher = m
}

// SetLogger sets the logger used for routing diagnostics.
func (r *Router) SetLogger(l zerolog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

// Logger returns the router's logger.
func (r *Router) Logger() zerolog.Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// IgnoreOwn controls whether messages whose source server is this server
// are dropped before routing. Off by default: a process receives its own
// broadcasts and handlers must tolerate that.
func (r *Router) IgnoreOwn(ignore bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ignoreOwn = ignore
}

// Use registers global middleware. Given middleware [A, B], the call order
// is A -> B -> handler.
func (r *Router) Use(m MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, m)
}

// Handle registers the handler for a message type, replacing any previous one.
func (r *Router) Handle(t MessageType, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[t] = h
}

// HandleDefault registers the handler used for message types without a
// dedicated handler.
func (r *Router) HandleDefault(h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Receivers computes the local deliveries for msg. For player targets it
// returns the matching online users, each at most once. For server targets
// it returns a single nil receiver when the target matches this server.
func (r *Router) Receivers(msg *Message) []User {
	r.mu.RLock()
	matcher, roster := r.matcher, r.roster
	r.mu.RUnlock()

	switch msg.TargetType() {
	case TargetPlayer:
		if roster == nil {
			return nil
		}
		matched := lo.Filter(roster.OnlineUsers(), func(u User, _ int) bool {
			return u != nil && matcher.Match(msg.Target(), u.Name())
		})
		return lo.UniqBy(matched, func(u User) string { return u.Name() })
	case TargetServer:
		if matcher.Match(msg.Target(), r.serverName) {
			return []User{nil}
		}
	}
	return nil
}

// Route delivers msg to every local receiver and returns the number of
// handler invocations. Handler errors are joined; a panicking handler does
// not prevent delivery to the remaining receivers.
func (r *Router) Route(ctx context.Context, msg *Message) (int, error) {
	if msg == nil {
		return 0, nil
	}

	r.mu.RLock()
	ignoreOwn := r.ignoreOwn
	logger := r.logger
	handler, ok := r.routes[msg.Type()]
	if !ok {
		handler = r.fallback
	}
	mws := make([]MiddlewareFunc, len(r.middlewares))
	copy(mws, r.middlewares)
	r.mu.RUnlock()

	if ignoreOwn && msg.SourceServer() != "" && msg.SourceServer() == r.serverName {
		logger.Debug().Str("id", msg.ID()).Str("type", string(msg.Type())).Msg("Ignoring own message")
		return 0, nil
	}

	receivers := r.Receivers(msg)
	if len(receivers) == 0 {
		logger.Debug().
			Str("id", msg.ID()).
			Str("type", string(msg.Type())).
			Str("target", msg.Target()).
			Str("target_type", string(msg.TargetType())).
			Msg("No local receivers")
		return 0, nil
	}
	if handler == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoHandler, msg.Type())
	}

	wrapped := applyMiddleware(handler, mws)

	var errs []error
	for _, receiver := range receivers {
		c := NewContext(ctx, msg, receiver, r.serverName)
		if err := invoke(wrapped, c); err != nil {
			errs = append(errs, err)
		}
	}
	logger.Debug().
		Str("id", msg.ID()).
		Str("type", string(msg.Type())).
		Int("deliveries", len(receivers)).
		Int("failed", len(errs)).
		Msg("Delivered message")
	return len(receivers), errors.Join(errs...)
}

// invoke runs h and turns a panic into an error.
func invoke(h HandlerFunc, c Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("%w: %v\n%s", ErrHandlerPanic, rec, buf[:n])
		}
	}()
	return h(c)
}

// applyMiddleware wraps a handler with middleware in reverse order.
// Given middleware [A, B, C], the call order is A -> B -> C -> handler.
func applyMiddleware(h HandlerFunc, mws []MiddlewareFunc) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
