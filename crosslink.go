// Package crosslink provides the top-level API for cross-server messaging.
// It re-exports core types for convenience, so users can write:
//
//	r := crosslink.NewRouter("lobby-1", roster)
//	r.Handle(crosslink.TypeUpdateUserList, handler)
//	b, err := crosslink.Connect(ctx, cfg, r)
package crosslink

import (
	"context"

	"github.com/miladsoleymani/crosslink/broker"
	"github.com/miladsoleymani/crosslink/core"
)

// Re-export core types at the package level for ergonomic usage.
type (
	Message        = core.Message
	MessageType    = core.MessageType
	TargetType     = core.TargetType
	Payload        = core.Payload
	Position       = core.Position
	Broker         = core.Broker
	BrokerType     = core.BrokerType
	Router         = core.Router
	Context        = core.Context
	HandlerFunc    = core.HandlerFunc
	MiddlewareFunc = core.MiddlewareFunc
	User           = core.User
	Player         = core.Player
	Roster         = core.Roster
	Config         = broker.Config
)

const (
	TargetAll    = core.TargetAll
	TargetServer = core.TargetServer
	TargetPlayer = core.TargetPlayer

	TypePing                        = core.TypePing
	TypeRequestUserList             = core.TypeRequestUserList
	TypeUpdateUserList              = core.TypeUpdateUserList
	TypeTeleportToPosition          = core.TypeTeleportToPosition
	TypeTeleportToNetworkedPosition = core.TypeTeleportToNetworkedPosition
	TypeTeleportToNetworkedUser     = core.TypeTeleportToNetworkedUser
	TypeTeleportRequest             = core.TypeTeleportRequest
	TypeTeleportRequestResponse     = core.TypeTeleportRequestResponse
	TypeUpdateHome                  = core.TypeUpdateHome
	TypeUpdateWarp                  = core.TypeUpdateWarp
)

// NewRouter creates a Router for the server named serverName.
func NewRouter(serverName string, roster Roster) *Router {
	return core.NewRouter(serverName, roster)
}

// NewMessage builds a validated, immutable message.
func NewMessage(t MessageType, target string, targetType TargetType, opts ...core.MessageOption) (*Message, error) {
	return core.NewMessage(t, target, targetType, opts...)
}

// Connect creates the broker selected by cfg.Type and initializes it. The
// plugin for cfg.Type must be imported for its side effects. On failure
// the broker is closed and the error returned.
func Connect(ctx context.Context, cfg Config, r *Router) (Broker, error) {
	b, err := broker.Create(cfg, r)
	if err != nil {
		return nil, err
	}
	if err := b.Initialize(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}
