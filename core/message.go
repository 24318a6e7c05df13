package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MessageType identifies what a Message means to its receivers.
type MessageType string

const (
	TypePing                        MessageType = "PING"
	TypeRequestUserList             MessageType = "REQUEST_USER_LIST"
	TypeUpdateUserList              MessageType = "UPDATE_USER_LIST"
	TypeTeleportToPosition          MessageType = "TELEPORT_TO_POSITION"
	TypeTeleportToNetworkedPosition MessageType = "TELEPORT_TO_NETWORKED_POSITION"
	TypeTeleportToNetworkedUser     MessageType = "TELEPORT_TO_NETWORKED_USER"
	TypeTeleportRequest             MessageType = "TELEPORT_REQUEST"
	TypeTeleportRequestResponse     MessageType = "TELEPORT_REQUEST_RESPONSE"
	TypeUpdateHome                  MessageType = "UPDATE_HOME"
	TypeUpdateWarp                  MessageType = "UPDATE_WARP"
)

// MessageTypes lists every known message type.
var MessageTypes = []MessageType{
	TypePing,
	TypeRequestUserList,
	TypeUpdateUserList,
	TypeTeleportToPosition,
	TypeTeleportToNetworkedPosition,
	TypeTeleportToNetworkedUser,
	TypeTeleportRequest,
	TypeTeleportRequestResponse,
	TypeUpdateHome,
	TypeUpdateWarp,
}

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	for _, known := range MessageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TargetType selects the identity space a Message's target is matched against.
type TargetType string

const (
	TargetServer TargetType = "SERVER"
	TargetPlayer TargetType = "PLAYER"
)

func (t TargetType) Valid() bool {
	return t == TargetServer || t == TargetPlayer
}

// TargetAll matches every identity of the message's target type.
const TargetAll = "TARGET_ALL"

// Position is a location on a named server.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Yaw    float32 `json:"yaw"`
	Pitch  float32 `json:"pitch"`
	World  string  `json:"world"`
	Server string  `json:"server"`
}

// TeleportRequest describes a pending /tpa or /tpahere style request.
type TeleportRequest struct {
	Requester string `json:"requester"`
	Kind      string `json:"kind"`
	ExpiresAt int64  `json:"expiresAt"`
	Status    string `json:"status,omitempty"`
}

// Payload carries the type-specific data of a Message.
// Only the fields relevant to the message type are set.
type Payload struct {
	Text            string           `json:"text,omitempty"`
	Names           []string         `json:"names,omitempty"`
	Position        *Position        `json:"position,omitempty"`
	TeleportRequest *TeleportRequest `json:"teleportRequest,omitempty"`
}

func (p *Payload) clone() *Payload {
	if p == nil {
		return nil
	}
	out := &Payload{Text: p.Text}
	if len(p.Names) > 0 {
		out.Names = append([]string(nil), p.Names...)
	}
	if p.Position != nil {
		pos := *p.Position
		out.Position = &pos
	}
	if p.TeleportRequest != nil {
		req := *p.TeleportRequest
		out.TeleportRequest = &req
	}
	return out
}

// Message is the envelope exchanged between servers. It is immutable once
// built; use NewMessage to create one.
type Message struct {
	id           string
	typ          MessageType
	target       string
	targetType   TargetType
	payload      *Payload
	sender       string
	sourceServer string
}

// MessageOption sets an optional field of a Message.
type MessageOption func(*Message)

// WithPayload attaches a copy of p to the message.
func WithPayload(p Payload) MessageOption {
	return func(m *Message) { m.payload = p.clone() }
}

// WithSender records the name of the local user the message originates from.
// Messages sent by the server itself leave it empty.
func WithSender(name string) MessageOption {
	return func(m *Message) { m.sender = name }
}

// WithSourceServer records the name of the originating server.
func WithSourceServer(name string) MessageOption {
	return func(m *Message) { m.sourceServer = name }
}

// WithID overrides the generated message id.
func WithID(id string) MessageOption {
	return func(m *Message) { m.id = id }
}

// NewMessage builds a Message addressed to target within targetType's
// identity space.
//
//	msg, err := core.NewMessage(core.TypeUpdateUserList, core.TargetAll, core.TargetServer,
//	    core.WithPayload(core.Payload{Names: names}))
func NewMessage(t MessageType, target string, targetType TargetType, opts ...MessageOption) (*Message, error) {
	m := &Message{
		id:         uuid.NewString(),
		typ:        t,
		target:     target,
		targetType: targetType,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Message) validate() error {
	switch {
	case !m.typ.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.typ)
	case m.target == "":
		return fmt.Errorf("%w: target is required", ErrInvalidMessage)
	case !m.targetType.Valid():
		return fmt.Errorf("%w: unknown target type %q", ErrInvalidMessage, m.targetType)
	}
	return nil
}

func (m *Message) ID() string             { return m.id }
func (m *Message) Type() MessageType      { return m.typ }
func (m *Message) Target() string         { return m.target }
func (m *Message) TargetType() TargetType { return m.targetType }
func (m *Message) Sender() string         { return m.sender }
func (m *Message) SourceServer() string   { return m.sourceServer }

// Payload returns a copy of the message payload, or nil for signal messages.
func (m *Message) Payload() *Payload { return m.payload.clone() }

// Send hands the message to b. It performs no I/O itself.
func (m *Message) Send(ctx context.Context, b Broker, sender User) {
	b.Send(ctx, m, sender)
}

func (m *Message) String() string {
	return fmt.Sprintf("message[id=%s, type=%s, target=%s/%s]", m.id, m.typ, m.targetType, m.target)
}
