package core

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec converts Messages to and from their wire representation.
// Every process sharing a channel must use the same codec.
type Codec interface {
	Marshal(m *Message) ([]byte, error)
	Unmarshal(data []byte) (*Message, error)
	ContentType() string
}

// envelope is the wire shape of a Message.
type envelope struct {
	ID           string      `json:"id,omitempty"`
	Type         MessageType `json:"type"`
	Target       string      `json:"target"`
	TargetType   TargetType  `json:"targetType"`
	Payload      *Payload    `json:"payload,omitempty"`
	Sender       string      `json:"sender,omitempty"`
	SourceServer string      `json:"sourceServer,omitempty"`
}

func toEnvelope(m *Message) envelope {
	return envelope{
		ID:           m.id,
		Type:         m.typ,
		Target:       m.target,
		TargetType:   m.targetType,
		Payload:      m.payload,
		Sender:       m.sender,
		SourceServer: m.sourceServer,
	}
}

func fromEnvelope(e envelope) (*Message, error) {
	m := &Message{
		id:           e.ID,
		typ:          e.Type,
		target:       e.Target,
		targetType:   e.TargetType,
		payload:      e.Payload.clone(),
		sender:       e.Sender,
		sourceServer: e.SourceServer,
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}

// JSONCodec is the default codec; it writes the structured text wire format.
type JSONCodec struct{}

func (JSONCodec) Marshal(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("json: %w: nil message", ErrInvalidMessage)
	}
	data, err := json.Marshal(toEnvelope(m))
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return data, nil
}

func (JSONCodec) Unmarshal(data []byte) (*Message, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("json: %w: %v", ErrMalformedMessage, err)
	}
	return fromEnvelope(e)
}

func (JSONCodec) ContentType() string { return "application/json" }

// CBORCodec encodes messages as CBOR. It produces smaller frames than
// JSONCodec but is not human readable.
type CBORCodec struct{}

func (CBORCodec) Marshal(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("cbor: %w: nil message", ErrInvalidMessage)
	}
	data, err := cbor.Marshal(toEnvelope(m))
	if err != nil {
		return nil, fmt.Errorf("cbor: %w", err)
	}
	return data, nil
}

func (CBORCodec) Unmarshal(data []byte) (*Message, error) {
	var e envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("cbor: %w: %v", ErrMalformedMessage, err)
	}
	return fromEnvelope(e)
}

func (CBORCodec) ContentType() string { return "application/cbor" }

// CodecByName returns the codec registered under name ("json" or "cbor").
// An empty name selects JSONCodec.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	}
	return nil, fmt.Errorf("crosslink: unknown codec %q", name)
}
