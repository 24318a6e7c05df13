package core

import "context"

// BrokerType names a transport binding. It is the value configured by
// operators to choose a binding.
type BrokerType string

const (
	BrokerNATS     BrokerType = "nats"
	BrokerRabbitMQ BrokerType = "rabbitmq"
	BrokerKafka    BrokerType = "kafka"
	BrokerMemory   BrokerType = "memory"
)

// Status is the connection state of a Broker.
type Status int

const (
	StatusUninitialized Status = iota
	StatusConnecting
	StatusConnected
	// StatusDisconnected is reported while a connected transport has lost
	// its link and is trying to get it back.
	StatusDisconnected
	StatusClosed
	// StatusFailed is terminal: the connect attempt did not succeed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusClosed:
		return "closed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Broker defines the contract for transport bindings.
//
// Send and inbound dispatch only happen between a successful Initialize and
// Close. Delivery is best effort and at most once: Send never reports
// transport failures, it logs and drops them.
type Broker interface {
	// Initialize connects to the transport and subscribes to the channel.
	// It returns a *ConnectionError if the transport cannot be reached.
	Initialize(ctx context.Context) error

	// Send publishes msg on the channel if the broker is connected and
	// drops it otherwise. sender is the local user on whose behalf the
	// message is sent and may be nil.
	Send(ctx context.Context, msg *Message, sender User)

	// Close releases the transport. It is idempotent and safe to call
	// whether or not Initialize succeeded.
	Close()

	// Status reports the current connection state.
	Status() Status

	// Type reports which binding this is.
	Type() BrokerType
}
