package core

import (
	"errors"
	"fmt"
)

var (
	// ErrBrokerClosed is returned when operations are attempted on a closed broker.
	ErrBrokerClosed = errors.New("crosslink: broker is closed")

	// ErrBrokerFailed is returned by Initialize on a broker whose connect attempt already failed.
	// A failed broker cannot be reused; create a new one.
	ErrBrokerFailed = errors.New("crosslink: broker failed to connect")

	// ErrAlreadyInitialized is returned when Initialize is called twice.
	ErrAlreadyInitialized = errors.New("crosslink: broker already initialized")

	// ErrNotConnected reports a broker that is not in the Connected state.
	ErrNotConnected = errors.New("crosslink: broker is not connected")

	// ErrNoHandler is returned when no handler is registered for a message type.
	ErrNoHandler = errors.New("crosslink: no handler registered for message type")

	// ErrNoRouter is returned when a broker is created without a router.
	ErrNoRouter = errors.New("crosslink: router is nil")

	// ErrInvalidMessage is returned by NewMessage when required fields are missing.
	ErrInvalidMessage = errors.New("crosslink: invalid message")

	// ErrMalformedMessage wraps decode failures of inbound payloads.
	ErrMalformedMessage = errors.New("crosslink: malformed message")

	// ErrHandlerPanic wraps a panic recovered from a message handler.
	ErrHandlerPanic = errors.New("crosslink: handler panicked")

	// ErrCrossServerDisabled is returned when cross-server mode is switched off.
	ErrCrossServerDisabled = errors.New("crosslink: cross-server mode is disabled")

	// ErrBrokerMismatch is returned when the active broker is not the expected type.
	ErrBrokerMismatch = errors.New("crosslink: unexpected broker type")
)

// ConnectionError reports a transport that could not be reached during Initialize.
type ConnectionError struct {
	Broker BrokerType
	Addr   string
	Hint   string
	Err    error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("crosslink/%s: failed to establish connection with %q: %v", e.Broker, e.Addr, e.Err)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DefaultConnectionHint is attached to every ConnectionError produced by the bundled plugins.
const DefaultConnectionHint = "Please check the configured address and credentials"
