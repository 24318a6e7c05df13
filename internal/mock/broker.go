package mock

import (
	"context"
	"sync"

	"github.com/miladsoleymani/crosslink/core"
)

// Broker is a test double for core.Broker.
type Broker struct {
	mu      sync.Mutex
	sent    []SentMessage
	status  core.Status
	kind    core.BrokerType
	closes  int
	InitErr error
}

// SentMessage records a message passed to Send.
type SentMessage struct {
	Message *core.Message
	Sender  core.User
}

// NewBroker returns a connected double reporting itself as a memory broker.
func NewBroker() *Broker {
	return &Broker{status: core.StatusConnected, kind: core.BrokerMemory}
}

// NewBrokerOfType returns a double with the given type and status.
func NewBrokerOfType(kind core.BrokerType, status core.Status) *Broker {
	return &Broker{status: status, kind: kind}
}

func (b *Broker) Initialize(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.InitErr != nil {
		b.status = core.StatusFailed
		return b.InitErr
	}
	b.status = core.StatusConnected
	return nil
}

// Send records msg only when connected, mirroring the real bindings.
func (b *Broker) Send(_ context.Context, msg *core.Message, sender core.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != core.StatusConnected {
		return
	}
	b.sent = append(b.sent, SentMessage{Message: msg, Sender: sender})
}

func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	b.status = core.StatusClosed
}

func (b *Broker) Status() core.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Broker) Type() core.BrokerType { return b.kind }

// SetStatus forces the reported status.
func (b *Broker) SetStatus(s core.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// Sent returns all messages recorded by Send.
func (b *Broker) Sent() []SentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SentMessage, len(b.sent))
	copy(out, b.sent)
	return out
}

// Closes reports how many times Close was called.
func (b *Broker) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}
