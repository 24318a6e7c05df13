package memory

import (
	"errors"
	"sync"
)

// ErrBusClosed is returned when subscribing to a closed Bus.
var ErrBusClosed = errors.New("crosslink/memory: bus is closed")

const subscriberBuffer = 64

// Bus is a process-local pub/sub transport. Brokers sharing a Bus behave
// like processes sharing a server.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan []byte
	closed bool
}

// DefaultBus is used by brokers created through the registry without an
// explicit bus.
var DefaultBus = NewBus()

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]chan []byte)}
}

// Publish delivers a copy of payload to every subscriber of channel.
// A subscriber whose buffer is full misses the message.
func (b *Bus) Publish(channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for _, ch := range b.subs[channel] {
		select {
		case ch <- append([]byte(nil), payload...):
		default:
			// subscriber buffer full; drop
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published on channel and a
// cancel func that closes it.
func (b *Bus) Subscribe(channel string) (<-chan []byte, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrBusClosed
	}
	if _, ok := b.subs[channel]; !ok {
		b.subs[channel] = make(map[int]chan []byte)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan []byte, subscriberBuffer)
	b.subs[channel][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if byChannel, ok := b.subs[channel]; ok {
			if sub, exists := byChannel[id]; exists {
				delete(byChannel, id)
				close(sub)
			}
			if len(byChannel) == 0 {
				delete(b.subs, channel)
			}
		}
	}
	return ch, cancel, nil
}

// Close closes every subscription and refuses new ones.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for channel, byChannel := range b.subs {
		for id, ch := range byChannel {
			delete(byChannel, id)
			close(ch)
		}
		delete(b.subs, channel)
	}
}

// Closed reports whether Close was called.
func (b *Bus) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
