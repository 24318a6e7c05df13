package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/miladsoleymani/crosslink/broker"
	"github.com/miladsoleymani/crosslink/core"
)

// ExtraBus is the broker.Config.Extra key holding the *Bus to attach to.
const ExtraBus = "bus"

func init() {
	broker.Register(core.BrokerMemory, func(cfg broker.Config, r *core.Router) (core.Broker, error) {
		opts, err := optsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		bus := DefaultBus
		if v, ok := cfg.Extra[ExtraBus]; ok {
			b, ok := v.(*Bus)
			if !ok {
				return nil, fmt.Errorf("crosslink/memory: extra %q must be a *memory.Bus, got %T", ExtraBus, v)
			}
			bus = b
		}
		return New(bus, cfg.Channel(), r, opts...)
	})
}

// Broker implements core.Broker over a process-local Bus. It is meant for
// tests and single-process setups; it follows the same lifecycle as the
// network transports.
type Broker struct {
	bus        *Bus
	channel    string
	opts       options
	dispatcher *core.Dispatcher

	mu     sync.Mutex
	status core.Status
	cancel func()
	done   chan struct{}
}

// New creates a memory Broker on bus and channel. A nil bus is reported by
// Initialize as a connection failure.
func New(bus *Bus, channel string, r *core.Router, fns ...Option) (*Broker, error) {
	if r == nil {
		return nil, core.ErrNoRouter
	}
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Broker{
		bus:        bus,
		channel:    channel,
		opts:       opts,
		dispatcher: core.NewDispatcher(r, opts.codec, opts.logger, opts.workers, opts.queueSize),
	}, nil
}

// Initialize subscribes to the channel and starts dispatching.
func (b *Broker) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case core.StatusConnecting, core.StatusConnected, core.StatusDisconnected:
		return core.ErrAlreadyInitialized
	case core.StatusClosed:
		return core.ErrBrokerClosed
	case core.StatusFailed:
		return core.ErrBrokerFailed
	}

	if err := ctx.Err(); err != nil {
		return b.fail(err)
	}
	if b.bus == nil {
		return b.fail(errors.New("no bus"))
	}
	ch, cancel, err := b.bus.Subscribe(b.channel)
	if err != nil {
		return b.fail(err)
	}

	b.cancel = cancel
	b.done = make(chan struct{})
	b.status = core.StatusConnected
	b.dispatcher.Start()
	go b.pump(ch, b.done)

	b.opts.logger.Info().Str("channel", b.channel).Msg("Attached to in-memory bus")
	return nil
}

// fail must be called with b.mu held.
func (b *Broker) fail(err error) error {
	b.status = core.StatusFailed
	b.opts.logger.Error().Err(err).Str("channel", b.channel).Msg("Failed to attach to in-memory bus")
	return &core.ConnectionError{
		Broker: core.BrokerMemory,
		Addr:   b.channel,
		Hint:   "Please check that the bus is open",
		Err:    err,
	}
}

func (b *Broker) pump(ch <-chan []byte, done chan struct{}) {
	defer close(done)
	for data := range ch {
		b.dispatcher.Submit(data)
	}
}

// Send encodes msg and publishes it on the bus. It is a no-op unless the
// broker is connected.
func (b *Broker) Send(ctx context.Context, msg *core.Message, sender core.User) {
	if msg == nil {
		return
	}
	if status := b.Status(); status != core.StatusConnected {
		b.opts.logger.Debug().Str("id", msg.ID()).Str("status", status.String()).Msg("Not connected, dropping message")
		return
	}
	if ctx.Err() != nil {
		return
	}

	data, err := b.opts.codec.Marshal(msg)
	if err != nil {
		b.opts.logger.Warn().Err(err).Str("id", msg.ID()).Msg("Failed to encode message")
		return
	}
	if err := b.bus.Publish(b.channel, data); err != nil {
		b.opts.logger.Warn().Err(err).Str("id", msg.ID()).Msg("Failed to publish message to bus")
		return
	}

	ev := b.opts.logger.Debug().Str("id", msg.ID()).Str("type", string(msg.Type()))
	if sender != nil {
		ev = ev.Str("sender", sender.Name())
	}
	ev.Msg("Published message")
}

// Close detaches from the bus and stops the dispatcher. The bus itself
// stays open for other brokers.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.status == core.StatusClosed {
		b.mu.Unlock()
		return
	}
	b.status = core.StatusClosed
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	b.dispatcher.Stop()
}

// Status reports the attachment state. A broker whose bus was closed under
// it reports Disconnected.
func (b *Broker) Status() core.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == core.StatusConnected && b.bus.Closed() {
		return core.StatusDisconnected
	}
	return b.status
}

func (b *Broker) Type() core.BrokerType { return core.BrokerMemory }

func (b *Broker) Channel() string { return b.channel }

func optsFromConfig(cfg broker.Config) ([]Option, error) {
	codec, err := core.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithCodec(codec),
		WithWorkers(cfg.Workers),
		WithQueueSize(cfg.QueueSize),
	}
	if cfg.Logger != nil {
		opts = append(opts, WithLogger(*cfg.Logger))
	}
	return opts, nil
}
