package nats

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/miladsoleymani/crosslink/broker"
	"github.com/miladsoleymani/crosslink/core"
)

func init() {
	broker.Register(core.BrokerNATS, func(cfg broker.Config, r *core.Router) (core.Broker, error) {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("crosslink/nats: at least one server URL is required")
		}
		opts, err := optsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return New(strings.Join(cfg.Brokers, ","), cfg.Channel(), r, opts...)
	})
}

// Broker implements core.Broker over core NATS pub/sub.
//
// Design decisions:
//   - One NATS connection and exactly one subscription per Broker instance.
//   - Plain subjects, no JetStream: delivery is at most once and nothing is
//     persisted or replayed.
//   - The subscription callback only enqueues; decoding and routing run on
//     the dispatcher's workers so a slow handler cannot stall the connection.
//   - Send publishes only while the connection reports CONNECTED and drops
//     the message otherwise. Failures are logged, never returned.
//   - The NATS client reconnects on its own; Status reports Disconnected
//     in the meantime.
type Broker struct {
	url        string
	channel    string
	opts       options
	logger     zerolog.Logger
	dispatcher *core.Dispatcher

	mu     sync.Mutex
	status core.Status
	conn   conn
	sub    subscription
}

// New creates a NATS Broker publishing and subscribing on channel. url is a
// standard NATS URL (nats://host:port), or several separated by commas.
// The broker does not connect until Initialize.
func New(url, channel string, r *core.Router, fns ...Option) (*Broker, error) {
	if r == nil {
		return nil, core.ErrNoRouter
	}
	if url == "" {
		return nil, fmt.Errorf("crosslink/nats: server URL is required")
	}

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	return &Broker{
		url:        url,
		channel:    channel,
		opts:       opts,
		logger:     opts.logger,
		dispatcher: core.NewDispatcher(r, opts.codec, opts.logger, opts.workers, opts.queueSize),
	}, nil
}

// Initialize connects to the NATS server, subscribes to the channel and
// starts dispatching inbound messages.
func (b *Broker) Initialize(ctx context.Context) error {
	b.mu.Lock()
	switch b.status {
	case core.StatusConnecting, core.StatusConnected, core.StatusDisconnected:
		b.mu.Unlock()
		return core.ErrAlreadyInitialized
	case core.StatusClosed:
		b.mu.Unlock()
		return core.ErrBrokerClosed
	case core.StatusFailed:
		b.mu.Unlock()
		return core.ErrBrokerFailed
	}
	b.status = core.StatusConnecting
	b.mu.Unlock()

	c, err := b.connect(ctx)
	if err != nil {
		return b.fail(err)
	}

	sub, err := c.Subscribe(b.channel, b.receive)
	if err != nil {
		c.Close()
		return b.fail(fmt.Errorf("subscribe to %q: %w", b.channel, err))
	}
	if err := c.Flush(); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to flush subscription")
	}

	b.mu.Lock()
	if b.status == core.StatusClosed {
		// Close ran while we were connecting.
		b.mu.Unlock()
		_ = sub.Unsubscribe()
		c.Close()
		return core.ErrBrokerClosed
	}
	b.conn = c
	b.sub = sub
	b.status = core.StatusConnected
	b.mu.Unlock()

	b.dispatcher.Start()
	b.logger.Info().Str("channel", b.channel).Msg("Successfully connected to NATS server")
	return nil
}

// connect dials the server, giving up when the connect timeout elapses or
// ctx is cancelled.
func (b *Broker) connect(ctx context.Context) (conn, error) {
	opts := []nats.Option{
		nats.Name(b.opts.connectionName),
		nats.Timeout(b.opts.connectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Warn().Err(err).Msg("Disconnected from NATS server")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.logger.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS server")
		}),
	}
	if b.opts.username != "" && b.opts.password != "" {
		opts = append(opts, nats.UserInfo(b.opts.username, b.opts.password))
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.connectTimeout)
	defer cancel()

	type result struct {
		c   conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := b.opts.dial(b.url, opts...)
		done <- result{c: c, err: err}
	}()

	select {
	case res := <-done:
		return res.c, res.err
	case <-ctx.Done():
		// Don't leak a connection that completes after we gave up.
		go func() {
			if res := <-done; res.c != nil {
				res.c.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (b *Broker) fail(err error) error {
	b.mu.Lock()
	if b.status != core.StatusClosed {
		b.status = core.StatusFailed
	}
	b.mu.Unlock()

	cerr := &core.ConnectionError{
		Broker: core.BrokerNATS,
		Addr:   b.url,
		Hint:   core.DefaultConnectionHint,
		Err:    err,
	}
	b.logger.Error().Err(err).Str("url", b.url).Msg("Failed to establish connection with NATS server")
	return cerr
}

// receive runs on the NATS client's delivery goroutine and must return quickly.
func (b *Broker) receive(m *nats.Msg) {
	b.dispatcher.Submit(m.Data)
}

// Send publishes msg on the channel. It is a no-op unless the connection is up.
func (b *Broker) Send(ctx context.Context, msg *core.Message, sender core.User) {
	if msg == nil {
		return
	}

	b.mu.Lock()
	c, status := b.conn, b.status
	b.mu.Unlock()

	if status != core.StatusConnected || c == nil || c.Status() != nats.CONNECTED {
		b.logger.Debug().Str("id", msg.ID()).Str("status", status.String()).Msg("Not connected, dropping message")
		return
	}
	if ctx.Err() != nil {
		b.logger.Debug().Err(ctx.Err()).Str("id", msg.ID()).Msg("Context done, dropping message")
		return
	}

	data, err := b.opts.codec.Marshal(msg)
	if err != nil {
		b.logger.Warn().Err(err).Str("id", msg.ID()).Msg("Failed to encode message")
		return
	}
	if err := c.Publish(b.channel, data); err != nil {
		b.logger.Warn().Err(err).Str("id", msg.ID()).Msg("Failed to publish message to NATS")
		return
	}

	ev := b.logger.Debug().Str("id", msg.ID()).Str("type", string(msg.Type())).Str("channel", b.channel)
	if sender != nil {
		ev = ev.Str("sender", sender.Name())
	}
	ev.Msg("Published message")
}

// Close drains the subscription and connection and stops the dispatcher.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.status == core.StatusClosed {
		b.mu.Unlock()
		return
	}
	b.status = core.StatusClosed
	c, sub := b.conn, b.sub
	b.conn, b.sub = nil, nil
	b.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Debug().Err(err).Msg("Failed to unsubscribe")
		}
	}
	if c != nil {
		if err := c.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("Error closing NATS connection")
			c.Close()
		}
	}
	b.dispatcher.Stop()
}

// Status reports the connection state.
func (b *Broker) Status() core.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == core.StatusConnected && b.conn != nil && b.conn.Status() != nats.CONNECTED {
		return core.StatusDisconnected
	}
	return b.status
}

func (b *Broker) Type() core.BrokerType { return core.BrokerNATS }

// Channel returns the subject this broker publishes and subscribes on.
func (b *Broker) Channel() string { return b.channel }

// extra is the NATS-specific part of broker.Config.Extra.
type extra struct {
	ConnectionName string `mapstructure:"connection_name"`
}

// optsFromConfig translates broker.Config into options.
func optsFromConfig(cfg broker.Config) ([]Option, error) {
	codec, err := core.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithConnectTimeout(cfg.Timeout()),
		WithCodec(codec),
		WithWorkers(cfg.Workers),
		WithQueueSize(cfg.QueueSize),
	}
	if user, pass, ok := cfg.Credentials(); ok {
		opts = append(opts, WithCredentials(user, pass))
	}
	if cfg.Logger != nil {
		opts = append(opts, WithLogger(*cfg.Logger))
	}
	if cfg.Extra != nil {
		var ex extra
		if err := mapstructure.Decode(cfg.Extra, &ex); err != nil {
			return nil, fmt.Errorf("crosslink/nats: decode extra config: %w", err)
		}
		if ex.ConnectionName != "" {
			opts = append(opts, WithConnectionName(ex.ConnectionName))
		}
	}
	return opts, nil
}
