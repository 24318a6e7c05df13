package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/miladsoleymani/crosslink/broker"
	"github.com/miladsoleymani/crosslink/core"
)

func init() {
	broker.Register(core.BrokerKafka, func(cfg broker.Config, r *core.Router) (core.Broker, error) {
		opts, err := optsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return New(cfg.Brokers, cfg.Channel(), r, opts...)
	})
}

// Broker implements core.Broker for Apache Kafka using segmentio/kafka-go.
//
// Design decisions:
//   - The crosslink channel maps to a single-partition topic; ':' is not a
//     legal topic character and becomes '.'.
//   - Every process reads partition 0 without a consumer group, starting at
//     the end of the log, so each one sees every message published after it
//     joined and nothing older.
//   - One kafka.Writer shared across all Send calls (thread-safe by library).
//     Writes are async by default and failures are logged from the
//     completion callback.
type Broker struct {
	brokers    []string
	topic      string
	opts       options
	logger     zerolog.Logger
	dispatcher *core.Dispatcher

	mu     sync.Mutex
	status core.Status
	writer *kafka.Writer
	reader *kafka.Reader
	cancel context.CancelFunc
	done   chan struct{}
	lost   bool
}

// New creates a Kafka Broker. The broker does not contact the cluster
// until Initialize.
func New(brokers []string, channel string, r *core.Router, fns ...Option) (*Broker, error) {
	if r == nil {
		return nil, core.ErrNoRouter
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("crosslink/kafka: at least one broker address is required")
	}

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	return &Broker{
		brokers:    brokers,
		topic:      TopicName(channel),
		opts:       opts,
		logger:     opts.logger,
		dispatcher: core.NewDispatcher(r, opts.codec, opts.logger, opts.workers, opts.queueSize),
	}, nil
}

// TopicName maps a crosslink channel to a legal Kafka topic name.
func TopicName(channel string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '.'
		}
	}, channel)
}

// mechanism returns the SASL mechanism, or nil when credentials are incomplete.
func (o options) mechanism() sasl.Mechanism {
	if o.username == "" || o.password == "" {
		return nil
	}
	return plain.Mechanism{Username: o.username, Password: o.password}
}

// Initialize checks the cluster is reachable, makes sure the topic exists
// and starts reading.
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

	dialer := b.opts.dialer()

	connectCtx, cancelConnect := context.WithTimeout(ctx, b.opts.connectTimeout)
	err := b.ensureTopic(connectCtx, dialer)
	cancelConnect()
	if err != nil {
		return b.fail(err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   b.brokers,
		Topic:     b.topic,
		Partition: 0,
		Dialer:    dialer,
		MinBytes:  b.opts.minBytes,
		MaxBytes:  b.opts.maxBytes,
		MaxWait:   b.opts.maxWait,
	})
	if err := reader.SetOffset(kafka.LastOffset); err != nil {
		reader.Close()
		return b.fail(fmt.Errorf("set offset: %w", err))
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(b.brokers...),
		Topic:                  b.topic,
		Balancer:               lowestPartition{},
		BatchSize:              b.opts.batchSize,
		BatchTimeout:           b.opts.batchTimeout,
		Async:                  b.opts.async,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			ClientID:    b.opts.clientID,
			DialTimeout: b.opts.connectTimeout,
			SASL:        b.opts.mechanism(),
		},
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				b.logger.Warn().Err(err).Int("count", len(messages)).Msg("Failed to publish messages to Kafka")
			}
		},
	}

	readCtx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	if b.status == core.StatusClosed {
		b.mu.Unlock()
		cancel()
		reader.Close()
		writer.Close()
		return core.ErrBrokerClosed
	}
	b.reader = reader
	b.writer = writer
	b.cancel = cancel
	b.done = make(chan struct{})
	b.status = core.StatusConnected
	done := b.done
	b.mu.Unlock()

	b.dispatcher.Start()
	go b.readLoop(readCtx, reader, done)

	b.logger.Info().Str("topic", b.topic).Strs("brokers", b.brokers).Msg("Successfully connected to Kafka")
	return nil
}

// ensureTopic dials the cluster and creates the topic through the
// controller. An existing topic is fine.
func (b *Broker) ensureTopic(ctx context.Context, dialer *kafka.Dialer) error {
	conn, err := dialer.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}
	cc, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer cc.Close()

	err = cc.CreateTopics(kafka.TopicConfig{
		Topic:             b.topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %q: %w", b.topic, err)
	}
	return nil
}

func (b *Broker) fail(err error) error {
	b.mu.Lock()
	if b.status != core.StatusClosed {
		b.status = core.StatusFailed
	}
	b.mu.Unlock()

	b.logger.Error().Err(err).Strs("brokers", b.brokers).Msg("Failed to establish connection with Kafka")
	return &core.ConnectionError{
		Broker: core.BrokerKafka,
		Addr:   strings.Join(b.brokers, ","),
		Hint:   core.DefaultConnectionHint,
		Err:    err,
	}
}

// readLoop feeds records to the dispatcher until ctx is cancelled or the
// reader fails.
func (b *Broker) readLoop(ctx context.Context, r *kafka.Reader, done chan struct{}) {
	defer close(done)
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn().Err(err).Str("topic", b.topic).Msg("Kafka reader stopped")
			b.mu.Lock()
			b.lost = true
			b.mu.Unlock()
			return
		}
		b.dispatcher.Submit(m.Value)
	}
}

// Send writes msg to the topic. It is a no-op unless connected.
func (b *Broker) Send(ctx context.Context, msg *core.Message, sender core.User) {
	if msg == nil {
		return
	}

	b.mu.Lock()
	w, status := b.writer, b.status
	if status == core.StatusConnected && b.lost {
		status = core.StatusDisconnected
	}
	b.mu.Unlock()

	if status != core.StatusConnected || w == nil {
		b.logger.Debug().Str("id", msg.ID()).Str("status", status.String()).Msg("Not connected, dropping message")
		return
	}

	data, err := b.opts.codec.Marshal(msg)
	if err != nil {
		b.logger.Warn().Err(err).Str("id", msg.ID()).Msg("Failed to encode message")
		return
	}

	err = w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ID()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(b.opts.codec.ContentType())},
			{Key: "type", Value: []byte(msg.Type())},
		},
	})
	if err != nil {
		b.logger.Warn().Err(err).Str("id", msg.ID()).Msg("Failed to publish message to Kafka")
		return
	}

	ev := b.logger.Debug().Str("id", msg.ID()).Str("type", string(msg.Type())).Str("topic", b.topic)
	if sender != nil {
		ev = ev.Str("sender", sender.Name())
	}
	ev.Msg("Published message")
}

// Close stops reading, flushes the writer and stops the dispatcher.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.status == core.StatusClosed {
		b.mu.Unlock()
		return
	}
	b.status = core.StatusClosed
	w, r, cancel, done := b.writer, b.reader, b.cancel, b.done
	b.writer, b.reader, b.cancel, b.done = nil, nil, nil, nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if r != nil {
		if err := r.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("Error closing Kafka reader")
		}
	}
	if w != nil {
		if err := w.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("Error closing Kafka writer")
		}
	}
	b.dispatcher.Stop()
}

// Status reports the connection state. A reader that stopped on an error
// turns Connected into Disconnected.
func (b *Broker) Status() core.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == core.StatusConnected && b.lost {
		return core.StatusDisconnected
	}
	return b.status
}

func (b *Broker) Type() core.BrokerType { return core.BrokerKafka }

// Topic returns the Kafka topic this broker reads and writes.
func (b *Broker) Topic() string { return b.topic }

// lowestPartition sends every record to the lowest-numbered partition, the
// one all readers consume.
type lowestPartition struct{}

func (lowestPartition) Balance(_ kafka.Message, partitions ...int) int {
	return lo.Min(partitions)
}

// extra is the Kafka-specific part of broker.Config.Extra.
type extra struct {
	ClientID  string `mapstructure:"client_id"`
	Async     *bool  `mapstructure:"async"`
	BatchSize int    `mapstructure:"batch_size"`
	MaxBytes  int    `mapstructure:"max_bytes"`
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
			return nil, fmt.Errorf("crosslink/kafka: decode extra config: %w", err)
		}
		if ex.ClientID != "" {
			opts = append(opts, WithClientID(ex.ClientID))
		}
		if ex.Async != nil {
			opts = append(opts, WithAsync(*ex.Async))
		}
		opts = append(opts, WithBatchSize(ex.BatchSize), WithMaxBytes(ex.MaxBytes))
	}
	return opts, nil
}
