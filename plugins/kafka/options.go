package kafka

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/crosslink/core"
)

// DefaultConnectTimeout bounds the initial connect attempt.
const DefaultConnectTimeout = 5 * time.Second

// Option configures the Kafka broker.
type Option func(*options)

type options struct {
	// Connection
	connectTimeout time.Duration
	clientID       string
	username       string
	password       string

	// Writer
	batchSize    int
	batchTimeout time.Duration
	async        bool

	// Reader
	minBytes int
	maxBytes int
	maxWait  time.Duration

	// Inbound
	codec     core.Codec
	workers   int
	queueSize int

	logger zerolog.Logger
}

func defaults() options {
	return options{
		connectTimeout: DefaultConnectTimeout,
		clientID:       "crosslink",
		batchSize:      100,
		batchTimeout:   10 * time.Millisecond,
		async:          true,
		minBytes:       1,
		maxBytes:       10e6, // 10 MB
		maxWait:        500 * time.Millisecond,
		codec:          core.JSONCodec{},
		workers:        core.DefaultWorkers,
		queueSize:      core.DefaultQueueSize,
		logger:         log.Logger.With().Str("broker", string(core.BrokerKafka)).Logger(),
	}
}

// WithConnectTimeout bounds how long Initialize waits for the cluster.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithClientID sets the client id reported to the brokers.
func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}

// WithCredentials enables SASL/PLAIN. It is only used when both are non-empty.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithBatchSize sets the maximum batch size for writes.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithBatchTimeout sets how long the writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.batchTimeout = d
		}
	}
}

// WithAsync controls whether Send waits for the write to be acknowledged.
func WithAsync(async bool) Option {
	return func(o *options) { o.async = async }
}

// WithMaxBytes sets the maximum bytes per fetch.
func WithMaxBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBytes = n
		}
	}
}

// WithMaxWait sets the maximum wait time for fetches.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxWait = d
		}
	}
}

func WithCodec(c core.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// dialer builds the kafka.Dialer shared by the reader and the
// reachability check.
func (o options) dialer() *kafka.Dialer {
	d := &kafka.Dialer{
		ClientID:  o.clientID,
		Timeout:   o.connectTimeout,
		DualStack: true,
	}
	if m := o.mechanism(); m != nil {
		d.SASLMechanism = m
	}
	return d
}
