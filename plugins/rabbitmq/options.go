package rabbitmq

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/miladsoleymani/crosslink/core"
)

// DefaultConnectTimeout bounds the initial connect attempt.
const DefaultConnectTimeout = 5 * time.Second

// Option configures the RabbitMQ broker.
type Option func(*options)

type options struct {
	// Connection
	connectTimeout time.Duration
	connectionName string
	username       string
	password       string

	// Exchange settings
	durable bool

	// Inbound
	codec     core.Codec
	workers   int
	queueSize int

	logger zerolog.Logger
}

func defaults() options {
	return options{
		connectTimeout: DefaultConnectTimeout,
		connectionName: "crosslink",
		codec:          core.JSONCodec{},
		workers:        core.DefaultWorkers,
		queueSize:      core.DefaultQueueSize,
		logger:         log.Logger.With().Str("broker", string(core.BrokerRabbitMQ)).Logger(),
	}
}

// WithConnectTimeout bounds how long Initialize waits for the server.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithConnectionName sets the client connection name shown in the
// management UI.
func WithConnectionName(name string) Option {
	return func(o *options) { o.connectionName = name }
}

// WithCredentials overrides the userinfo of the AMQP URI. They are only
// applied when both are non-empty.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithDurable controls whether the fanout exchange survives a broker restart.
func WithDurable(d bool) Option {
	return func(o *options) { o.durable = d }
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
