package nats

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/miladsoleymani/crosslink/core"
)

// DefaultConnectTimeout bounds the initial connect attempt.
const DefaultConnectTimeout = 5 * time.Second

// Option configures the NATS broker.
type Option func(*options)

type options struct {
	// Connection
	connectTimeout time.Duration
	connectionName string
	username       string
	password       string

	// Inbound
	codec     core.Codec
	workers   int
	queueSize int

	logger zerolog.Logger
	dial   dialFunc
}

func defaults() options {
	return options{
		connectTimeout: DefaultConnectTimeout,
		connectionName: "crosslink",
		codec:          core.JSONCodec{},
		workers:        core.DefaultWorkers,
		queueSize:      core.DefaultQueueSize,
		logger:         log.Logger.With().Str("broker", string(core.BrokerNATS)).Logger(),
		dial:           dialNATS,
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

// WithConnectionName sets the client name reported to the NATS server.
func WithConnectionName(name string) Option {
	return func(o *options) { o.connectionName = name }
}

// WithCredentials sets the username and password. They are only sent when
// both are non-empty.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithCodec sets the wire codec. A nil codec is ignored.
func WithCodec(c core.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithWorkers sets how many goroutines decode and route inbound messages.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithQueueSize sets how many inbound messages may wait for a worker before
// new ones are dropped.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}
