package memory

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/miladsoleymani/crosslink/core"
)

// Option configures the memory broker.
type Option func(*options)

type options struct {
	codec     core.Codec
	workers   int
	queueSize int
	logger    zerolog.Logger
}

func defaults() options {
	return options{
		codec:     core.JSONCodec{},
		workers:   core.DefaultWorkers,
		queueSize: core.DefaultQueueSize,
		logger:    log.Logger.With().Str("broker", string(core.BrokerMemory)).Logger(),
	}
}

// WithCodec sets the wire codec. Payloads are encoded even in memory so
// the inbound path matches the network transports. A nil codec is ignored.
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
