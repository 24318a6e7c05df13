package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// Dispatcher decodes and routes inbound payloads on a fixed pool of workers
// so that a transport's receive loop only has to enqueue. Failures are
// logged per message and never stop the pool.
//
// Stop does not drain: payloads still queued or being routed when Stop
// returns may or may not be delivered.
type Dispatcher struct {
	router  *Router
	codec   Codec
	logger  zerolog.Logger
	workers int

	queue chan []byte
	ctx   context.Context
	stop  context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher creates a Dispatcher. Non-positive workers or queueSize
// fall back to the defaults; a nil codec selects JSONCodec.
func NewDispatcher(r *Router, codec Codec, logger zerolog.Logger, workers, queueSize int) *Dispatcher {
	if codec == nil {
		codec = JSONCodec{}
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		router:  r,
		codec:   codec,
		logger:  logger,
		workers: workers,
		queue:   make(chan []byte, queueSize),
		ctx:     ctx,
		stop:    cancel,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for range d.workers {
			go d.work()
		}
	})
}

// Submit enqueues a raw payload without blocking. It reports false when the
// payload was dropped because the queue is full or the dispatcher stopped.
func (d *Dispatcher) Submit(data []byte) bool {
	if d.ctx.Err() != nil {
		return false
	}
	select {
	case d.queue <- data:
		return true
	default:
		d.logger.Warn().Int("size", len(data)).Msg("Dispatch queue full, dropping inbound message")
		return false
	}
}

// Stop tells the workers to exit. It is idempotent.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Dispatcher) work() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case data := <-d.queue:
			d.process(data)
		}
	}
}

// process decodes and routes one payload. It never panics.
func (d *Dispatcher) process(data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Warn().Interface("panic", rec).Msg("Failed to handle inbound message")
		}
	}()

	msg, err := d.codec.Unmarshal(data)
	if err != nil {
		d.logger.Warn().Err(err).Int("size", len(data)).Msg("Failed to decode inbound message")
		return
	}

	n, err := d.router.Route(d.ctx, msg)
	switch {
	case errors.Is(err, ErrNoHandler):
		d.logger.Debug().Str("id", msg.ID()).Str("type", string(msg.Type())).Msg("No handler for inbound message")
	case err != nil:
		d.logger.Warn().Err(err).Str("id", msg.ID()).Str("type", string(msg.Type())).Msg("Failed to handle inbound message")
	default:
		d.logger.Debug().
			Str("id", msg.ID()).
			Str("type", string(msg.Type())).
			Int("deliveries", n).
			Msg("Routed inbound message")
	}
}

// Handle decodes and routes data synchronously on the caller's goroutine
// and returns decode and handler errors instead of logging them.
func (d *Dispatcher) Handle(data []byte) error {
	msg, err := d.codec.Unmarshal(data)
	if err != nil {
		return err
	}
	if _, err := d.router.Route(d.ctx, msg); err != nil {
		return fmt.Errorf("crosslink: route %s: %w", msg, err)
	}
	return nil
}
