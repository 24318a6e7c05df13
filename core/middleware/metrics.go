package middleware

import (
	"time"

	"github.com/miladsoleymani/crosslink/core"
)

// MetricsCollector is the interface that metrics backends must implement.
// This keeps the middleware decoupled from any specific metrics library.
type MetricsCollector interface {
	// MessageHandled records one delivery of a message of type t.
	// err is nil on success.
	MessageHandled(t core.MessageType, duration time.Duration, err error)
}

// Metrics returns middleware that reports handling metrics to the given collector.
func Metrics(collector MetricsCollector) core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			start := time.Now()
			err := next(c)
			collector.MessageHandled(c.Type(), time.Since(start), err)
			return err
		}
	}
}
