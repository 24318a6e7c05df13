package middleware

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/miladsoleymani/crosslink/core"
)

// Logging returns middleware that logs each delivery with its duration and error.
func Logging(logger zerolog.Logger) core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			start := time.Now()
			err := next(c)

			var ev *zerolog.Event
			if err != nil {
				ev = logger.Warn().Err(err)
			} else {
				ev = logger.Debug()
			}
			ev = ev.Str("id", c.Message().ID()).
				Str("type", string(c.Type())).
				Dur("elapsed", time.Since(start))
			if r := c.Receiver(); r != nil {
				ev = ev.Str("receiver", r.Name())
			}
			if err != nil {
				ev.Msg("Handler failed")
			} else {
				ev.Msg("Handled message")
			}
			return err
		}
	}
}
