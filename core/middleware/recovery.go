package middleware

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/miladsoleymani/crosslink/core"
)

// Recovery returns middleware that recovers from panics in handlers,
// logs the stack trace, and returns the panic as an error.
func Recovery(logger zerolog.Logger) core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					logger.Error().
						Str("type", string(c.Type())).
						Str("stack", string(buf[:n])).
						Msgf("Panic recovered: %v", r)
					err = fmt.Errorf("%w: %v", core.ErrHandlerPanic, r)
				}
			}()
			return next(c)
		}
	}
}
