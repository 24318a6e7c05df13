// Package ops holds operator-facing checks for a running crosslink setup.
package ops

import (
	"context"
	"fmt"

	"github.com/miladsoleymani/crosslink/core"
)

// TestBroker verifies that cross-server messaging is enabled, configured
// for want, and that active is a connected broker of that type. On success
// it broadcasts a PING to every server on the channel.
func TestBroker(ctx context.Context, enabled bool, configured core.BrokerType, active core.Broker, want core.BrokerType) error {
	if !enabled {
		return core.ErrCrossServerDisabled
	}
	if configured != want {
		return fmt.Errorf("%w: configured %q, want %q", core.ErrBrokerMismatch, configured, want)
	}
	if active == nil {
		return fmt.Errorf("%w: no active broker", core.ErrBrokerMismatch)
	}
	if active.Type() != want {
		return fmt.Errorf("%w: active %q, want %q", core.ErrBrokerMismatch, active.Type(), want)
	}
	if s := active.Status(); s != core.StatusConnected {
		return fmt.Errorf("%w: %s is %s", core.ErrNotConnected, want, s)
	}

	msg, err := core.NewMessage(core.TypePing, core.TargetAll, core.TargetServer)
	if err != nil {
		return err
	}
	msg.Send(ctx, active, nil)
	return nil
}
