package broker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/miladsoleymani/crosslink/core"
)

// Factory creates a Broker from the given Config. Inbound messages are
// routed through r.
type Factory func(cfg Config, r *core.Router) (core.Broker, error)

var (
	mu        sync.RWMutex
	factories = make(map[core.BrokerType]Factory)
)

// Register adds a broker factory. Plugins call this from init().
func Register(t core.BrokerType, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[t] = factory
}

// Create instantiates the broker selected by cfg.Type. The returned broker
// still has to be initialized.
func Create(cfg Config, r *core.Router) (core.Broker, error) {
	if r == nil {
		return nil, core.ErrNoRouter
	}
	mu.RLock()
	f, ok := factories[cfg.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("crosslink: unknown broker %q (registered: %v)", cfg.Type, Types())
	}
	return f(cfg, r)
}

// Types lists the registered broker types in sorted order.
func Types() []core.BrokerType {
	mu.RLock()
	types := lo.Keys(factories)
	mu.RUnlock()
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
