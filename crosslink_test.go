package crosslink_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/crosslink"
	"github.com/miladsoleymani/crosslink/core"
	"github.com/miladsoleymani/crosslink/plugins/memory"
)

func TestConnect(t *testing.T) {
	bus := memory.NewBus()
	logger := zerolog.Nop()
	cfg := crosslink.Config{
		Type:       core.BrokerMemory,
		ServerName: "lobby-1",
		Logger:     &logger,
		Extra:      map[string]any{memory.ExtraBus: bus},
	}

	got := make(chan string, 1)
	r := crosslink.NewRouter("lobby-1", core.NewLocalRoster(crosslink.Player("Steve")))
	r.Handle(crosslink.TypeTeleportRequest, func(c crosslink.Context) error {
		got <- c.Receiver().Name()
		return nil
	})

	b, err := crosslink.Connect(context.Background(), cfg, r)
	require.NoError(t, err)
	defer b.Close()

	msg, err := crosslink.NewMessage(crosslink.TypeTeleportRequest, "Steve", crosslink.TargetPlayer,
		core.WithSender("Alex"))
	require.NoError(t, err)
	msg.Send(context.Background(), b, crosslink.Player("Alex"))

	select {
	case name := <-got:
		assert.Equal(t, "Steve", name)
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestConnect_Failure(t *testing.T) {
	closed := memory.NewBus()
	closed.Close()
	logger := zerolog.Nop()

	_, err := crosslink.Connect(context.Background(), crosslink.Config{
		Type:   core.BrokerMemory,
		Logger: &logger,
		Extra:  map[string]any{memory.ExtraBus: closed},
	}, crosslink.NewRouter("lobby-1", nil))
	var cerr *core.ConnectionError
	assert.ErrorAs(t, err, &cerr)

	_, err = crosslink.Connect(context.Background(), crosslink.Config{Type: "redis"}, crosslink.NewRouter("lobby-1", nil))
	assert.Error(t, err)
}
