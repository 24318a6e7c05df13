package memory_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/crosslink/broker"
	"github.com/miladsoleymani/crosslink/core"
	"github.com/miladsoleymani/crosslink/plugins/memory"
)

type process struct {
	broker core.Broker
	calls  atomic.Int32
}

func startProcess(t *testing.T, bus *memory.Bus, serverName, subChannel string) *process {
	t.Helper()
	p := &process{}

	r := core.NewRouter(serverName, nil)
	r.Handle(core.TypeUpdateUserList, func(c core.Context) error {
		p.calls.Add(1)
		return nil
	})

	logger := zerolog.Nop()
	b, err := broker.Create(broker.Config{
		Type:       core.BrokerMemory,
		ServerName: serverName,
		SubChannel: subChannel,
		Logger:     &logger,
		Extra:      map[string]any{memory.ExtraBus: bus},
	}, r)
	require.NoError(t, err)
	require.NoError(t, b.Initialize(context.Background()))
	t.Cleanup(b.Close)

	p.broker = b
	return p
}

func userList(t *testing.T, from string) *core.Message {
	t.Helper()
	msg, err := core.NewMessage(core.TypeUpdateUserList, core.TargetAll, core.TargetServer,
		core.WithSourceServer(from),
		core.WithPayload(core.Payload{Names: []string{"Steve", "Alex"}}))
	require.NoError(t, err)
	return msg
}

func TestBroker_SubChannelIsolation(t *testing.T) {
	bus := memory.NewBus()
	a := startProcess(t, bus, "lobby-1", "lobby")
	b := startProcess(t, bus, "lobby-2", "lobby")
	c := startProcess(t, bus, "survival-1", "survival")

	userList(t, "lobby-1").Send(context.Background(), a.broker, nil)

	require.Eventually(t, func() bool { return b.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Zero(t, c.calls.Load())
}

func TestBroker_MalformedPayloadDoesNotDisruptDelivery(t *testing.T) {
	bus := memory.NewBus()
	b := startProcess(t, bus, "lobby-2", "lobby")

	data, err := core.JSONCodec{}.Marshal(userList(t, "lobby-1"))
	require.NoError(t, err)

	require.NoError(t, bus.Publish("crosslink:lobby", []byte(`{"type":`)))
	require.NoError(t, bus.Publish("crosslink:lobby", []byte(`{"type":"UPDATE_USER_LIST","target":"","targetType":"SERVER"}`)))
	require.NoError(t, bus.Publish("crosslink:lobby", data))

	require.Eventually(t, func() bool { return b.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, core.StatusConnected, b.broker.Status())
}

func TestBroker_CBORCodec(t *testing.T) {
	bus := memory.NewBus()
	r := core.NewRouter("lobby-2", nil)
	got := make(chan *core.Message, 1)
	r.Handle(core.TypeUpdateUserList, func(c core.Context) error {
		got <- c.Message()
		return nil
	})

	b, err := memory.New(bus, "crosslink:main", r, memory.WithCodec(core.CBORCodec{}), memory.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, b.Initialize(context.Background()))
	defer b.Close()

	msg := userList(t, "lobby-1")
	b.Send(context.Background(), msg, core.Player("Steve"))

	select {
	case m := <-got:
		assert.Equal(t, msg, m)
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestBroker_Lifecycle(t *testing.T) {
	bus := memory.NewBus()
	r := core.NewRouter("lobby-1", nil)
	b, err := memory.New(bus, "crosslink:main", r, memory.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	assert.Equal(t, core.StatusUninitialized, b.Status())
	assert.Equal(t, core.BrokerMemory, b.Type())
	assert.NotPanics(t, func() { b.Send(context.Background(), userList(t, "lobby-1"), nil) })

	require.NoError(t, b.Initialize(context.Background()))
	assert.Equal(t, core.StatusConnected, b.Status())
	assert.ErrorIs(t, b.Initialize(context.Background()), core.ErrAlreadyInitialized)

	b.Close()
	b.Close()
	assert.Equal(t, core.StatusClosed, b.Status())
	assert.ErrorIs(t, b.Initialize(context.Background()), core.ErrBrokerClosed)
	assert.NotPanics(t, func() { b.Send(context.Background(), userList(t, "lobby-1"), nil) })
}

func TestBroker_BusClosedUnderneath(t *testing.T) {
	bus := memory.NewBus()
	b, err := memory.New(bus, "crosslink:main", core.NewRouter("lobby-1", nil), memory.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, b.Initialize(context.Background()))

	bus.Close()
	assert.Equal(t, core.StatusDisconnected, b.Status())
	assert.NotPanics(t, func() { b.Send(context.Background(), userList(t, "lobby-1"), nil) })
	b.Close()
}

func TestBroker_InitializeFailure(t *testing.T) {
	closed := memory.NewBus()
	closed.Close()

	tests := []struct {
		name string
		bus  *memory.Bus
	}{
		{"nil bus", nil},
		{"closed bus", closed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := memory.New(tt.bus, "crosslink:main", core.NewRouter("lobby-1", nil), memory.WithLogger(zerolog.Nop()))
			require.NoError(t, err)

			var cerr *core.ConnectionError
			require.ErrorAs(t, b.Initialize(context.Background()), &cerr)
			assert.Equal(t, core.BrokerMemory, cerr.Broker)
			assert.Equal(t, core.StatusFailed, b.Status())
			assert.ErrorIs(t, b.Initialize(context.Background()), core.ErrBrokerFailed)
			b.Close()
		})
	}
}

func TestRegistry_BadExtra(t *testing.T) {
	_, err := broker.Create(broker.Config{
		Type:  core.BrokerMemory,
		Extra: map[string]any{memory.ExtraBus: "not a bus"},
	}, core.NewRouter("lobby-1", nil))
	assert.Error(t, err)

	_, err = memory.New(memory.NewBus(), "c", nil)
	assert.ErrorIs(t, err, core.ErrNoRouter)
}

func TestBroker_NilCodecKeepsDefault(t *testing.T) {
	bus := memory.NewBus()
	raw, cancel, err := bus.Subscribe("crosslink:main")
	require.NoError(t, err)
	defer cancel()

	b, err := memory.New(bus, "crosslink:main", core.NewRouter("lobby-1", nil),
		memory.WithCodec(nil), memory.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, b.Initialize(context.Background()))
	defer b.Close()

	assert.NotPanics(t, func() { b.Send(context.Background(), userList(t, "lobby-1"), nil) })

	select {
	case data := <-raw:
		_, err := core.JSONCodec{}.Unmarshal(data)
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("message was not published")
	}
}
