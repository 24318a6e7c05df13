package nats_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/crosslink/broker"
	"github.com/miladsoleymani/crosslink/core"
	natsbroker "github.com/miladsoleymani/crosslink/plugins/nats"
)

func runServer(t *testing.T, mutate func(*server.Options)) *server.Server {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	if mutate != nil {
		mutate(&opts)
	}
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

type process struct {
	broker *natsbroker.Broker
	calls  atomic.Int32
	last   atomic.Pointer[core.Message]
}

func startProcess(t *testing.T, url, serverName, subChannel string) *process {
	t.Helper()
	p := &process{}

	r := core.NewRouter(serverName, core.NewLocalRoster())
	r.Handle(core.TypeUpdateUserList, func(c core.Context) error {
		p.calls.Add(1)
		p.last.Store(c.Message())
		return nil
	})

	b, err := natsbroker.New(url, broker.ChannelName(subChannel), r, natsbroker.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, b.Initialize(context.Background()))
	t.Cleanup(b.Close)

	p.broker = b
	return p
}

func TestE2E_SubChannelIsolation(t *testing.T) {
	url := runServer(t, nil).ClientURL()

	a := startProcess(t, url, "lobby-1", "lobby")
	b := startProcess(t, url, "lobby-2", "lobby")
	c := startProcess(t, url, "survival-1", "survival")

	msg, err := core.NewMessage(core.TypeUpdateUserList, core.TargetAll, core.TargetServer,
		core.WithSourceServer("lobby-1"),
		core.WithPayload(core.Payload{Names: []string{"Steve"}}))
	require.NoError(t, err)

	msg.Send(context.Background(), a.broker, nil)

	require.Eventually(t, func() bool { return b.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, msg, b.last.Load())

	// Give stragglers a chance before asserting nothing else arrived.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Zero(t, c.calls.Load())
	// The sender sees its own broadcast.
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestE2E_MalformedPayloadDoesNotDisruptDelivery(t *testing.T) {
	url := runServer(t, nil).ClientURL()
	b := startProcess(t, url, "lobby-2", "lobby")

	raw, err := nats.Connect(url)
	require.NoError(t, err)
	defer raw.Close()

	msg, err := core.NewMessage(core.TypeUpdateUserList, "lobby-2", core.TargetServer)
	require.NoError(t, err)
	data, err := core.JSONCodec{}.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, raw.Publish("crosslink:lobby", []byte(`{"type":`)))
	require.NoError(t, raw.Publish("crosslink:lobby", []byte(`{"type":"UNKNOWN","target":"x","targetType":"SERVER"}`)))
	require.NoError(t, raw.Publish("crosslink:lobby", data))
	require.NoError(t, raw.Flush())

	require.Eventually(t, func() bool { return b.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, msg, b.last.Load())
	assert.Equal(t, core.StatusConnected, b.broker.Status())
}

func TestE2E_Credentials(t *testing.T) {
	url := runServer(t, func(o *server.Options) {
		o.Username = "game"
		o.Password = "s3cret"
	}).ClientURL()

	r := core.NewRouter("lobby-1", nil)

	bad, err := natsbroker.New(url, "crosslink:main", r,
		natsbroker.WithLogger(zerolog.Nop()),
		natsbroker.WithCredentials("game", "wrong"))
	require.NoError(t, err)
	var cerr *core.ConnectionError
	require.ErrorAs(t, bad.Initialize(context.Background()), &cerr)
	bad.Close()

	good, err := natsbroker.New(url, "crosslink:main", r,
		natsbroker.WithLogger(zerolog.Nop()),
		natsbroker.WithCredentials("game", "s3cret"))
	require.NoError(t, err)
	require.NoError(t, good.Initialize(context.Background()))
	assert.Equal(t, core.StatusConnected, good.Status())
	good.Close()
	good.Close()
}

func TestE2E_UnreachableServer(t *testing.T) {
	r := core.NewRouter("lobby-1", nil)
	b, err := natsbroker.New("nats://127.0.0.1:1", "crosslink:main", r,
		natsbroker.WithLogger(zerolog.Nop()),
		natsbroker.WithConnectTimeout(500*time.Millisecond))
	require.NoError(t, err)

	err = b.Initialize(context.Background())
	var cerr *core.ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, core.StatusFailed, b.Status())

	b.Send(context.Background(), nil, nil)
	b.Close()
	b.Close()
}
