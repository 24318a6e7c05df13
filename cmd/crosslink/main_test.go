package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/crosslink/broker"
	"github.com/miladsoleymani/crosslink/core"
	"github.com/miladsoleymani/crosslink/internal/mock"
	"github.com/miladsoleymani/crosslink/plugins/memory"
)

func TestBuildMessage(t *testing.T) {
	tests := []struct {
		name       string
		typ        string
		target     string
		targetType string
		wantErr    bool
	}{
		{"broadcast", "request_user_list", core.TargetAll, "server", false},
		{"player", "TELEPORT_REQUEST", "Steve", "PLAYER", false},
		{"unknown type", "SHOUT", core.TargetAll, "SERVER", true},
		{"unknown target type", "PING", core.TargetAll, "WORLD", true},
		{"no target", "PING", "", "SERVER", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := buildMessage("lobby-1", tt.typ, tt.target, tt.targetType, "hi", "Alex")
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "lobby-1", msg.SourceServer())
			assert.Equal(t, "Alex", msg.Sender())
			assert.Equal(t, "hi", msg.Payload().Text)
		})
	}
}

func TestNode_AnswersUserListRequest(t *testing.T) {
	roster := core.NewLocalRoster(core.Player("Steve"), core.Player("Alex"))
	n := newNode("lobby-1", roster, zerolog.Nop())

	req, err := core.NewMessage(core.TypeRequestUserList, core.TargetAll, core.TargetServer,
		core.WithSourceServer("lobby-2"))
	require.NoError(t, err)

	// Not connected yet: the handler error is reported, nothing is sent.
	_, err = n.router.Route(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrNotConnected)

	b := mock.NewBroker()
	n.setBroker(b)
	_, err = n.router.Route(context.Background(), req)
	require.NoError(t, err)

	sent := b.Sent()
	require.Len(t, sent, 1)
	reply := sent[0].Message
	assert.Equal(t, core.TypeUpdateUserList, reply.Type())
	assert.Equal(t, "lobby-2", reply.Target())
	assert.Equal(t, core.TargetServer, reply.TargetType())
	assert.Equal(t, "lobby-1", reply.SourceServer())
	assert.Equal(t, []string{"Alex", "Steve"}, reply.Payload().Names)
}

func TestNode_RecordsStats(t *testing.T) {
	n := newNode("lobby-1", core.NewLocalRoster(core.Player("Steve")), zerolog.Nop())

	for _, typ := range []core.MessageType{core.TypePing, core.TypePing, core.TypeUpdateWarp} {
		msg, err := core.NewMessage(typ, core.TargetAll, core.TargetServer)
		require.NoError(t, err)
		_, err = n.router.Route(context.Background(), msg)
		require.NoError(t, err)
	}

	snap := n.stats.snapshot()
	assert.Equal(t, 2, snap[core.TypePing].handled)
	assert.Equal(t, 1, snap[core.TypeUpdateWarp].handled)
	assert.Zero(t, snap[core.TypePing].failed)
	assert.NotPanics(t, func() { n.stats.log(zerolog.Nop()) })
}

func TestStats_CountsFailures(t *testing.T) {
	s := newStats()
	s.MessageHandled(core.TypePing, time.Millisecond, nil)
	s.MessageHandled(core.TypePing, 3*time.Millisecond, errors.New("boom"))

	ts := s.snapshot()[core.TypePing]
	assert.Equal(t, 2, ts.handled)
	assert.Equal(t, 1, ts.failed)
	assert.Equal(t, 4*time.Millisecond, ts.total)
}

func TestConnect_Memory(t *testing.T) {
	logger := zerolog.Nop()
	cfg := broker.Config{
		Type:   core.BrokerMemory,
		Logger: &logger,
		Extra:  map[string]any{memory.ExtraBus: memory.NewBus()},
	}

	b, err := connect(context.Background(), cfg, core.NewRouter("lobby-1", nil), logger, 0, 0)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, core.StatusConnected, b.Status())
}

func TestConnect_RetriesConnectionFailures(t *testing.T) {
	logger := zerolog.Nop()
	cfg := broker.Config{
		Type:           core.BrokerNATS,
		Brokers:        []string{"nats://127.0.0.1:1"},
		ConnectTimeout: 200 * time.Millisecond,
		Logger:         &logger,
	}

	start := time.Now()
	_, err := connect(context.Background(), cfg, core.NewRouter("lobby-1", nil), logger, 2, 50*time.Millisecond)
	var cerr *core.ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestConnect_DoesNotRetryConfigErrors(t *testing.T) {
	logger := zerolog.Nop()
	_, err := connect(context.Background(), broker.Config{Type: "redis"}, core.NewRouter("lobby-1", nil), logger, 5, time.Hour)
	assert.Error(t, err)
}
