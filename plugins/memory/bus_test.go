package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	lobby, cancelLobby, err := bus.Subscribe("crosslink:lobby")
	require.NoError(t, err)
	defer cancelLobby()
	survival, cancelSurvival, err := bus.Subscribe("crosslink:survival")
	require.NoError(t, err)
	defer cancelSurvival()

	payload := []byte("hello")
	require.NoError(t, bus.Publish("crosslink:lobby", payload))
	payload[0] = 'j'

	assert.Equal(t, []byte("hello"), <-lobby)
	assert.Empty(t, survival)
}

func TestBus_CancelClosesSubscription(t *testing.T) {
	bus := NewBus()
	ch, cancel, err := bus.Subscribe("c")
	require.NoError(t, err)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, bus.Publish("c", []byte("x")))
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	ch, cancel, err := bus.Subscribe("c")
	require.NoError(t, err)

	bus.Close()
	bus.Close()
	assert.True(t, bus.Closed())
	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, cancel)

	_, _, err = bus.Subscribe("c")
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.ErrorIs(t, bus.Publish("c", nil), ErrBusClosed)
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	_, cancel, err := bus.Subscribe("c")
	require.NoError(t, err)
	defer cancel()

	for range subscriberBuffer * 2 {
		require.NoError(t, bus.Publish("c", []byte("x")))
	}
}
