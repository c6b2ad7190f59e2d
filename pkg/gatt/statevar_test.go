package gatt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvState(t *testing.T, sub *Subscription[ConnectionState]) (ConnectionState, bool) {
	t.Helper()
	select {
	case s, ok := <-sub.Events():
		return s, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state")
		return 0, false
	}
}

func TestStateVar_ReplaysLatestToNewSubscriber(t *testing.T) {
	v := NewStateVar[ConnectionState]()
	v.Publish(StateConnecting)
	v.Publish(StateConnected)

	sub := v.Subscribe(stateBuffer)
	defer sub.Cancel()

	state, ok := recvState(t, sub)
	require.True(t, ok)
	assert.Equal(t, StateConnected, state, "late subscriber MUST immediately see the most recent value")
}

func TestStateVar_BroadcastsInEmissionOrder(t *testing.T) {
	v := NewStateVar[ConnectionState]()

	a := v.Subscribe(stateBuffer)
	defer a.Cancel()
	b := v.Subscribe(stateBuffer)
	defer b.Cancel()

	v.Publish(StateConnecting)
	v.Publish(StateConnected)
	v.Publish(StateDisconnecting)

	want := []ConnectionState{StateConnecting, StateConnected, StateDisconnecting}
	for _, sub := range []*Subscription[ConnectionState]{a, b} {
		for _, expected := range want {
			state, ok := recvState(t, sub)
			require.True(t, ok)
			assert.Equal(t, expected, state, "every subscriber MUST see transitions in emission order")
		}
	}
}

func TestStateVar_CancelStopsDelivery(t *testing.T) {
	v := NewStateVar[ConnectionState]()

	sub := v.Subscribe(stateBuffer)
	sub.Cancel()
	sub.Cancel() // safe on every exit path

	_, ok := <-sub.Events()
	assert.False(t, ok, "canceled subscription channel MUST be closed")

	// Publishing after cancel must not panic or deliver.
	v.Publish(StateConnected)
}

func TestStateVar_CloseRecordsCause(t *testing.T) {
	v := NewStateVar[ConnectionState]()
	sub := v.Subscribe(stateBuffer)

	cause := errors.New("link torn down")
	v.Close(cause)
	v.Close(nil) // idempotent, first cause wins

	_, ok := <-sub.Events()
	assert.False(t, ok, "close MUST terminate every subscriber stream")
	assert.Equal(t, cause, v.Cause())

	// Subscribing after close yields an already-terminated stream.
	late := v.Subscribe(stateBuffer)
	_, ok = <-late.Events()
	assert.False(t, ok)
}

func TestStateVar_Latest(t *testing.T) {
	v := NewStateVar[ConnectionState]()

	_, seeded := v.Latest()
	assert.False(t, seeded, "empty StateVar MUST report no value")

	v.Publish(StateConnecting)
	latest, seeded := v.Latest()
	assert.True(t, seeded)
	assert.Equal(t, StateConnecting, latest)
}
