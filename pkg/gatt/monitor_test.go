package gatt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMonitor_AwaitStateSeesLaterTransition(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)
	monitor := NewStateMonitor(hub)

	go func() {
		time.Sleep(10 * time.Millisecond)
		hub.StateChanged(StateConnecting)
		hub.StateChanged(StateConnected)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reached, err := monitor.AwaitState(ctx, StateConnected)
	require.NoError(t, err)
	assert.True(t, reached, "MUST observe the target state")
}

func TestStateMonitor_AwaitStateReplaysLatest(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)
	monitor := NewStateMonitor(hub)

	hub.StateChanged(StateConnected)

	// The latest value is replayed, so the wait returns without any further
	// transition being published.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reached, err := monitor.AwaitState(ctx, StateConnected)
	require.NoError(t, err)
	assert.True(t, reached)
}

func TestStateMonitor_AwaitStateFailsOnStreamClose(t *testing.T) {
	hub := NewEventHub(quietLogger())
	monitor := NewStateMonitor(hub)

	go func() {
		time.Sleep(10 * time.Millisecond)
		hub.Close(nil)
	}()

	reached, err := monitor.AwaitState(context.Background(), StateConnected)
	require.NoError(t, err)
	assert.False(t, reached, "closed stream MUST end the wait unsuccessfully")
}

func TestStateMonitor_AwaitStateCancellation(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)
	monitor := NewStateMonitor(hub)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	reached, err := monitor.AwaitState(ctx, StateConnected)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, reached)
}

func TestStateMonitor_ConcurrentWaitersDoNotInterfere(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)
	monitor := NewStateMonitor(hub)

	const waiters = 5
	var wg sync.WaitGroup
	results := make(chan bool, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			reached, err := monitor.AwaitState(ctx, StateConnected)
			assert.NoError(t, err)
			results <- reached
		}()
	}

	time.Sleep(20 * time.Millisecond)
	hub.StateChanged(StateConnected)
	wg.Wait()
	close(results)

	for reached := range results {
		assert.True(t, reached, "broadcast semantics: every waiter MUST observe the state")
	}
}

func TestStateMonitor_AwaitConnectedTreatsDisconnectAsFailure(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)
	monitor := NewStateMonitor(hub)

	go func() {
		time.Sleep(10 * time.Millisecond)
		hub.StateChanged(StateConnecting)
		hub.StateChanged(StateDisconnected)
	}()

	reached, err := monitor.AwaitConnected(context.Background())
	require.NoError(t, err)
	assert.False(t, reached, "a disconnect transition MUST settle the attempt as failed")
}
