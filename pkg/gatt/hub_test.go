package gatt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestEventHub_CompletionReleasesGate(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)

	require.NoError(t, acquireWithTimeout(hub.Gate(), time.Second), "gate starts free")

	done := make(chan CompletionEvent, 1)
	hub.Expect(OpReadCharacteristic, 7, done)
	hub.OperationCompleted(CompletionEvent{Kind: OpReadCharacteristic, Payload: []byte{0x01}})

	select {
	case ev := <-done:
		assert.Equal(t, uint64(7), ev.Token, "hub MUST stamp the registered token")
		assert.Equal(t, []byte{0x01}, ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("completion was not delivered to the registered slot")
	}

	assert.NoError(t, acquireWithTimeout(hub.Gate(), time.Second), "completion MUST release the gate")
}

func TestEventHub_OrphanCompletionStillReleasesGate(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)

	require.NoError(t, acquireWithTimeout(hub.Gate(), time.Second))

	require.NotPanics(t, func() {
		hub.OperationCompleted(CompletionEvent{Kind: OpRequestMTU})
	})
	assert.NoError(t, acquireWithTimeout(hub.Gate(), time.Second), "orphan completion MUST still free the gate")
}

func TestEventHub_StateChangeDoesNotTouchGate(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)

	require.NoError(t, acquireWithTimeout(hub.Gate(), time.Second))

	hub.StateChanged(StateDisconnected)

	err := acquireWithTimeout(hub.Gate(), 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "state events MUST NOT release the gate")
}

func TestEventHub_NotificationsFanOutIndependently(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)

	// Hold the gate to model an operation in flight.
	require.NoError(t, acquireWithTimeout(hub.Gate(), time.Second))

	a := hub.SubscribeNotifications()
	defer a.Cancel()
	b := hub.SubscribeNotifications()
	defer b.Cancel()

	id := CharID("180d", "2a37")
	hub.Notification(Notification{Characteristic: id, Payload: []byte{0x60}})

	for _, sub := range []*Subscription[Notification]{a, b} {
		select {
		case n := <-sub.Events():
			assert.Equal(t, id, n.Characteristic)
			assert.Equal(t, []byte{0x60}, n.Payload)
		case <-time.After(time.Second):
			t.Fatal("notification not delivered while an operation was outstanding")
		}
	}
}

func TestEventHub_NotificationCancelStopsDelivery(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)

	sub := hub.SubscribeNotifications()
	sub.Cancel()
	sub.Cancel()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	require.NotPanics(t, func() {
		hub.Notification(Notification{Characteristic: CharID("180f", "2a19")})
	})
}

func TestEventHub_CloseDrainsEverything(t *testing.T) {
	hub := NewEventHub(quietLogger())

	states := hub.SubscribeStates()
	notifications := hub.SubscribeNotifications()

	cause := errors.New("peripheral rebooted")
	hub.Close(cause)
	hub.Close(nil) // idempotent, first cause wins

	select {
	case <-hub.Done():
	default:
		t.Fatal("Done MUST be closed after Close")
	}
	assert.Equal(t, cause, hub.Cause())

	_, ok := <-states.Events()
	assert.False(t, ok, "state stream MUST be terminated")
	_, ok = <-notifications.Events()
	assert.False(t, ok, "notification stream MUST be terminated")

	// Events after close are dropped, never delivered or blocking.
	done := make(chan CompletionEvent, 1)
	hub.Expect(OpReadRSSI, 1, done)
	hub.OperationCompleted(CompletionEvent{Kind: OpReadRSSI})
	select {
	case <-done:
		t.Fatal("completion after close MUST be dropped")
	case <-time.After(20 * time.Millisecond):
	}

	late := hub.SubscribeNotifications()
	_, ok = <-late.Events()
	assert.False(t, ok, "subscribing after close MUST yield a terminated stream")
}
