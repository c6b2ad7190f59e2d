package gatt

import "context"

// StateMonitor is a reusable "wait for state" utility layered on the
// connection-state stream. Multiple concurrent waiters are supported; the
// underlying stream has broadcast semantics, not consume-once.
type StateMonitor struct {
	hub *EventHub
}

// NewStateMonitor creates a monitor over the hub's state stream.
func NewStateMonitor(hub *EventHub) *StateMonitor {
	return &StateMonitor{hub: hub}
}

// AwaitState suspends until the stream publishes target. It returns
// (true, nil) when target is observed, (false, nil) when the stream closes
// first, and (false, ctx.Err()) on cancellation. The subscription is torn
// down unconditionally on every exit path.
func (m *StateMonitor) AwaitState(ctx context.Context, target ConnectionState) (bool, error) {
	sub := m.hub.SubscribeStates()
	defer sub.Cancel()

	for {
		select {
		case state, ok := <-sub.Events():
			if !ok {
				return false, nil
			}
			if state == target {
				return true, nil
			}
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// AwaitConnected waits for the initial link attempt to settle. It returns
// (true, nil) once Connected is observed and (false, nil) when a disconnect
// transition or stream close arrives first; intermediate states keep the
// wait alive. Cancellation tears the subscription down and returns ctx.Err().
func (m *StateMonitor) AwaitConnected(ctx context.Context) (bool, error) {
	sub := m.hub.SubscribeStates()
	defer sub.Cancel()

	for {
		select {
		case state, ok := <-sub.Events():
			if !ok {
				return false, nil
			}
			if state == StateConnected {
				return true, nil
			}
			if state.IsDisconnectish() {
				return false, nil
			}
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
