package gatt

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ----------------------------
// Operation Results
// ----------------------------

// DiscoveryResult carries the discovered service tree and the driver status.
type DiscoveryResult struct {
	Services []Service
	Status   Status
}

// ReadResult carries the bytes read from a characteristic.
type ReadResult struct {
	Characteristic CharacteristicID
	Value          []byte
	Status         Status
}

// WriteResult reports a characteristic write completion.
type WriteResult struct {
	Characteristic CharacteristicID
	Status         Status
}

// DescriptorWriteResult reports a descriptor write completion.
type DescriptorWriteResult struct {
	Descriptor DescriptorID
	Status     Status
}

// MTUResult carries the MTU the peripheral granted.
type MTUResult struct {
	MTU    int
	Status Status
}

// RSSIResult carries the measured signal strength.
type RSSIResult struct {
	RSSI   int
	Status Status
}

// ----------------------------
// Client
// ----------------------------

// Client is the caller-facing operation surface over one connected driver
// handle. Every attribute operation follows the same protocol: submit to the
// serializer, await the immediate acknowledgment, then await the correlated
// completion raced against disconnect and close.
//
// A non-zero GATT status inside a completion is returned to the caller as
// part of the result; only transport-level failures surface as errors.
type Client struct {
	handle     Handle
	hub        *EventHub
	serializer *OperationSerializer
	monitor    *StateMonitor
	logger     *logrus.Logger

	tokens    atomic.Uint64
	closeOnce sync.Once
}

// NewClient binds a client to one connected driver handle and its event hub.
// Use Dial for the full connect bootstrap.
func NewClient(handle Handle, hub *EventHub, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Client{
		handle:     handle,
		hub:        hub,
		serializer: NewOperationSerializer(handle, hub, logger),
		monitor:    NewStateMonitor(hub),
		logger:     logger,
	}
}

// perform runs the common operation protocol and returns the completion.
func (c *Client) perform(ctx context.Context, req *Request) (CompletionEvent, error) {
	req.Token = c.tokens.Add(1)

	// Subscribe to the state stream before waiting so a disconnect that
	// lands between ack and wait is still observed. Latest-value replay
	// covers a transition that happened just before the subscription.
	stateSub := c.hub.SubscribeStates()
	defer stateSub.Cancel()

	ok, err := c.serializer.Submit(ctx, req)
	if err != nil {
		return CompletionEvent{}, err
	}
	if !ok {
		c.logger.WithFields(logrus.Fields{
			"kind":  req.Kind,
			"token": req.Token,
		}).Warn("Driver rejected request")
		return CompletionEvent{}, ErrDriverRejected
	}

	return c.await(ctx, req, stateSub)
}

// await races the correlated completion against the next disconnect
// transition, hub close, and caller cancellation.
//
// Disconnect-before-completion must win even when both events are already
// buffered by the time the waiter looks: the select alone would pick a ready
// case at random, so every received completion first drains the state
// subscription for a disconnect that was published ahead of it. The hub
// delivers state transitions into subscriber buffers before the completion
// lands in the done slot, which makes that priority check deterministic.
func (c *Client) await(ctx context.Context, req *Request, stateSub *Subscription[ConnectionState]) (CompletionEvent, error) {
	for {
		select {
		case ev := <-req.done:
			if err := c.drainPriorDisconnect(req, stateSub); err != nil {
				return CompletionEvent{}, err
			}
			if ev.Token != req.Token {
				c.logger.WithFields(logrus.Fields{
					"kind":     req.Kind,
					"expected": req.Token,
					"got":      ev.Token,
				}).Error("Completion correlation mismatch")
				return CompletionEvent{}, ErrCorrelation
			}
			return ev, nil

		case state, open := <-stateSub.Events():
			if !open {
				return CompletionEvent{}, &ClosedError{Cause: c.hub.Cause()}
			}
			if state.IsDisconnectish() {
				c.logger.WithFields(logrus.Fields{
					"kind":  req.Kind,
					"state": state,
				}).Warn("Connection lost while awaiting completion")
				return CompletionEvent{}, ErrConnectionLost
			}

		case <-c.hub.Done():
			return CompletionEvent{}, &ClosedError{Cause: c.hub.Cause()}

		case <-ctx.Done():
			return CompletionEvent{}, ctx.Err()
		}
	}
}

// drainPriorDisconnect consumes every state transition already buffered on
// the subscription. A disconnectish one predates the completion in hand, so
// the completion is stale and the call fails as connection lost.
func (c *Client) drainPriorDisconnect(req *Request, stateSub *Subscription[ConnectionState]) error {
	for {
		select {
		case state, open := <-stateSub.Events():
			if !open {
				return &ClosedError{Cause: c.hub.Cause()}
			}
			if state.IsDisconnectish() {
				c.logger.WithFields(logrus.Fields{
					"kind":  req.Kind,
					"state": state,
				}).Warn("Disconnect preceded completion, discarding stale result")
				return ErrConnectionLost
			}
		default:
			return nil
		}
	}
}

// DiscoverServices requests discovery of the peripheral's service tree.
func (c *Client) DiscoverServices(ctx context.Context) (DiscoveryResult, error) {
	req := newRequest(OpDiscoverServices)
	ev, err := c.perform(ctx, req)
	if err != nil {
		return DiscoveryResult{}, err
	}
	return DiscoveryResult{Services: ev.Services, Status: ev.Status}, nil
}

// ReadCharacteristic reads the current value of a characteristic.
func (c *Client) ReadCharacteristic(ctx context.Context, id CharacteristicID) (ReadResult, error) {
	req := newRequest(OpReadCharacteristic)
	req.Characteristic = id
	ev, err := c.perform(ctx, req)
	if err != nil {
		return ReadResult{}, err
	}
	return ReadResult{Characteristic: ev.Characteristic, Value: ev.Payload, Status: ev.Status}, nil
}

// WriteCharacteristic writes data to a characteristic with the given write
// type.
func (c *Client) WriteCharacteristic(ctx context.Context, id CharacteristicID, data []byte, writeType WriteType) (WriteResult, error) {
	req := newRequest(OpWriteCharacteristic)
	req.Characteristic = id
	req.Payload = data
	req.WriteType = writeType
	ev, err := c.perform(ctx, req)
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Characteristic: ev.Characteristic, Status: ev.Status}, nil
}

// WriteDescriptor writes data to a descriptor.
func (c *Client) WriteDescriptor(ctx context.Context, id DescriptorID, data []byte) (DescriptorWriteResult, error) {
	req := newRequest(OpWriteDescriptor)
	req.Descriptor = id
	req.Payload = data
	ev, err := c.perform(ctx, req)
	if err != nil {
		return DescriptorWriteResult{}, err
	}
	return DescriptorWriteResult{Descriptor: ev.Descriptor, Status: ev.Status}, nil
}

// RequestMTU negotiates the maximum transmission unit.
func (c *Client) RequestMTU(ctx context.Context, mtu int) (MTUResult, error) {
	req := newRequest(OpRequestMTU)
	req.MTU = mtu
	ev, err := c.perform(ctx, req)
	if err != nil {
		return MTUResult{}, err
	}
	return MTUResult{MTU: ev.MTU, Status: ev.Status}, nil
}

// ReadRSSI reads the received signal strength for the connection.
func (c *Client) ReadRSSI(ctx context.Context) (RSSIResult, error) {
	req := newRequest(OpReadRSSI)
	ev, err := c.perform(ctx, req)
	if err != nil {
		return RSSIResult{}, err
	}
	return RSSIResult{RSSI: ev.RSSI, Status: ev.Status}, nil
}

// SetNotificationEnabled is a synchronous pass-through to the driver. It
// does not use the readiness gate and does not wait on any queue; the
// driver's boolean result is returned directly.
func (c *Client) SetNotificationEnabled(id CharacteristicID, enable bool) bool {
	return c.handle.SetNotificationEnabled(id, enable)
}

// Connect issues the driver's connect request directly (link-state requests
// are not attribute operations and bypass the gate) and suspends until the
// Connected state is observed. Returns whether it was reached.
func (c *Client) Connect(ctx context.Context) (bool, error) {
	if !c.handle.Connect() {
		return false, nil
	}
	return c.monitor.AwaitState(ctx, StateConnected)
}

// Disconnect issues the driver's disconnect request and suspends until the
// Disconnected state is observed. It never fails because a previous
// operation failed; it is always safe to call.
func (c *Client) Disconnect(ctx context.Context) (bool, error) {
	if !c.handle.Disconnect() {
		return false, nil
	}
	return c.monitor.AwaitState(ctx, StateDisconnected)
}

// States subscribes to the connection-state stream. The subscription
// immediately replays the most recent state. Callers must Cancel it.
func (c *Client) States() *Subscription[ConnectionState] {
	return c.hub.SubscribeStates()
}

// Notifications subscribes to unsolicited characteristic-change events.
// Callers must Cancel it.
func (c *Client) Notifications() *Subscription[Notification] {
	return c.hub.SubscribeNotifications()
}

// Close tears the client down: the serializer, every event queue, and the
// driver handle. Every currently-suspended await fails as closed, as does
// every call made afterwards. Idempotent and safe to call concurrently.
func (c *Client) Close() {
	c.CloseWithCause(nil)
}

// CloseWithCause closes the client recording cause, which subsequent Closed
// failures wrap.
func (c *Client) CloseWithCause(cause error) {
	c.closeOnce.Do(func() {
		c.logger.Debug("Closing GATT client")
		c.serializer.Close()
		c.hub.Close(cause)
		if err := c.handle.Close(); err != nil {
			c.logger.WithField("error", err).Warn("Driver handle close reported error")
		}
	})
}
