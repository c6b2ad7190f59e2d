package gatt

import (
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

const (
	// stateBuffer sizes per-subscriber connection-state buffers.
	stateBuffer = 16

	// notificationBuffer sizes per-subscriber notification buffers.
	notificationBuffer = 128
)

// pendingOp is the per-kind registration of the most recently issued
// request: its defensive correlation token and the single-use delivery slot
// its waiter reads from.
type pendingOp struct {
	token uint64
	done  chan CompletionEvent
}

// EventHub is the single point of ingestion for all asynchronous driver
// callbacks for one connection. It fans each event into a typed,
// identity-correlated queue and owns the readiness gate. It implements
// EventSink and is registered with the driver at connect time; the hub is
// the sole writer of every queue.
//
// Routing relies on the single-flight invariant: at most one operation of a
// kind is outstanding, and the serializer registers that operation here
// immediately before issuing it. The next event of that kind necessarily
// belongs to the registered request. Drivers that can echo the request token
// do; a mismatch against the registration makes a violation of the invariant
// loud instead of silent.
type EventHub struct {
	gate    *ReadinessGate
	states  *StateVar[ConnectionState]
	pending [numOperationKinds]atomic.Pointer[pendingOp]

	notifySubs *hashmap.Map[uint64, *RingChannel[Notification]]
	nextSubID  atomic.Uint64

	logger *logrus.Logger

	mu     sync.Mutex
	cause  error
	closed chan struct{}
	once   sync.Once
}

// NewEventHub creates a hub with a free readiness gate and empty queues.
func NewEventHub(logger *logrus.Logger) *EventHub {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &EventHub{
		gate:       NewReadinessGate(),
		states:     NewStateVar[ConnectionState](),
		notifySubs: hashmap.New[uint64, *RingChannel[Notification]](),
		logger:     logger,
		closed:     make(chan struct{}),
	}
}

// Gate returns the readiness gate owned by this hub.
func (h *EventHub) Gate() *ReadinessGate { return h.gate }

// Expect registers the request about to be issued for kind: its token and
// the slot its waiter consumes. Called by the serializer immediately before
// the driver call, which is always after the previous call of the same kind
// has been delivered (the gate orders the two).
func (h *EventHub) Expect(kind OperationKind, token uint64, done chan CompletionEvent) {
	h.pending[kind].Store(&pendingOp{token: token, done: done})
}

// OperationCompleted ingests a completion callback and delivers it to the
// registered waiter's slot, releasing the readiness gate. Drivers that
// cannot echo the request token leave it zero and the registered token is
// stamped in; a driver that echoes a token for a different request than the
// one registered is flagged here and rejected by the waiter. Implements
// EventSink.
func (h *EventHub) OperationCompleted(ev CompletionEvent) {
	select {
	case <-h.closed:
		h.logger.WithField("kind", ev.Kind).Debug("Completion dropped after close")
		return
	default:
	}

	if p := h.pending[ev.Kind].Load(); p != nil {
		if ev.Token == 0 {
			ev.Token = p.token
		} else if ev.Token != p.token {
			h.logger.WithFields(logrus.Fields{
				"kind":     ev.Kind,
				"expected": p.token,
				"got":      ev.Token,
			}).Error("Completion token does not match outstanding request")
		}
		select {
		case p.done <- ev:
		default:
			// The slot is single-use; a second event for one request means
			// the driver violated its contract.
			h.logger.WithFields(logrus.Fields{
				"kind":  ev.Kind,
				"token": ev.Token,
			}).Error("Duplicate completion for outstanding request, event discarded")
		}
	} else {
		h.logger.WithField("kind", ev.Kind).Warn("Completion without outstanding request, event discarded")
	}

	h.gate.Release()
}

// StateChanged publishes a connection-state transition to the state stream.
// State events do not touch the gate. Implements EventSink.
func (h *EventHub) StateChanged(state ConnectionState) {
	h.logger.WithField("state", state).Debug("Connection state changed")
	h.states.Publish(state)
}

// Notification fans an unsolicited characteristic-change event out to all
// notification subscribers, independent of any outstanding operation.
// Implements EventSink.
func (h *EventHub) Notification(n Notification) {
	h.notifySubs.Range(func(_ uint64, sub *RingChannel[Notification]) bool {
		sub.Send(n)
		return true
	})
}

// SubscribeStates subscribes to the connection-state stream with
// latest-value replay.
func (h *EventHub) SubscribeStates() *Subscription[ConnectionState] {
	return h.states.Subscribe(stateBuffer)
}

// SubscribeNotifications registers a notification subscriber.
func (h *EventHub) SubscribeNotifications() *Subscription[Notification] {
	ch := NewRingChannel[Notification](notificationBuffer)

	select {
	case <-h.closed:
		ch.Close()
		return &Subscription[Notification]{ch: ch, cancel: func() {}}
	default:
	}

	id := h.nextSubID.Add(1)
	h.notifySubs.Set(id, ch)
	return &Subscription[Notification]{
		ch: ch,
		cancel: func() {
			if sub, ok := h.notifySubs.Get(id); ok {
				h.notifySubs.Del(id)
				sub.Close()
			}
		},
	}
}

// Done is closed when the hub is closed. Waiters race completion reads
// against it so close never leaves a caller hanging.
func (h *EventHub) Done() <-chan struct{} { return h.closed }

// Cause returns the error the hub was closed with, if any.
func (h *EventHub) Cause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cause
}

// Close shuts every queue and the state stream, recording cause. Any task
// currently awaiting a queue observes the close instead of blocking forever.
// Idempotent.
func (h *EventHub) Close(cause error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.cause = cause
		h.mu.Unlock()

		close(h.closed)
		h.gate.Close()
		h.states.Close(cause)
		h.notifySubs.Range(func(id uint64, sub *RingChannel[Notification]) bool {
			h.notifySubs.Del(id)
			sub.Close()
			return true
		})
		h.logger.Debug("Event hub closed")
	})
}
