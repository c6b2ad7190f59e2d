package gatt

import "sync"

// StateVar is a single-slot "latest value" broadcast primitive. Every
// subscriber observes values in emission order, and a new subscriber
// immediately receives the most recently published value before subsequent
// ones. This is deliberately distinct from a plain multi-consumer queue,
// which would not replay.
type StateVar[T any] struct {
	mu     sync.Mutex
	latest T
	seeded bool
	subs   map[uint64]*RingChannel[T]
	nextID uint64
	closed bool
	cause  error
}

// NewStateVar creates an empty StateVar.
func NewStateVar[T any]() *StateVar[T] {
	return &StateVar[T]{subs: make(map[uint64]*RingChannel[T])}
}

// Publish records v as the latest value and fans it out to all subscribers.
// Publishing after Close is a no-op.
func (v *StateVar[T]) Publish(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.latest = val
	v.seeded = true
	for _, sub := range v.subs {
		sub.Send(val)
	}
}

// Latest returns the most recently published value, if any.
func (v *StateVar[T]) Latest() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.latest, v.seeded
}

// Subscribe registers a new subscriber. If a value was ever published, the
// subscription channel is seeded with the latest one. The caller must Cancel
// the subscription on every exit path.
func (v *StateVar[T]) Subscribe(buffer int) *Subscription[T] {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := NewRingChannel[T](buffer)
	if v.closed {
		ch.Close()
		return &Subscription[T]{ch: ch, cancel: func() {}}
	}
	if v.seeded {
		ch.Send(v.latest)
	}

	id := v.nextID
	v.nextID++
	v.subs[id] = ch

	return &Subscription[T]{
		ch: ch,
		cancel: func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if sub, ok := v.subs[id]; ok {
				delete(v.subs, id)
				sub.Close()
			}
		},
	}
}

// Close terminates the stream for every subscriber, recording cause.
// Idempotent.
func (v *StateVar[T]) Close(cause error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.cause = cause
	for id, sub := range v.subs {
		delete(v.subs, id)
		sub.Close()
	}
}

// Cause returns the error the stream was closed with, if any.
func (v *StateVar[T]) Cause() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cause
}

// Subscription is a scoped acquisition of a StateVar stream. Cancel is safe
// to call multiple times and from any exit path.
type Subscription[T any] struct {
	ch         *RingChannel[T]
	cancel     func()
	cancelOnce sync.Once
}

// Events returns the subscription channel. It is closed when the
// subscription is canceled or the stream is closed.
func (s *Subscription[T]) Events() <-chan T {
	return s.ch.C()
}

// Cancel unsubscribes and closes the subscription channel.
func (s *Subscription[T]) Cancel() {
	s.cancelOnce.Do(s.cancel)
}
