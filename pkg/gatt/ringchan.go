package gatt

import "sync"

// RingChannel is a bounded channel-like buffer with overwrite-oldest
// semantics. Producers never block: if the buffer is full, the oldest
// element is discarded. The EventHub uses it for per-subscriber state and
// notification buffers so a slow subscriber can never stall event delivery.
type RingChannel[T any] struct {
	mu     sync.RWMutex
	ch     chan T
	closed bool
}

// NewRingChannel creates a RingChannel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Consumers can range over it
// until it is closed.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest if the buffer is full. Sends
// after Close are dropped silently.
func (rc *RingChannel[T]) Send(v T) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.closed {
		return
	}
	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch: // drop oldest
		default:
		}
		select {
		case rc.ch <- v:
		default:
		}
	}
}

// Close closes the channel, signaling EOF to consumers. Idempotent.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.ch)
}
