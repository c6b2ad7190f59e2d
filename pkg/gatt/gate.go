package gatt

import (
	"context"
	"sync"
)

// ReadinessGate is the single-permit handoff that admits driver calls.
//
// It is not a mutual-exclusion lock: the serializer acquires the permit
// before issuing a driver call, but the permit is released by the event
// delivery path when the terminal callback for that call arrives. It is a
// producer/consumer signal. Invariant: at most one driver call is
// outstanding while the permit is held.
type ReadinessGate struct {
	free chan struct{}
	done chan struct{}
	once sync.Once
}

// NewReadinessGate creates a gate with its single permit available.
func NewReadinessGate() *ReadinessGate {
	g := &ReadinessGate{
		free: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	g.free <- struct{}{}
	return g
}

// Acquire takes the permit, blocking until it is free, the context is
// canceled, or the gate is closed.
func (g *ReadinessGate) Acquire(ctx context.Context) error {
	select {
	case <-g.free:
		return nil
	case <-g.done:
		return &ClosedError{}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns the permit. Releasing an already-free gate is a no-op, so
// the event path may call it unconditionally for every terminal callback.
func (g *ReadinessGate) Release() {
	select {
	case g.free <- struct{}{}:
	default:
	}
}

// Close wakes every blocked Acquire with a closed failure. Idempotent.
func (g *ReadinessGate) Close() {
	g.once.Do(func() { close(g.done) })
}
