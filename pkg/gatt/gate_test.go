package gatt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acquireWithTimeout(g *ReadinessGate, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return g.Acquire(ctx)
}

func TestReadinessGate_StartsFree(t *testing.T) {
	g := NewReadinessGate()

	require.NoError(t, acquireWithTimeout(g, time.Second), "fresh gate MUST be acquirable")
}

func TestReadinessGate_SinglePermit(t *testing.T) {
	g := NewReadinessGate()

	require.NoError(t, acquireWithTimeout(g, time.Second))

	err := acquireWithTimeout(g, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "held gate MUST block a second acquire")
}

func TestReadinessGate_ReleaseIdempotent(t *testing.T) {
	g := NewReadinessGate()

	// Releasing a free gate is a no-op; it must not mint extra permits.
	g.Release()
	g.Release()

	require.NoError(t, acquireWithTimeout(g, time.Second))
	err := acquireWithTimeout(g, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "double release MUST NOT create a second permit")
}

func TestReadinessGate_ReleasedByAnotherGoroutine(t *testing.T) {
	g := NewReadinessGate()
	require.NoError(t, acquireWithTimeout(g, time.Second))

	// The event-delivery path releases the permit, not the acquiring task.
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Release()
	}()

	assert.NoError(t, acquireWithTimeout(g, time.Second), "release from another goroutine MUST admit the waiter")
}

func TestReadinessGate_CloseWakesWaiters(t *testing.T) {
	g := NewReadinessGate()
	require.NoError(t, acquireWithTimeout(g, time.Second))

	done := make(chan error, 1)
	go func() {
		done <- g.Acquire(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	g.Close()
	g.Close() // idempotent

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed, "blocked acquire MUST fail as closed")
	case <-time.After(time.Second):
		t.Fatal("blocked acquire was not woken by Close")
	}
}
