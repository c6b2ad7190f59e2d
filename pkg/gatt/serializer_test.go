package gatt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubHandle is a minimal in-package Handle for serializer tests. Issued
// requests are recorded; completions are emitted by the test through the hub.
type stubHandle struct {
	mu     sync.Mutex
	issued []*Request
	reject map[uint64]bool // token -> reject the call
}

func newStubHandle() *stubHandle {
	return &stubHandle{reject: make(map[uint64]bool)}
}

func (s *stubHandle) Issue(req *Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued = append(s.issued, req)
	return !s.reject[req.Token]
}

func (s *stubHandle) issuedTokens() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := make([]uint64, len(s.issued))
	for i, req := range s.issued {
		tokens[i] = req.Token
	}
	return tokens
}

func (s *stubHandle) issuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.issued)
}

func (s *stubHandle) Connect() bool                                    { return false }
func (s *stubHandle) Disconnect() bool                                 { return true }
func (s *stubHandle) SetNotificationEnabled(CharacteristicID, bool) bool { return true }
func (s *stubHandle) Close() error                                     { return nil }

func submitRead(t *testing.T, s *OperationSerializer, token uint64) *Request {
	t.Helper()
	req := newRequest(OpReadCharacteristic)
	req.Token = token
	ok, err := s.Submit(context.Background(), req)
	require.NoError(t, err)
	require.True(t, ok)
	return req
}

func TestSerializer_IssuesInSubmissionOrder(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)
	handle := newStubHandle()
	s := NewOperationSerializer(handle, hub, quietLogger())
	defer s.Close()

	const n = 5
	var wg sync.WaitGroup
	for i := uint64(1); i <= n; i++ {
		req := newRequest(OpReadCharacteristic)
		req.Token = i
		select {
		case s.requests <- req:
		case <-time.After(time.Second):
			t.Fatal("enqueue stalled")
		}
		wg.Add(1)
		go func(req *Request) {
			defer wg.Done()
			<-req.ack
		}(req)
	}

	// Complete each call as it becomes outstanding so the next can be issued.
	for i := 0; i < n; i++ {
		require.Eventually(t, func() bool {
			return handle.issuedCount() == i+1
		}, time.Second, time.Millisecond)
		hub.OperationCompleted(CompletionEvent{Kind: OpReadCharacteristic, Status: StatusSuccess})
	}
	wg.Wait()

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, handle.issuedTokens(),
		"requests MUST reach the driver in submission order")
}

func TestSerializer_SingleFlight(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)
	handle := newStubHandle()
	s := NewOperationSerializer(handle, hub, quietLogger())
	defer s.Close()

	first := submitRead(t, s, 1)
	_ = first

	// Second submission is acked only after the first completes: until then
	// the worker is parked on the gate and must not issue.
	second := newRequest(OpRequestMTU)
	second.Token = 2
	acked := make(chan bool, 1)
	go func() {
		ok, err := s.Submit(context.Background(), second)
		assert.NoError(t, err)
		acked <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, handle.issuedCount(), "second call MUST NOT be issued while the first is outstanding")

	hub.OperationCompleted(CompletionEvent{Kind: OpReadCharacteristic, Status: StatusSuccess})

	select {
	case ok := <-acked:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("second submission never acked after first completion")
	}
	assert.Equal(t, 2, handle.issuedCount())
}

func TestSerializer_RejectedCallFreesGateImmediately(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)
	handle := newStubHandle()
	handle.reject[1] = true
	s := NewOperationSerializer(handle, hub, quietLogger())
	defer s.Close()

	req := newRequest(OpWriteCharacteristic)
	req.Token = 1
	ok, err := s.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, ok, "driver rejection MUST surface through the ack")

	// No completion will arrive for a rejected call; the next submission
	// must proceed without one.
	next := submitRead(t, s, 2)
	_ = next
	assert.Equal(t, 2, handle.issuedCount())
}

func TestSerializer_CloseFailsInFlightAndSubsequentSubmissions(t *testing.T) {
	hub := NewEventHub(quietLogger())
	handle := newStubHandle()
	s := NewOperationSerializer(handle, hub, quietLogger())

	// Occupy the gate so the next submission waits inside the worker.
	submitRead(t, s, 1)

	waiting := newRequest(OpReadRSSI)
	waiting.Token = 2
	errc := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), waiting)
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Close(assert.AnError)
	s.Close()

	select {
	case err := <-errc:
		var closed *ClosedError
		require.ErrorAs(t, err, &closed)
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, closed.Cause, assert.AnError, "close MUST carry the shutdown cause")
	case <-time.After(time.Second):
		t.Fatal("in-flight submission not released by close")
	}

	_, err := s.Submit(context.Background(), newRequest(OpReadCharacteristic))
	assert.ErrorIs(t, err, ErrClosed, "submissions after close MUST fail immediately")
}

func TestSerializer_SubmitHonorsContext(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Close(nil)
	handle := newStubHandle()
	s := NewOperationSerializer(handle, hub, quietLogger())
	defer s.Close()

	// Gate held by the first call; the second waiter cancels its wait.
	submitRead(t, s, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	req := newRequest(OpDiscoverServices)
	req.Token = 2
	_, err := s.Submit(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)

	// The abandoned request is still serviced once the gate frees; the
	// buffered ack slot absorbs the result.
	hub.OperationCompleted(CompletionEvent{Kind: OpReadCharacteristic, Status: StatusSuccess})
	require.Eventually(t, func() bool {
		return handle.issuedCount() == 2
	}, time.Second, time.Millisecond, "cancellation abandons the wait, not the queued call")
}
