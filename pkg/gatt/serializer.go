package gatt

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/groutine"
)

// submissionBuffer sizes the serializer's request queue. Submissions beyond
// the buffer block in Submit until the worker catches up, preserving order.
const submissionBuffer = 16

// OperationSerializer enforces global single-flight ordering of driver calls
// for one connection, independent of how many caller goroutines submit
// concurrently. A single worker goroutine owns the driver handle: it waits
// for the readiness gate, issues the call, and hands the driver's immediate
// acknowledgment back through the request's ack slot.
//
// The gate is released by the EventHub when the terminal callback arrives,
// except for calls the driver rejected outright, which produce no callback
// and are released here.
type OperationSerializer struct {
	handle   Handle
	hub      *EventHub
	logger   *logrus.Logger
	requests chan *Request

	closed chan struct{}
	once   sync.Once
}

// NewOperationSerializer creates the serializer and starts its worker.
func NewOperationSerializer(handle Handle, hub *EventHub, logger *logrus.Logger) *OperationSerializer {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	s := &OperationSerializer{
		handle:   handle,
		hub:      hub,
		logger:   logger,
		requests: make(chan *Request, submissionBuffer),
		closed:   make(chan struct{}),
	}
	groutine.Go(context.Background(), "gatt-op-serializer", s.run)
	return s
}

// Submit enqueues a request and returns the driver's immediate boolean
// acknowledgment. Requests are serviced strictly in submission order.
// Canceling ctx abandons the wait but does not retract a driver call that
// has already been issued; the gate, not the caller, governs admission of
// the next call.
func (s *OperationSerializer) Submit(ctx context.Context, req *Request) (bool, error) {
	if req.ack == nil {
		req.ack = make(chan bool, 1)
	}
	if req.done == nil {
		req.done = make(chan CompletionEvent, 1)
	}

	select {
	case s.requests <- req:
	case <-s.closed:
		return false, &ClosedError{Cause: s.hub.Cause()}
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case ok := <-req.ack:
		return ok, nil
	case <-s.closed:
		return false, &ClosedError{Cause: s.hub.Cause()}
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *OperationSerializer) run(ctx context.Context) {
	gate := s.hub.Gate()
	for {
		select {
		case <-s.closed:
			return
		case req := <-s.requests:
			if err := gate.Acquire(ctx); err != nil {
				// Gate closed underneath us. No ack: the submitter must
				// observe the serializer close, not a driver rejection.
				s.Close()
				return
			}

			s.hub.Expect(req.Kind, req.Token, req.done)
			ok := s.handle.Issue(req)

			s.logger.WithFields(logrus.Fields{
				"kind":  req.Kind,
				"token": req.Token,
				"ack":   ok,
			}).Debug("Driver call issued")

			// ack is buffered; a caller that walked away never blocks us.
			req.ack <- ok

			if !ok {
				// A rejected call produces no completion callback, so the
				// event path will never free the gate for it.
				gate.Release()
			}
		}
	}
}

// Close releases the worker; in-flight and subsequent submissions fail as
// closed. Idempotent.
func (s *OperationSerializer) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.logger.Debug("Operation serializer closed")
	})
}
