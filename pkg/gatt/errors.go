package gatt

import (
	"errors"
	"fmt"
)

// Sentinel errors for the operation failure taxonomy. Typed wrappers below
// carry causes while remaining matchable with errors.Is.
var (
	// ErrDriverRejected indicates the driver's immediate acknowledgment for
	// an issued call was false. No completion is ever awaited for such a call.
	ErrDriverRejected = errors.New("driver rejected request")

	// ErrConnectionLost indicates a disconnect transition was observed while
	// awaiting the completion of an already-acknowledged operation.
	ErrConnectionLost = errors.New("connection lost")

	// ErrClosed indicates the client (or its event queues) was closed while
	// an operation was in flight, or an operation was attempted after close.
	ErrClosed = errors.New("client closed")

	// ErrConnectCanceled indicates the initial connect attempt was canceled
	// before the Connected state was observed.
	ErrConnectCanceled = errors.New("connect canceled")

	// ErrTransportRejected indicates the driver's connect entry point
	// returned no handle.
	ErrTransportRejected = errors.New("transport rejected connection")

	// ErrCorrelation indicates a completion event's token did not match the
	// outstanding request. This converts a silent misattribution into a loud
	// failure; it only fires if the single-flight invariant is violated.
	ErrCorrelation = errors.New("completion correlation mismatch")
)

// ClosedError wraps the cause the client was closed with. It matches
// errors.Is(err, ErrClosed).
type ClosedError struct {
	Cause error
}

func (e *ClosedError) Error() string {
	if e.Cause == nil {
		return ErrClosed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrClosed.Error(), e.Cause)
}

func (e *ClosedError) Unwrap() error { return e.Cause }

// Is lets errors.Is match both the sentinel and other ClosedError values.
func (e *ClosedError) Is(target error) bool {
	if target == ErrClosed {
		return true
	}
	_, ok := target.(*ClosedError)
	return ok
}

// CanceledError wraps the cancellation cause of a connect attempt. It matches
// errors.Is(err, ErrConnectCanceled).
type CanceledError struct {
	Cause error
}

func (e *CanceledError) Error() string {
	if e.Cause == nil {
		return ErrConnectCanceled.Error()
	}
	return fmt.Sprintf("%s: %v", ErrConnectCanceled.Error(), e.Cause)
}

func (e *CanceledError) Unwrap() error { return e.Cause }

func (e *CanceledError) Is(target error) bool {
	if target == ErrConnectCanceled {
		return true
	}
	_, ok := target.(*CanceledError)
	return ok
}

// IsClosed reports whether err indicates the client was closed.
func IsClosed(err error) bool { return errors.Is(err, ErrClosed) }
