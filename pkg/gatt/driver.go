package gatt

// Driver is the transport entry point. Connect registers the event sink and
// attempts the platform connection; a nil Handle means the transport rejected
// the attempt (the returned error, if any, carries the platform detail).
type Driver interface {
	Connect(sink EventSink) (Handle, error)
}

// Handle is one live driver connection. It is exclusively owned by the
// OperationSerializer once the client is constructed: only the serializer
// issues attribute calls against it.
//
// Issue returns the driver's immediate boolean acknowledgment; the actual
// result arrives later through the EventSink. Connect and Disconnect request
// link-state transitions and are not attribute operations, so they bypass
// the readiness gate entirely. SetNotificationEnabled is a synchronous
// pass-through with no completion event.
type Handle interface {
	Issue(req *Request) bool
	Connect() bool
	Disconnect() bool
	SetNotificationEnabled(id CharacteristicID, enable bool) bool
	Close() error
}

// EventSink receives every asynchronous event the driver emits for one
// connection. The EventHub implements it and is registered with the driver
// at connect time.
type EventSink interface {
	OperationCompleted(ev CompletionEvent)
	StateChanged(state ConnectionState)
	Notification(n Notification)
}
