// Package testutils holds test doubles shared across the module's test
// suites, most importantly a scriptable fake transport driver.
package testutils

import (
	"sync"
	"time"

	"github.com/srg/gattq/pkg/gatt"
)

// IssuedCall records one Issue invocation observed by the fake driver.
type IssuedCall struct {
	Kind           gatt.OperationKind
	Token          uint64
	Characteristic gatt.CharacteristicID
	Descriptor     gatt.DescriptorID
	Payload        []byte
	WriteType      gatt.WriteType
	MTU            int
	At             time.Time
}

// NotifyCall records one SetNotificationEnabled invocation.
type NotifyCall struct {
	Characteristic gatt.CharacteristicID
	Enable         bool
}

// FakeDriver is a scriptable transport driver and handle in one. It records
// every call, tracks how many issued-and-uncompleted operations exist at any
// instant (for single-flight assertions), and lets tests emit completions,
// state transitions, and notifications at will.
type FakeDriver struct {
	mu   sync.Mutex
	sink gatt.EventSink

	// Scripting knobs. Zero values give a well-behaved driver that accepts
	// the connection, acks every call, and reports Connected immediately.
	RejectConnect bool  // connect entry point returns no handle
	ConnectErr    error // optional detail returned alongside the nil handle
	HoldConnected bool  // suppress the automatic Connected transition
	RejectLink    bool  // Handle.Connect()/Disconnect() return false
	RejectNotify  bool  // SetNotificationEnabled returns false

	acks map[gatt.OperationKind]bool

	issued         []IssuedCall
	notifyCalls    []NotifyCall
	outstanding    int
	maxOutstanding int
	inflightToken  uint64

	connectRequests    int
	disconnectRequests int
	closeCount         int
}

// NewFakeDriver creates a fake that acks every operation kind.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{acks: make(map[gatt.OperationKind]bool)}
}

// SetAck scripts the immediate acknowledgment for one operation kind.
func (d *FakeDriver) SetAck(kind gatt.OperationKind, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acks[kind] = ok
}

// Connect implements gatt.Driver.
func (d *FakeDriver) Connect(sink gatt.EventSink) (gatt.Handle, error) {
	d.mu.Lock()
	if d.RejectConnect {
		err := d.ConnectErr
		d.mu.Unlock()
		return nil, err
	}
	d.sink = sink
	hold := d.HoldConnected
	d.mu.Unlock()

	if !hold {
		sink.StateChanged(gatt.StateConnecting)
		sink.StateChanged(gatt.StateConnected)
	}
	return &FakeHandle{d: d}, nil
}

// FakeHandle is the gatt.Handle the fake driver hands out; it delegates
// every call back to the driver's recorders.
type FakeHandle struct {
	d *FakeDriver
}

// Issue implements gatt.Handle.
func (h *FakeHandle) Issue(req *gatt.Request) bool { return h.d.issue(req) }

// Connect implements gatt.Handle.
func (h *FakeHandle) Connect() bool {
	return h.d.linkRequest(&h.d.connectRequests, gatt.StateConnected)
}

// Disconnect implements gatt.Handle.
func (h *FakeHandle) Disconnect() bool {
	return h.d.linkRequest(&h.d.disconnectRequests, gatt.StateDisconnected)
}

// SetNotificationEnabled implements gatt.Handle.
func (h *FakeHandle) SetNotificationEnabled(id gatt.CharacteristicID, enable bool) bool {
	return h.d.setNotificationEnabled(id, enable)
}

// Close implements gatt.Handle.
func (h *FakeHandle) Close() error { return h.d.close() }

// issue records the call and applies the scripted ack, defaulting to true.
func (d *FakeDriver) issue(req *gatt.Request) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.issued = append(d.issued, IssuedCall{
		Kind:           req.Kind,
		Token:          req.Token,
		Characteristic: req.Characteristic,
		Descriptor:     req.Descriptor,
		Payload:        append([]byte(nil), req.Payload...),
		WriteType:      req.WriteType,
		MTU:            req.MTU,
		At:             time.Now(),
	})

	ok, scripted := d.acks[req.Kind]
	if !scripted {
		ok = true
	}
	if ok {
		d.outstanding++
		if d.outstanding > d.maxOutstanding {
			d.maxOutstanding = d.outstanding
		}
		d.inflightToken = req.Token
	}
	return ok
}

func (d *FakeDriver) linkRequest(counter *int, target gatt.ConnectionState) bool {
	d.mu.Lock()
	*counter++
	sink := d.sink
	reject := d.RejectLink
	d.mu.Unlock()

	if reject {
		return false
	}
	if sink != nil {
		if target == gatt.StateDisconnected {
			sink.StateChanged(gatt.StateDisconnecting)
		}
		sink.StateChanged(target)
	}
	return true
}

func (d *FakeDriver) setNotificationEnabled(id gatt.CharacteristicID, enable bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifyCalls = append(d.notifyCalls, NotifyCall{Characteristic: id, Enable: enable})
	return !d.RejectNotify
}

func (d *FakeDriver) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCount++
	return nil
}

// ----------------------------
// Event emission
// ----------------------------

// complete emits a completion echoing the token of the call in flight, as a
// token-aware platform driver would.
func (d *FakeDriver) complete(ev gatt.CompletionEvent) {
	d.mu.Lock()
	if d.outstanding > 0 {
		d.outstanding--
	}
	ev.Token = d.inflightToken
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink.OperationCompleted(ev)
	}
}

// CompleteDiscovery emits a discover-services completion.
func (d *FakeDriver) CompleteDiscovery(services []gatt.Service, status gatt.Status) {
	d.complete(gatt.CompletionEvent{Kind: gatt.OpDiscoverServices, Services: services, Status: status})
}

// CompleteRead emits a characteristic-read completion.
func (d *FakeDriver) CompleteRead(id gatt.CharacteristicID, value []byte, status gatt.Status) {
	d.complete(gatt.CompletionEvent{Kind: gatt.OpReadCharacteristic, Characteristic: id, Payload: value, Status: status})
}

// CompleteWrite emits a characteristic-write completion.
func (d *FakeDriver) CompleteWrite(id gatt.CharacteristicID, status gatt.Status) {
	d.complete(gatt.CompletionEvent{Kind: gatt.OpWriteCharacteristic, Characteristic: id, Status: status})
}

// CompleteDescriptorWrite emits a descriptor-write completion.
func (d *FakeDriver) CompleteDescriptorWrite(id gatt.DescriptorID, status gatt.Status) {
	d.complete(gatt.CompletionEvent{Kind: gatt.OpWriteDescriptor, Descriptor: id, Status: status})
}

// CompleteMTU emits a request-mtu completion.
func (d *FakeDriver) CompleteMTU(mtu int, status gatt.Status) {
	d.complete(gatt.CompletionEvent{Kind: gatt.OpRequestMTU, MTU: mtu, Status: status})
}

// CompleteRSSI emits a read-rssi completion.
func (d *FakeDriver) CompleteRSSI(rssi int, status gatt.Status) {
	d.complete(gatt.CompletionEvent{Kind: gatt.OpReadRSSI, RSSI: rssi, Status: status})
}

// EmitState publishes a connection-state transition.
func (d *FakeDriver) EmitState(state gatt.ConnectionState) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink.StateChanged(state)
	}
}

// EmitNotification delivers an unsolicited characteristic-change event.
func (d *FakeDriver) EmitNotification(id gatt.CharacteristicID, payload []byte) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink.Notification(gatt.Notification{Characteristic: id, Payload: payload})
	}
}

// ----------------------------
// Inspection
// ----------------------------

// HasSink reports whether a connect attempt registered an event sink.
func (d *FakeDriver) HasSink() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sink != nil
}

// Issued returns a copy of every recorded Issue call.
func (d *FakeDriver) Issued() []IssuedCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]IssuedCall(nil), d.issued...)
}

// Outstanding returns the number of issued-and-uncompleted calls right now.
func (d *FakeDriver) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outstanding
}

// MaxOutstanding returns the highest number of simultaneously outstanding
// calls ever observed. Single-flight means this never exceeds 1.
func (d *FakeDriver) MaxOutstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOutstanding
}

// NotifyCalls returns a copy of every SetNotificationEnabled call.
func (d *FakeDriver) NotifyCalls() []NotifyCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]NotifyCall(nil), d.notifyCalls...)
}

// CloseCount returns how many times the handle was closed.
func (d *FakeDriver) CloseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCount
}

// DisconnectRequests returns how many Disconnect link requests were made.
func (d *FakeDriver) DisconnectRequests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnectRequests
}
