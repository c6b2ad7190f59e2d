package gatt

import (
	"fmt"
	"strings"
)

// ----------------------------
// Connection State
// ----------------------------

// ConnectionState represents the reported state of the peripheral link.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsDisconnectish reports whether the state terminates an in-flight wait.
func (s ConnectionState) IsDisconnectish() bool {
	return s == StateDisconnecting || s == StateDisconnected
}

// ----------------------------
// Operation Kinds
// ----------------------------

// OperationKind identifies a class of attribute-protocol requests. At most one
// operation of any kind is outstanding at a time (single-flight), which is
// what makes implicit completion correlation sound.
type OperationKind int

const (
	OpDiscoverServices OperationKind = iota
	OpReadCharacteristic
	OpWriteCharacteristic
	OpWriteDescriptor
	OpRequestMTU
	OpReadRSSI

	numOperationKinds // sentinel, keep last
)

func (k OperationKind) String() string {
	switch k {
	case OpDiscoverServices:
		return "discover-services"
	case OpReadCharacteristic:
		return "read-characteristic"
	case OpWriteCharacteristic:
		return "write-characteristic"
	case OpWriteDescriptor:
		return "write-descriptor"
	case OpRequestMTU:
		return "request-mtu"
	case OpReadRSSI:
		return "read-rssi"
	default:
		return fmt.Sprintf("operation(%d)", int(k))
	}
}

// ----------------------------
// Write Type
// ----------------------------

// WriteType selects whether a characteristic write expects a peripheral
// acknowledgment.
type WriteType int

const (
	WriteWithResponse WriteType = iota
	WriteWithoutResponse
)

func (t WriteType) String() string {
	if t == WriteWithoutResponse {
		return "write-without-response"
	}
	return "write-with-response"
}

// ----------------------------
// Attribute Identity
// ----------------------------

// NormalizeUUID converts a UUID string to the canonical lookup form
// (lowercase, no dashes). Handles dashed and already-normalized input.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}

// CharacteristicID addresses a characteristic within a service. UUIDs are
// stored normalized.
type CharacteristicID struct {
	Service string
	UUID    string
}

// CharID builds a normalized CharacteristicID.
func CharID(service, uuid string) CharacteristicID {
	return CharacteristicID{Service: NormalizeUUID(service), UUID: NormalizeUUID(uuid)}
}

func (id CharacteristicID) String() string {
	return id.Service + "/" + id.UUID
}

// DescriptorID addresses a descriptor within a characteristic.
type DescriptorID struct {
	Characteristic CharacteristicID
	UUID           string
}

// DescID builds a normalized DescriptorID.
func DescID(service, char, uuid string) DescriptorID {
	return DescriptorID{Characteristic: CharID(service, char), UUID: NormalizeUUID(uuid)}
}

func (id DescriptorID) String() string {
	return id.Characteristic.String() + "/" + id.UUID
}

// ----------------------------
// Service Tree
// ----------------------------

// Property is the GATT characteristic property bitmask.
type Property int

const (
	PropBroadcast Property = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropAuthSignedWrites
	PropExtended
)

func (p Property) String() string {
	names := []struct {
		bit  Property
		name string
	}{
		{PropBroadcast, "broadcast"},
		{PropRead, "read"},
		{PropWriteWithoutResponse, "write-without-response"},
		{PropWrite, "write"},
		{PropNotify, "notify"},
		{PropIndicate, "indicate"},
		{PropAuthSignedWrites, "auth-signed-writes"},
		{PropExtended, "extended"},
	}
	var parts []string
	for _, n := range names {
		if p&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// Descriptor describes a discovered descriptor.
type Descriptor struct {
	UUID string
}

// Characteristic describes a discovered characteristic.
type Characteristic struct {
	UUID        string
	Properties  Property
	Descriptors []Descriptor
}

// Service describes a discovered service and its characteristics.
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// ----------------------------
// Status
// ----------------------------

// Status is the attribute-protocol status code the driver reports with a
// completion. Zero means success; a non-zero status is data, not a transport
// error, and is returned to the caller as part of the result.
type Status int

// StatusSuccess is the zero GATT status.
const StatusSuccess Status = 0

// Ok reports whether the status is the success code.
func (s Status) Ok() bool { return s == StatusSuccess }

func (s Status) String() string {
	if s.Ok() {
		return "success"
	}
	return fmt.Sprintf("0x%02x", int(s))
}

// ----------------------------
// Requests and Events
// ----------------------------

// Request is a tagged operation request, one kind per attribute operation.
// The serializer consumes it exactly once and fulfills the acknowledgment
// slot with the driver's immediate boolean return.
type Request struct {
	Kind           OperationKind
	Token          uint64
	Characteristic CharacteristicID
	Descriptor     DescriptorID
	Payload        []byte
	WriteType      WriteType
	MTU            int

	// ack is the single-write/single-read acknowledgment slot. Buffered so
	// the serializer never blocks on a caller that walked away.
	ack chan bool

	// done is the single-use completion delivery slot the EventHub routes
	// the correlated callback to. Buffered so a caller that abandoned its
	// wait never blocks the event path.
	done chan CompletionEvent
}

func newRequest(kind OperationKind) *Request {
	return &Request{
		Kind: kind,
		ack:  make(chan bool, 1),
		done: make(chan CompletionEvent, 1),
	}
}

// CompletionEvent is the asynchronous result of a driver call. Drivers that
// see the full Request echo its Token here; for a driver that cannot, the
// EventHub stamps Token from the serializer's most recently issued request
// of the same kind. A mismatching echoed token fails the waiting call.
type CompletionEvent struct {
	Kind           OperationKind
	Token          uint64
	Characteristic CharacteristicID
	Descriptor     DescriptorID
	Payload        []byte
	Status         Status
	MTU            int
	RSSI           int
	Services       []Service
}

// Notification is an unsolicited characteristic-value-changed event. It is
// independent of the request/response cycle and of the readiness gate.
type Notification struct {
	Characteristic CharacteristicID
	Payload        []byte
}
