// Package goble adapts a go-ble client to the gatt.Driver contract: the
// library's synchronous attribute calls are run off the issuing goroutine
// and reported back through the event sink as asynchronous completions,
// which is the shape the operation engine expects from a platform driver.
package goble

import (
	"context"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/groutine"
	"github.com/srg/gattq/pkg/gatt"
)

// DefaultConnectTimeout bounds the dial phase when no timeout is given.
const DefaultConnectTimeout = 30 * time.Second

// statusFailure is the generic GATT_ERROR status for platform call failures.
const statusFailure gatt.Status = 0x85

// DeviceFactory creates ble.Device instances (can be overridden in tests).
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

// Driver dials one peripheral by address and hands out a gatt.Handle over
// the resulting go-ble client.
type Driver struct {
	address        string
	connectTimeout time.Duration
	logger         *logrus.Logger
}

// NewDriver creates a driver for one peripheral address.
func NewDriver(address string, connectTimeout time.Duration, logger *logrus.Logger) *Driver {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Driver{address: address, connectTimeout: connectTimeout, logger: logger}
}

// Connect implements gatt.Driver. It dials the peripheral, discovers its
// profile for attribute-handle lookups, and starts reporting state
// transitions to the sink. A failed dial returns a nil handle.
func (d *Driver) Connect(sink gatt.EventSink) (gatt.Handle, error) {
	dev, err := DeviceFactory()
	if err != nil {
		d.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, err
	}
	ble.SetDefaultDevice(dev)

	sink.StateChanged(gatt.StateConnecting)

	dialCtx, cancel := context.WithTimeout(context.Background(), d.connectTimeout)
	defer cancel()

	d.logger.WithField("address", d.address).Info("Dialing BLE device...")
	client, err := ble.Dial(dialCtx, ble.NewAddr(d.address))
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"address": d.address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		sink.StateChanged(gatt.StateDisconnected)
		return nil, err
	}

	// Discover once up front; Issue resolves characteristic and descriptor
	// handles against this profile.
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		d.logger.WithField("error", err).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			d.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection after discovery failure")
		}
		sink.StateChanged(gatt.StateDisconnected)
		return nil, err
	}

	h := &handle{
		client:  client,
		profile: profile,
		sink:    sink,
		logger:  d.logger,
	}

	sink.StateChanged(gatt.StateConnected)

	// go-ble's darwin client exposes a Disconnected channel; surface it as a
	// state transition so in-flight waits fail deterministically.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "goble-link-monitor", func(context.Context) {
			<-dc.Disconnected()
			d.logger.Warn("Platform reported disconnection")
			sink.StateChanged(gatt.StateDisconnected)
		})
	} else {
		d.logger.Debug("Client does not expose a Disconnected() channel")
	}

	d.logger.WithFields(logrus.Fields{
		"address":  d.address,
		"services": len(profile.Services),
	}).Info("BLE device connected")
	return h, nil
}

// handle is the gatt.Handle over one live go-ble client.
type handle struct {
	client  ble.Client
	profile *ble.Profile
	sink    gatt.EventSink
	logger  *logrus.Logger

	closeOnce sync.Once
	closeErr  error
}

// Issue implements gatt.Handle. The acknowledgment is false when the request
// addresses an attribute the profile does not contain; otherwise the
// blocking go-ble call runs on its own goroutine and its result is delivered
// to the sink as a completion event.
func (h *handle) Issue(req *gatt.Request) bool {
	token := req.Token
	var run func() gatt.CompletionEvent

	switch req.Kind {
	case gatt.OpDiscoverServices:
		run = func() gatt.CompletionEvent { return h.runDiscovery(token) }

	case gatt.OpReadCharacteristic:
		char := h.findCharacteristic(req.Characteristic)
		if char == nil {
			return false
		}
		id := req.Characteristic
		run = func() gatt.CompletionEvent {
			value, err := h.client.ReadCharacteristic(char)
			return gatt.CompletionEvent{
				Kind:           gatt.OpReadCharacteristic,
				Token:          token,
				Characteristic: id,
				Payload:        value,
				Status:         statusOf(err),
			}
		}

	case gatt.OpWriteCharacteristic:
		char := h.findCharacteristic(req.Characteristic)
		if char == nil {
			return false
		}
		id, payload := req.Characteristic, req.Payload
		noRsp := req.WriteType == gatt.WriteWithoutResponse
		run = func() gatt.CompletionEvent {
			err := h.client.WriteCharacteristic(char, payload, noRsp)
			return gatt.CompletionEvent{
				Kind:           gatt.OpWriteCharacteristic,
				Token:          token,
				Characteristic: id,
				Status:         statusOf(err),
			}
		}

	case gatt.OpWriteDescriptor:
		desc := h.findDescriptor(req.Descriptor)
		if desc == nil {
			return false
		}
		id, payload := req.Descriptor, req.Payload
		run = func() gatt.CompletionEvent {
			err := h.client.WriteDescriptor(desc, payload)
			return gatt.CompletionEvent{
				Kind:       gatt.OpWriteDescriptor,
				Token:      token,
				Descriptor: id,
				Status:     statusOf(err),
			}
		}

	case gatt.OpRequestMTU:
		mtu := req.MTU
		run = func() gatt.CompletionEvent {
			granted, err := h.client.ExchangeMTU(mtu)
			return gatt.CompletionEvent{
				Kind:   gatt.OpRequestMTU,
				Token:  token,
				MTU:    granted,
				Status: statusOf(err),
			}
		}

	case gatt.OpReadRSSI:
		run = func() gatt.CompletionEvent {
			return gatt.CompletionEvent{
				Kind:   gatt.OpReadRSSI,
				Token:  token,
				RSSI:   h.client.ReadRSSI(),
				Status: gatt.StatusSuccess,
			}
		}

	default:
		h.logger.WithField("kind", req.Kind).Error("Unknown operation kind")
		return false
	}

	groutine.Go(context.Background(), "goble-op", func(context.Context) {
		h.sink.OperationCompleted(run())
	})
	return true
}

func (h *handle) runDiscovery(token uint64) gatt.CompletionEvent {
	services := make([]gatt.Service, 0, len(h.profile.Services))
	for _, svc := range h.profile.Services {
		s := gatt.Service{UUID: gatt.NormalizeUUID(svc.UUID.String())}
		for _, char := range svc.Characteristics {
			c := gatt.Characteristic{
				UUID:       gatt.NormalizeUUID(char.UUID.String()),
				Properties: gatt.Property(char.Property),
			}
			for _, desc := range char.Descriptors {
				c.Descriptors = append(c.Descriptors, gatt.Descriptor{
					UUID: gatt.NormalizeUUID(desc.UUID.String()),
				})
			}
			s.Characteristics = append(s.Characteristics, c)
		}
		services = append(services, s)
	}
	return gatt.CompletionEvent{
		Kind:     gatt.OpDiscoverServices,
		Token:    token,
		Services: services,
		Status:   gatt.StatusSuccess,
	}
}

// Connect implements gatt.Handle. go-ble cannot re-dial through an existing
// client, so link reconnect requests are rejected.
func (h *handle) Connect() bool {
	h.logger.Warn("Reconnect through a live go-ble handle is not supported")
	return false
}

// Disconnect implements gatt.Handle.
func (h *handle) Disconnect() bool {
	h.sink.StateChanged(gatt.StateDisconnecting)
	if err := h.client.CancelConnection(); err != nil {
		h.logger.WithField("error", err).Warn("CancelConnection reported error")
	}
	h.sink.StateChanged(gatt.StateDisconnected)
	return true
}

// SetNotificationEnabled implements gatt.Handle. Subscribe uses notify mode;
// unsubscribe tries both notify and indicate, succeeding if either does.
func (h *handle) SetNotificationEnabled(id gatt.CharacteristicID, enable bool) bool {
	char := h.findCharacteristic(id)
	if char == nil {
		return false
	}

	if enable {
		err := h.client.Subscribe(char, false, func(data []byte) {
			h.sink.Notification(gatt.Notification{Characteristic: id, Payload: data})
		})
		if err != nil {
			h.logger.WithFields(logrus.Fields{
				"characteristic": id,
				"error":          err,
			}).Error("Failed to subscribe to characteristic notifications")
			return false
		}
		return true
	}

	err1 := h.client.Unsubscribe(char, false) // notify
	err2 := h.client.Unsubscribe(char, true)  // indicate
	if err1 != nil && err2 != nil {
		h.logger.WithFields(logrus.Fields{
			"characteristic": id,
			"notifyErr":      err1,
			"indicateErr":    err2,
		}).Error("Failed to unsubscribe from characteristic notifications")
		return false
	}
	return true
}

// Close implements gatt.Handle. Idempotent.
func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.client.CancelConnection()
	})
	return h.closeErr
}

func (h *handle) findCharacteristic(id gatt.CharacteristicID) *ble.Characteristic {
	for _, svc := range h.profile.Services {
		if gatt.NormalizeUUID(svc.UUID.String()) != id.Service {
			continue
		}
		for _, char := range svc.Characteristics {
			if gatt.NormalizeUUID(char.UUID.String()) == id.UUID {
				return char
			}
		}
	}
	return nil
}

func (h *handle) findDescriptor(id gatt.DescriptorID) *ble.Descriptor {
	char := h.findCharacteristic(id.Characteristic)
	if char == nil {
		return nil
	}
	for _, desc := range char.Descriptors {
		if gatt.NormalizeUUID(desc.UUID.String()) == id.UUID {
			return desc
		}
	}
	return nil
}

func statusOf(err error) gatt.Status {
	if err != nil {
		return statusFailure
	}
	return gatt.StatusSuccess
}
