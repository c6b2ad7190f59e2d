package main

import (
	"errors"
	"fmt"

	"github.com/srg/gattq/pkg/gatt"
)

// FormatUserError maps engine errors to actionable, user-facing messages.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, gatt.ErrTransportRejected):
		return "could not reach the device - check the address and make sure Bluetooth is enabled"
	case errors.Is(err, gatt.ErrDriverRejected):
		return "the device driver rejected the request - the attribute may not exist or may not support this operation"
	case errors.Is(err, gatt.ErrConnectionLost):
		return "connection to the device was lost mid-operation - move closer and retry"
	case errors.Is(err, gatt.ErrConnectCanceled):
		return "connect attempt was canceled"
	case errors.Is(err, gatt.ErrClosed):
		return "the client was closed before the operation finished"
	default:
		return fmt.Sprintf("%v", err)
	}
}
