package gatt

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Dial orchestrates the initial connect attempt.
//
// It registers a fresh EventHub with the driver as the event sink, invokes
// the driver's connect entry point, and suspends until the Connected state
// is observed:
//
//   - nil handle from the driver fails with ErrTransportRejected;
//   - cancellation while waiting closes the just-created client and fails
//     with a CanceledError carrying the cancellation cause;
//   - a terminal state other than Connected closes the client and fails
//     with ErrConnectionLost;
//   - otherwise the live client is returned.
func Dial(ctx context.Context, driver Driver, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}

	hub := NewEventHub(logger)

	handle, err := driver.Connect(hub)
	if handle == nil {
		hub.Close(ErrTransportRejected)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransportRejected, err)
		}
		return nil, ErrTransportRejected
	}

	client := NewClient(handle, hub, logger)

	reached, err := client.monitor.AwaitConnected(ctx)
	if err != nil {
		// Canceled while waiting: release the worker and driver handle we
		// just created, then report the cancellation cause.
		cause := context.Cause(ctx)
		logger.WithField("cause", cause).Warn("Connect attempt canceled")
		client.CloseWithCause(cause)
		return nil, &CanceledError{Cause: cause}
	}
	if !reached {
		logger.Warn("Connect attempt ended without reaching connected state")
		client.Close()
		return nil, ErrConnectionLost
	}

	logger.Info("GATT client connected")
	return client, nil
}
