package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattq/pkg/gatt"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address>",
	Short: "Stream characteristic change notifications",
	Long: fmt.Sprintf(`Enables notifications on a characteristic and prints every value change
until the duration elapses or the connection drops.

Examples:
  # Stream Heart Rate Measurement for 30 seconds
  gattq subscribe %s --service 180d --char 2a37 --duration 30s

%s`, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runSubscribe,
}

var (
	subServiceUUID string
	subCharUUID    string
	subHex         bool
	subDuration    time.Duration
)

func init() {
	subscribeCmd.Flags().StringVar(&subServiceUUID, "service", "", "Service UUID (required)")
	subscribeCmd.Flags().StringVar(&subCharUUID, "char", "", "Characteristic UUID (required)")
	subscribeCmd.Flags().BoolVar(&subHex, "hex", false, "Print values as hex strings")
	subscribeCmd.Flags().DurationVar(&subDuration, "duration", 30*time.Second, "How long to stream")
	_ = subscribeCmd.MarkFlagRequired("service")
	_ = subscribeCmd.MarkFlagRequired("char")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	return withClient(cmd, args[0], subDuration+time.Second, func(ctx context.Context, client *gatt.Client, logger *logrus.Logger) error {
		id := gatt.CharID(subServiceUUID, subCharUUID)

		notifications := client.Notifications()
		defer notifications.Cancel()

		states := client.States()
		defer states.Cancel()

		if !client.SetNotificationEnabled(id, true) {
			return fmt.Errorf("could not enable notifications on %s", id)
		}
		defer client.SetNotificationEnabled(id, false)

		logger.WithField("characteristic", id).Info("Streaming notifications")
		tsColor := color.New(color.FgHiBlack)

		deadline := time.NewTimer(subDuration)
		defer deadline.Stop()

		for {
			select {
			case n, ok := <-notifications.Events():
				if !ok {
					return nil
				}
				tsColor.Printf("%s ", time.Now().Format(time.RFC3339Nano))
				if subHex {
					fmt.Println(hex.EncodeToString(n.Payload))
				} else {
					fmt.Printf("%s\n", n.Payload)
				}
			case state, ok := <-states.Events():
				if !ok {
					return nil
				}
				if state.IsDisconnectish() {
					return gatt.ErrConnectionLost
				}
			case <-deadline.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
