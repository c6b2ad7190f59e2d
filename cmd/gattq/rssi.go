package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattq/pkg/gatt"
)

// rssiCmd represents the rssi command
var rssiCmd = &cobra.Command{
	Use:   "rssi <device-address>",
	Short: "Read the connection signal strength",
	Long: fmt.Sprintf(`Reads the received signal strength indicator for a live connection.

Examples:
  gattq rssi %s

%s`, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runRSSI,
}

var rssiTimeout time.Duration

func init() {
	rssiCmd.Flags().DurationVar(&rssiTimeout, "timeout", 0, "Read timeout (default from config)")
}

func runRSSI(cmd *cobra.Command, args []string) error {
	return withClient(cmd, args[0], rssiTimeout, func(ctx context.Context, client *gatt.Client, logger *logrus.Logger) error {
		result, err := client.ReadRSSI(ctx)
		if err != nil {
			return err
		}
		if !result.Status.Ok() {
			return fmt.Errorf("RSSI read completed with GATT status %s", result.Status)
		}
		fmt.Printf("%d dBm\n", result.RSSI)
		return nil
	})
}
