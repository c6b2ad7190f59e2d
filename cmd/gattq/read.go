package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattq/pkg/gatt"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address>",
	Short: "Read a characteristic value",
	Long: fmt.Sprintf(`Reads data from a BLE characteristic.

Examples:
  # Read Battery Level
  gattq read %s --service 180f --char 2a19

  # Output as hex
  gattq read %s --service 180f --char 2a19 --hex

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var (
	readServiceUUID string
	readCharUUID    string
	readHex         bool
	readTimeout     time.Duration
)

func init() {
	readCmd.Flags().StringVar(&readServiceUUID, "service", "", "Service UUID (required)")
	readCmd.Flags().StringVar(&readCharUUID, "char", "", "Characteristic UUID (required)")
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string (e.g., 'FF01'); raw bytes by default")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 0, "Read timeout (default from config)")
	_ = readCmd.MarkFlagRequired("service")
	_ = readCmd.MarkFlagRequired("char")
}

func runRead(cmd *cobra.Command, args []string) error {
	return withClient(cmd, args[0], readTimeout, func(ctx context.Context, client *gatt.Client, logger *logrus.Logger) error {
		result, err := client.ReadCharacteristic(ctx, gatt.CharID(readServiceUUID, readCharUUID))
		if err != nil {
			return err
		}
		if !result.Status.Ok() {
			return fmt.Errorf("read completed with GATT status %s", result.Status)
		}

		if readHex {
			fmt.Println(hex.EncodeToString(result.Value))
		} else {
			os.Stdout.Write(result.Value)
		}
		return nil
	})
}
