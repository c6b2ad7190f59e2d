package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattq/pkg/gatt"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <data>",
	Short: "Write to a characteristic or descriptor",
	Long: fmt.Sprintf(`Writes data to a BLE characteristic or descriptor.

Data is interpreted as a UTF-8 string by default, or as a hex string with --hex.

Examples:
  # Write a string
  gattq write %s "hello" --service 6e400001 --char 6e400002

  # Write raw bytes, without peripheral acknowledgment
  gattq write %s FF01 --hex --service 6e400001 --char 6e400002 --no-response

  # Write the Client Characteristic Configuration descriptor
  gattq write %s 0100 --hex --service 180d --char 2a37 --desc 2902

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(2),
	RunE: runWrite,
}

var (
	writeServiceUUID string
	writeCharUUID    string
	writeDescUUID    string
	writeHex         bool
	writeNoResponse  bool
	writeTimeout     time.Duration
)

func init() {
	writeCmd.Flags().StringVar(&writeServiceUUID, "service", "", "Service UUID (required)")
	writeCmd.Flags().StringVar(&writeCharUUID, "char", "", "Characteristic UUID (required)")
	writeCmd.Flags().StringVar(&writeDescUUID, "desc", "", "Descriptor UUID (writes descriptor instead of characteristic)")
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Interpret data as a hex string")
	writeCmd.Flags().BoolVar(&writeNoResponse, "no-response", false, "Write without peripheral acknowledgment")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 0, "Write timeout (default from config)")
	_ = writeCmd.MarkFlagRequired("service")
	_ = writeCmd.MarkFlagRequired("char")
}

func runWrite(cmd *cobra.Command, args []string) error {
	payload := []byte(args[1])
	if writeHex {
		decoded, err := hex.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("invalid hex data: %w", err)
		}
		payload = decoded
	}

	return withClient(cmd, args[0], writeTimeout, func(ctx context.Context, client *gatt.Client, logger *logrus.Logger) error {
		var status gatt.Status

		if writeDescUUID != "" {
			result, err := client.WriteDescriptor(ctx, gatt.DescID(writeServiceUUID, writeCharUUID, writeDescUUID), payload)
			if err != nil {
				return err
			}
			status = result.Status
		} else {
			writeType := gatt.WriteWithResponse
			if writeNoResponse {
				writeType = gatt.WriteWithoutResponse
			}
			result, err := client.WriteCharacteristic(ctx, gatt.CharID(writeServiceUUID, writeCharUUID), payload, writeType)
			if err != nil {
				return err
			}
			status = result.Status
		}

		if !status.Ok() {
			return fmt.Errorf("write completed with GATT status %s", status)
		}
		fmt.Printf("wrote %d bytes\n", len(payload))
		return nil
	})
}
