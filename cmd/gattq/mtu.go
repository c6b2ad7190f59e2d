package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattq/pkg/gatt"
)

// mtuCmd represents the mtu command
var mtuCmd = &cobra.Command{
	Use:   "mtu <device-address>",
	Short: "Negotiate the connection MTU",
	Long: fmt.Sprintf(`Requests a maximum transmission unit from the peripheral and prints what
was granted.

Examples:
  gattq mtu %s --size 247

%s`, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runMTU,
}

var (
	mtuSize    int
	mtuTimeout time.Duration
)

func init() {
	mtuCmd.Flags().IntVar(&mtuSize, "size", 0, "Requested MTU (default from config)")
	mtuCmd.Flags().DurationVar(&mtuTimeout, "timeout", 0, "Negotiation timeout (default from config)")
}

func runMTU(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if mtuSize <= 0 {
		mtuSize = cfg.MTU
	}

	return withClient(cmd, args[0], mtuTimeout, func(ctx context.Context, client *gatt.Client, logger *logrus.Logger) error {
		result, err := client.RequestMTU(ctx, mtuSize)
		if err != nil {
			return err
		}
		if !result.Status.Ok() {
			return fmt.Errorf("MTU negotiation completed with GATT status %s", result.Status)
		}
		fmt.Printf("granted MTU: %d\n", result.MTU)
		return nil
	})
}
