package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattq/pkg/gatt"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover <device-address>",
	Short: "Discover services, characteristics, and descriptors",
	Long: fmt.Sprintf(`Connects to a device and prints its GATT service tree.

Examples:
  # Discover the full service tree
  gattq discover %s

%s`, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

var discoverTimeout time.Duration

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 0, "Discovery timeout (default from config)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	return withClient(cmd, args[0], discoverTimeout, func(ctx context.Context, client *gatt.Client, logger *logrus.Logger) error {
		result, err := client.DiscoverServices(ctx)
		if err != nil {
			return err
		}
		if !result.Status.Ok() {
			return fmt.Errorf("discovery completed with GATT status %s", result.Status)
		}

		printServiceTree(result.Services)
		return nil
	})
}

func printServiceTree(services []gatt.Service) {
	svcColor := color.New(color.FgCyan, color.Bold)
	charColor := color.New(color.FgGreen)
	descColor := color.New(color.FgHiBlack)

	for _, svc := range services {
		svcColor.Printf("service %s\n", svc.UUID)
		for _, char := range svc.Characteristics {
			charColor.Printf("  characteristic %s", char.UUID)
			if props := char.Properties.String(); props != "" {
				fmt.Printf(" [%s]", props)
			}
			fmt.Println()
			for _, desc := range char.Descriptors {
				descColor.Printf("    descriptor %s\n", desc.UUID)
			}
		}
	}
}
