package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattq/internal/goble"
	"github.com/srg/gattq/pkg/config"
	"github.com/srg/gattq/pkg/gatt"
)

const exampleDeviceAddress = "a1b2c3d4-e5f6-7890-1234-567890abcdef"

const deviceAddressNote = `Note: on macOS the device address is the CoreBluetooth identifier reported
during scanning, not the raw MAC address.`

// loadConfig resolves the effective config from --config, if given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// withClient dials the address, runs fn with a live client and an
// operation-scoped context, and closes the client on every exit path.
func withClient(cmd *cobra.Command, address string, opTimeout time.Duration, fn func(ctx context.Context, client *gatt.Client, logger *logrus.Logger) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	if opTimeout <= 0 {
		opTimeout = cfg.OperationTimeout
	}

	driver := goble.NewDriver(address, cfg.ConnectTimeout, logger)

	dialCtx, cancel := context.WithTimeout(cmd.Context(), cfg.ConnectTimeout)
	defer cancel()

	client, err := gatt.Dial(dialCtx, driver, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer client.Close()

	opCtx, cancelOp := context.WithTimeout(cmd.Context(), opTimeout)
	defer cancelOp()

	return fn(opCtx, client, logger)
}
