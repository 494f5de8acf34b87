// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/spf13/cobra"

	"github.com/rhsp-go/rhsp/internal/config"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Hub session flags
	hubAddress  uint8
	respTimeout time.Duration

	debugLogging bool
	capturePath  string
	metricsAddr  string

	cfg *config.Config
	log types.RootLogger
)

var rootCmd = &cobra.Command{
	Use:   "rhsp",
	Short: "REV Hub Serial Protocol host tool",
	Long: `rhsp - A CLI tool for talking to REV Hub modules over RHSP.

Provides commands for discovering hubs on a bus, issuing system and raw
commands, and passively monitoring the link.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 460800]
  WebSocket: --url ws://host/path [--username user]

Settings may also come from a YAML file given with --config; flags take
precedence over the file.

For WebSocket authentication, the password is read from the RHSP_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 460800, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().Uint8VarP(&hubAddress, "address", "a", 2, "Hub module address")
	rootCmd.PersistentFlags().DurationVar(&respTimeout, "timeout", time.Second, "Response timeout (0 waits forever)")

	rootCmd.PersistentFlags().BoolVarP(&debugLogging, "debug", "d", false, "Debug logging (trace)")
	rootCmd.PersistentFlags().StringVar(&capturePath, "capture", "", "Append sent and received frames to a capture file")
	rootCmd.PersistentFlags().StringVarP(&metricsAddr, "metrics", "m", "", "Prometheus metrics listen address")
}

// loadSettings reads the configuration file and lays explicitly set flags
// over it, then builds the root logger.
func loadSettings(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.WebSocket.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.WebSocket.InsecureSkipVerify = wsNoSSLVerify
	}
	if flags.Changed("address") {
		cfg.Hub.Address = hubAddress
	}
	if flags.Changed("timeout") {
		cfg.Hub.ResponseTimeout = config.Duration(respTimeout)
	}
	if flags.Changed("capture") {
		cfg.Capture.Path = capturePath
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Listen = metricsAddr
	}
	if debugLogging {
		cfg.Log.Level = "trace"
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log = logging.New(logging.Zerolog, "rhsp", os.Stderr)
	log.SetLevel(level)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
