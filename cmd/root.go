// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Thermoquad/canopy/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Settings from canopy.yaml, CANOPY_* and the flags below
	settings = config.New()

	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "canopy",
	Short: "Serial NDJSON bridge for greenhouse controllers",
	Long: `Canopy - bridges a greenhouse controller that speaks NDJSON over a serial
link to an HTTP API.

The controller streams sensor samples, command acknowledgements and status
lines; canopy keeps the latest state, a short message log, evaluates alarm
thresholds and forwards validated actuator commands back to the controller.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Every flag can also be set in canopy.yaml (see --config) or through a
CANOPY_* environment variable, e.g. CANOPY_SERIAL_PORT or CANOPY_HTTP_ADDR.

For WebSocket authentication, the password is read from the CANOPY_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&configDir, "config", ".", "Directory containing canopy.yaml")

	// Serial connection flags
	flags.StringP("port", "p", "", "Serial port device")
	flags.IntP("baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	flags.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")

	bindFlags(map[string]string{
		"serial.port":             "port",
		"serial.baud":             "baud",
		"websocket.url":           "url",
		"websocket.username":      "username",
		"websocket.no_ssl_verify": "no-ssl-verify",
		"log.level":               "log-level",
		"log.format":              "log-format",
	})
}

func bindFlags(keys map[string]string) {
	for key, flag := range keys {
		if err := settings.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", flag, err))
		}
	}
}

// loadConfig reads the configuration and installs the default logger
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(settings, configDir)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	if f := config.ConfigFile(settings); f != "" {
		logger.Debug("loaded config file", "path", f)
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (use text or json)", cfg.Format)
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
