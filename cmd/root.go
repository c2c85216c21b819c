// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/pkg/uart"
)

var (
	// Serial connection flags
	portName string
	baudRate int
	parity   string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Runtime flags
	configPath string
	logLevel   string
	stateFile  string
)

var rootCmd = &cobra.Command{
	Use:   "heatlink",
	Short: "Panasonic Aquarea heat pump link",
	Long: `Heatlink - A CLI tool and daemon for talking to Panasonic Aquarea heat pumps
over their serial service port.

Provides passive monitoring of the line, one-shot queries and setting writes,
and a daemon that polls the heat pump and bridges readings to MQTT.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600] [--parity even]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the HEATLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Settings may also be read from a YAML or TOML file with --config. Flags given
on the command line override the file.`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", uart.DefaultBaudRate, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVar(&parity, "parity", uart.DefaultParity, "Parity: even, odd or none (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Runtime flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state", "", "File keeping write rate limit history across runs")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
