// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/internal/logging"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display Aquarea protocol frames as they arrive.

Every frame on the line is shown, whichever side sent it: queries and setting
commands from a controller as well as status responses from the heat pump.
Each frame is printed with timestamp, kind, packet type and decoded content.

This command only listens; it never transmits.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open connection (serial or WebSocket)
	tr, connInfo, err := OpenTransport(ctx, &s.cfg, logging.Component(s.log, "transport"))
	if err != nil {
		return err
	}
	defer tr.Close()

	fmt.Printf("Heatlink - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	err = watch(ctx, tr, func(frame []byte, at time.Time) {
		fmt.Print(inspect(s.codec, frame, at).format(s.registry))
	})
	if err != nil && isLineGone(err) {
		s.log.WithError(err).Info("connection closed")
		return nil
	}
	return err
}
