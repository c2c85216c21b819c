// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/internal/logging"
	"github.com/Thermoquad/heatlink/pkg/aquarea"
)

var (
	packetTestTimeout int
	packetTestQuery   bool
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid Aquarea frame",
	Long: `Wait for a valid Aquarea frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
frame in either direction. It ignores invalid bytes and frames and waits for a
complete frame passing the checksum check.

With --query a single standard query is sent first, so a heat pump without
another controller attached will answer.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing wiring, baud rate and parity settings.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	packetTestCmd.Flags().BoolVar(&packetTestQuery, "query", false, "Send one standard query before waiting")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	timeout := time.Duration(packetTestTimeout) * time.Second
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	// Open connection (serial or WebSocket)
	tr, connInfo, err := OpenTransport(ctx, &s.cfg, logging.Component(s.log, "transport"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer tr.Close()

	fmt.Printf("Heatlink - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)

	if packetTestQuery {
		if err := tr.Write(aquarea.QueryFrame(aquarea.PacketStandard)); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("Sent standard query\n")
	}
	fmt.Printf("Waiting for valid Aquarea frame...\n\n")

	invalidFrames := 0
	var found inspection

	err = watch(ctx, tr, func(frame []byte, at time.Time) {
		in := inspect(s.codec, frame, at)
		if in.err != nil {
			// Ignore invalid frames, just count them
			invalidFrames++
			return
		}
		found = in
		cancel()
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}

	if found.frame == nil {
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		if skipped := tr.Skipped(); skipped > 0 || invalidFrames > 0 {
			fmt.Fprintf(os.Stderr, "(skipped %d bytes and %d invalid frames)\n", skipped, invalidFrames)
		}
		os.Exit(1)
	}
	if skipped := tr.Skipped(); skipped > 0 || invalidFrames > 0 {
		fmt.Printf("(skipped %d bytes and %d invalid frames before sync)\n", skipped, invalidFrames)
	}
	fmt.Printf("SUCCESS: Received valid frame\n")
	fmt.Printf("  Kind: %s (0x%02X)\n", aquarea.FormatFrameKind(found.frame), found.frame[0])
	fmt.Printf("  Packet: %s (0x%02X)\n", aquarea.FormatPacketType(found.frame[3]), found.frame[3])
	fmt.Printf("  Length: %d bytes\n", len(found.frame))
	fmt.Printf("  Checksum: 0x%02X\n", found.frame[len(found.frame)-1])
	os.Exit(0)

	return nil
}
