// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/internal/logging"
	"github.com/Thermoquad/heatlink/pkg/aquarea"
)

var (
	showAll       bool
	statsInterval int
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track frame errors, malformed data, and anomalous values with statistics.

This command validates each frame and detects:
  - Checksum errors
  - Length mismatches and unrecognised headers
  - Unknown packet types
  - Implausible values (temperatures outside -50 to 100°C)
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

// printFrameError prints a rejected frame in highlighted format
func printFrameError(in inspection) {
	timestamp := in.at.Format("15:04:05.000")
	kind := aquarea.FormatFrameKind(in.frame)

	var checksumErr *aquarea.ChecksumError
	var lengthErr *aquarea.FrameLengthError
	switch {
	case errors.As(in.err, &checksumErr):
		fmt.Printf("[%s] \033[1;31mCHECKSUM ERROR:\033[0m %s\n", timestamp, kind)
		fmt.Printf("    expected=0x%02X, received=0x%02X\n", checksumErr.Want, checksumErr.Got)
	case errors.As(in.err, &lengthErr):
		fmt.Printf("[%s] \033[1;31mLENGTH ERROR:\033[0m header=0x%02X\n", timestamp, lengthErr.Header)
		if lengthErr.Want > 0 {
			fmt.Printf("    Length: received=%d, expected=%d\n", lengthErr.Got, lengthErr.Want)
		}
	case errors.Is(in.err, aquarea.ErrUnknownPacket):
		fmt.Printf("[%s] \033[1;33mUNKNOWN PACKET:\033[0m %s\n", timestamp, kind)
		if len(in.frame) > 3 {
			fmt.Printf("    packet type=0x%02X\n", in.frame[3])
		}
	default:
		fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, in.err)
	}

	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// printAnomalies prints implausible values of an otherwise valid frame
func printAnomalies(in inspection) {
	timestamp := in.at.Format("15:04:05.000")
	packet := aquarea.FormatPacketType(in.status.Packet)

	fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m STATUS packet=%s\n", timestamp, packet)
	fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")
	for i, a := range in.status.Anomalies {
		fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a)
	}
	fmt.Println()
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr, connInfo, err := OpenTransport(ctx, &s.cfg, logging.Component(s.log, "transport"))
	if err != nil {
		return err
	}
	defer tr.Close()

	fmt.Printf("Heatlink - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := aquarea.NewStatistics()
	var statsMu sync.Mutex

	// Sync tracking - ignore errors until first valid frame
	synchronized := false
	invalidBeforeSync := 0

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				statsMu.Lock()
				fmt.Println()
				fmt.Print(stats.String())
				statsMu.Unlock()
				if skipped := tr.Skipped(); skipped > 0 {
					fmt.Printf("Bytes skipped while resyncing: %d\n", skipped)
				}
				fmt.Println()
			}
		}
	}()

	err = watch(ctx, tr, func(frame []byte, at time.Time) {
		in := inspect(s.codec, frame, at)

		statsMu.Lock()
		defer statsMu.Unlock()

		if in.err != nil {
			if !synchronized {
				// Not synced yet, just count invalid frames
				invalidBeforeSync++
				return
			}
			stats.Update(frame, in.err, nil)
			printFrameError(in)
			return
		}

		if !synchronized {
			// First frame! We're now synchronized
			synchronized = true
			if invalidBeforeSync > 0 {
				fmt.Printf("[SYNC] Synchronized after skipping %d invalid frames\n\n", invalidBeforeSync)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}
		}

		stats.Update(frame, nil, in.status)

		switch {
		case in.status != nil && len(in.status.Anomalies) > 0:
			printAnomalies(in)
		case showAll:
			fmt.Print(in.format(s.registry))
		}
	})

	statsMu.Lock()
	fmt.Println()
	fmt.Print(stats.String())
	statsMu.Unlock()
	if err != nil && isLineGone(err) {
		s.log.WithError(err).Info("connection closed")
		return nil
	}
	return err
}
