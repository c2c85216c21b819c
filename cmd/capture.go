// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/internal/logging"
	"github.com/Thermoquad/heatlink/pkg/aquarea"
	"github.com/Thermoquad/heatlink/pkg/capture"
)

var (
	captureQuiet   bool
	replayOnlyErrs bool
)

var captureCmd = &cobra.Command{
	Use:   "capture <file>",
	Short: "Record every frame on the line to a capture file",
	Long: `Passively record frames in both directions to a CBOR capture file.

Each record holds the receive time, the direction and the raw frame, including
frames that fail validation. Use "heatlink replay" to decode a capture later.

This command only listens; it never transmits.`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Decode a capture file",
	Long: `Decode every frame in a capture file as raw_log would have shown it, then
print frame statistics.

Does not open the line.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(replayCmd)
	captureCmd.Flags().BoolVarP(&captureQuiet, "quiet", "q", false, "Do not print frames while recording")
	replayCmd.Flags().BoolVar(&replayOnlyErrs, "errors-only", false, "Only print frames that fail validation")
}

// directionOf tells who sent a frame from its kind
func directionOf(frame []byte) capture.Direction {
	if aquarea.FormatFrameKind(frame) == "STATUS" {
		return capture.FromHeatPump
	}
	return capture.FromController
}

func runCapture(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer f.Close()
	buf := bufio.NewWriter(f)
	defer buf.Flush()

	w, err := capture.NewWriter(buf)
	if err != nil {
		return err
	}

	tr, connInfo, err := OpenTransport(ctx, &s.cfg, logging.Component(s.log, "transport"))
	if err != nil {
		return err
	}
	defer tr.Close()

	fmt.Printf("Heatlink - Capture\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("File: %s\n", args[0])
	fmt.Printf("Press Ctrl+C to stop\n\n")

	count := 0
	var writeErr error
	err = watch(ctx, tr, func(frame []byte, at time.Time) {
		if writeErr != nil {
			return
		}
		if writeErr = w.Write(capture.NewRecord(at, directionOf(frame), frame)); writeErr != nil {
			stop()
			return
		}
		count++
		if !captureQuiet {
			fmt.Print(inspect(s.codec, frame, at).format(s.registry))
		}
	})

	fmt.Printf("Recorded %d frames\n", count)
	if writeErr != nil {
		return writeErr
	}
	if err != nil && isLineGone(err) {
		s.log.WithError(err).Info("connection closed")
		return nil
	}
	return err
}

func runReplay(cmd *cobra.Command, args []string) error {
	s, err := loadOfflineSession(cmd)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer f.Close()

	r := capture.NewReader(bufio.NewReader(f))
	stats := aquarea.NewStatistics()

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		in := inspect(s.codec, rec.Frame, rec.Time())
		stats.Update(rec.Frame, in.err, in.status)
		if replayOnlyErrs && in.err == nil {
			continue
		}
		fmt.Printf("%s ", rec.Direction)
		fmt.Print(in.format(s.registry))
	}

	fmt.Print(stats.String())
	return nil
}
