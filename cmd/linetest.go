// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
)

var lineTestCmd = &cobra.Command{
	Use:   "line_test",
	Short: "Check that the line carries intact Aquarea frames",
	Long: `Open the serial port or WebSocket and scan the raw byte stream for
Aquarea frames, without relying on the transport's framing.

Every position where a known header pair starts is counted, and complete
candidates are checked against their checksum. A steady stream with few bad
checksums points at a healthy line; many bad checksums usually mean the wrong
baud rate or parity. With --query a standard query is sent periodically so a
silent heat pump can be made to answer.

Exit codes:
  0 - Line stayed up for the whole run
  1 - Line failed during the run
  2 - Connection error`,
	RunE: runLineTest,
}

var (
	lineTestDuration time.Duration
	lineTestReport   time.Duration
	lineTestQuery    time.Duration
	lineTestHex      bool
)

const lineTestReadTimeout = 250 * time.Millisecond

func init() {
	rootCmd.AddCommand(lineTestCmd)
	lineTestCmd.Flags().DurationVar(&lineTestDuration, "duration", 30*time.Second, "How long to watch the line")
	lineTestCmd.Flags().DurationVar(&lineTestReport, "report", 5*time.Second, "Interval between progress lines")
	lineTestCmd.Flags().DurationVar(&lineTestQuery, "query", 0, "Send a standard query at this interval (0 disables)")
	lineTestCmd.Flags().BoolVar(&lineTestHex, "hex", false, "Dump every received chunk in hex")
}

// lineScan looks for Aquarea frames anywhere in a raw byte stream. Unlike the
// transport it never commits to a boundary, so one corrupt frame does not hide
// the next.
type lineScan struct {
	bytes      int
	frames     int // candidates with a known header and full length
	valid      int // candidates whose checksum matched
	longestGap time.Duration
	lastData   time.Time

	buf []byte
}

func (s *lineScan) feed(p []byte, at time.Time) {
	if len(p) == 0 {
		return
	}
	if !s.lastData.IsZero() {
		s.longestGap = max(s.longestGap, at.Sub(s.lastData))
	}
	s.lastData = at
	s.bytes += len(p)
	s.buf = append(s.buf, p...)

	i := 0
	for i+1 < len(s.buf) {
		n, ok := aquarea.FrameLength(s.buf[i], s.buf[i+1])
		if !ok {
			i++
			continue
		}
		if i+n > len(s.buf) {
			break
		}
		s.frames++
		if aquarea.Validate(s.buf[i:i+n]) == nil {
			s.valid++
			i += n
			continue
		}
		i++
	}
	s.buf = append(s.buf[:0], s.buf[i:]...)
}

func (s *lineScan) invalid() int {
	return s.frames - s.valid
}

func (s *lineScan) report(w *os.File, elapsed time.Duration) {
	fmt.Fprintf(w, "Elapsed: %v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Bytes: %d\n", s.bytes)
	fmt.Fprintf(w, "Frames: %d (%d valid, %d bad checksum)\n", s.frames, s.valid, s.invalid())
	if s.longestGap > 0 {
		fmt.Fprintf(w, "Longest silence: %v\n", s.longestGap.Round(time.Millisecond))
	}
}

func runLineTest(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	line, connInfo, err := OpenLine(cmd.Context(), &s.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer line.Close()

	fmt.Printf("Heatlink - Line Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %v\n\n", lineTestDuration)

	var scan lineScan
	start := time.Now()
	nextReport := start.Add(lineTestReport)
	var nextQuery time.Time
	if lineTestQuery > 0 {
		nextQuery = start
	}
	buf := make([]byte, 256)

	for time.Since(start) < lineTestDuration {
		now := time.Now()
		if !nextQuery.IsZero() && !now.Before(nextQuery) {
			if _, err := line.Write(aquarea.QueryFrame(aquarea.PacketStandard)); err != nil {
				fmt.Printf("\nWrite error: %v\n\n", err)
				scan.report(os.Stdout, time.Since(start))
				os.Exit(1)
			}
			nextQuery = now.Add(lineTestQuery)
		}

		n, err := line.ReadTimeout(buf, lineTestReadTimeout)
		if err != nil {
			fmt.Printf("\nLine error after %v: %v\n\n", time.Since(start).Round(time.Millisecond), err)
			scan.report(os.Stdout, time.Since(start))
			os.Exit(1)
		}
		scan.feed(buf[:n], time.Now())
		if lineTestHex && n > 0 {
			fmt.Printf("%s  %x\n", time.Now().Format("15:04:05.000"), buf[:n])
		}

		if time.Now().After(nextReport) {
			fmt.Printf("%s  %d bytes, %d/%d frames valid\n",
				time.Now().Format("15:04:05"), scan.bytes, scan.valid, scan.frames)
			nextReport = nextReport.Add(lineTestReport)
		}
	}

	fmt.Println()
	scan.report(os.Stdout, time.Since(start))
	switch {
	case scan.bytes == 0:
		fmt.Printf("Line stayed up but carried no data\n")
	case scan.frames == 0:
		fmt.Printf("Data received but no Aquarea frames found; check baud rate and parity\n")
	}
	return nil
}
