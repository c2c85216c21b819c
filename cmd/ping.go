// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
	"github.com/Thermoquad/heatlink/pkg/manager"
)

var (
	pingCount    int
	pingInterval int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure heat pump response time with repeated queries",
	Long: `Send standard queries to the heat pump and report how long each response took.

Queries go through the same one-at-a-time discipline as the daemon: each has 2
seconds to be answered before it counts as lost.

This is useful for verifying:
  - Wiring and line settings (baud rate, parity)
  - The heat pump answers queries
  - Response latency of serial-over-network bridges

Exit codes:
  0 - All queries answered
  1 - One or more queries failed/timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of queries to send")
	pingCmd.Flags().IntVar(&pingInterval, "interval", int(manager.MinQueryInterval/time.Second), "Seconds between queries")
}

func runPing(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Heatlink - Ping Test\n")
	fmt.Printf("Count: %d queries, %d seconds apart\n\n", pingCount, pingInterval)

	successCount := 0
	failCount := 0

	budget := time.Duration(pingCount)*(time.Duration(pingInterval)*time.Second+manager.ResponseTimeout) + oneShotTimeout
	err = withManagerTimeout(cmd, s, budget, func(ctx context.Context, m *manager.Manager) error {
		for i := 1; i <= pingCount; i++ {
			fmt.Printf("Query %d/%d: ", i, pingCount)

			t, err := m.RequestQuery(aquarea.PacketStandard)
			if err != nil {
				return err
			}

			res, err := t.Wait(ctx)
			if err != nil {
				fmt.Printf("FAILED: %v\n", err)
				failCount++
				if ctx.Err() != nil {
					return nil
				}
			} else {
				rtt := res.CompletedAt.Sub(res.SentAt)
				fmt.Printf("STATUS with %d readings, rtt=%v\n", len(res.Status.Readings), rtt.Round(time.Millisecond))
				successCount++
			}

			// Delay between queries
			if i < pingCount {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Duration(pingInterval) * time.Second):
				}
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	// Summary
	sent := successCount + failCount
	fmt.Printf("\n--- Ping statistics ---\n")
	if sent > 0 {
		fmt.Printf("%d queries sent, %d responses received, %.0f%% loss\n",
			sent, successCount, float64(failCount)/float64(sent)*100)
	}

	if failCount > 0 || sent < pingCount {
		os.Exit(1)
	}
	return nil
}
