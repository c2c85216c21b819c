// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
	"github.com/Thermoquad/heatlink/pkg/manager"
)

var queryExtra bool

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the heat pump once and print its status",
	Long: `Send a standard query and print every decoded reading of the response.

With --extra the extra packet (energy counters) is queried as well. The query
is sent after the line has settled for 1.5 seconds and the heat pump has 2
seconds to answer.`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVar(&queryExtra, "extra", false, "Also query the extra packet")
}

func runQuery(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}

	packets := []uint8{aquarea.PacketStandard}
	if queryExtra {
		packets = append(packets, aquarea.PacketExtra)
	}

	return withManager(cmd, s, func(ctx context.Context, m *manager.Manager) error {
		tickets := make([]*manager.Ticket, 0, len(packets))
		for _, pt := range packets {
			t, err := m.RequestQuery(pt)
			if err != nil {
				return err
			}
			tickets = append(tickets, t)
		}

		for _, t := range tickets {
			res, err := t.Wait(ctx)
			if err != nil {
				return fmt.Errorf("%s query: %w", aquarea.FormatPacketType(t.Command().Packet), err)
			}
			fmt.Print(aquarea.FormatFrame(t.Command().Payload, res.SentAt))
			fmt.Print(aquarea.FormatStatus(res.Status))
			fmt.Println()
		}
		return nil
	})
}
