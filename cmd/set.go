// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
	"github.com/Thermoquad/heatlink/pkg/manager"
)

var setDryRun bool

var setCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Write one setting to the heat pump",
	Long: `Encode and send a setting command for one writable field.

The value is either a number or, for fields with named states, one of the
state names (case-insensitive). It is checked against the field's protocol
range and any configured limit before anything is sent.

Each field may be written at most 10 times per hour. Use --state (or
state_file in the config) so the limit holds across separate invocations.

With --dry-run the encoded frame is printed and nothing is sent.

Use "heatlink fields" to list writable fields and their ranges.`,
	Args: cobra.ExactArgs(2),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.Flags().BoolVar(&setDryRun, "dry-run", false, "Print the encoded frame without sending it")
}

func runSet(cmd *cobra.Command, args []string) error {
	field, text := args[0], strings.Join(args[1:], " ")

	var s *session
	var err error
	if setDryRun {
		s, err = loadOfflineSession(cmd)
	} else {
		s, err = loadSession(cmd)
	}
	if err != nil {
		return err
	}

	value, err := s.codec.ParseWriteValue(field, text)
	if err != nil {
		return err
	}

	if setDryRun {
		frame, err := s.codec.Encode(field, value)
		if err != nil {
			return err
		}
		values, err := s.codec.DecodeSetting(frame)
		if err != nil {
			return err
		}
		fmt.Print(aquarea.FormatSetting(s.registry, values))
		fmt.Print(aquarea.FormatHex(frame))
		return nil
	}

	return withManager(cmd, s, func(ctx context.Context, m *manager.Manager) error {
		t, err := m.RequestWrite(field, value)
		if err != nil {
			return err
		}

		res, err := t.Wait(ctx)
		if err != nil {
			return fmt.Errorf("write %s: %w", field, err)
		}

		fmt.Print(aquarea.FormatSetting(s.registry, map[string]float64{field: value}))
		if r, ok := res.Status.Get(field); ok {
			fmt.Printf("Heat pump reports %s = %s %s\n", field, r.Value, r.Unit)
		}
		return nil
	})
}
