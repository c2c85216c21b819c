// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
)

var fieldsWritable bool

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the fields decoded from status frames",
	Long: `Print the field registry: name, packet, byte offset, encoding, unit and,
for writable fields, the accepted range including any configured limit.

Does not open the line.`,
	Args: cobra.NoArgs,
	RunE: runFields,
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
	fieldsCmd.Flags().BoolVar(&fieldsWritable, "writable", false, "Only list writable fields")
}

func runFields(cmd *cobra.Command, args []string) error {
	s, err := loadOfflineSession(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("%-26s %-8s %-6s %-10s %-5s %s\n", "FIELD", "PACKET", "BYTE", "ENCODING", "UNIT", "WRITE")
	for _, f := range s.registry.Fields() {
		if fieldsWritable && !f.Writable {
			continue
		}
		fmt.Printf("%-26s %-8s %-6d %-10s %-5s %s\n",
			f.Name,
			aquarea.FormatPacketType(f.Packet),
			f.Offset,
			f.Encoding,
			f.Unit,
			formatWriteRange(f),
		)
	}
	return nil
}

// formatWriteRange describes what a field accepts, or "-" if read-only
func formatWriteRange(f aquarea.FieldSpec) string {
	if !f.Writable {
		return "-"
	}
	if len(f.WriteLabels) > 0 {
		return strings.Join(f.WriteLabels, "|")
	}
	out := fmt.Sprintf("%g..%g", f.Min, f.Max)
	if f.HasUserMax && f.UserMax < f.Max {
		out += fmt.Sprintf(" (limit %g)", f.UserMax)
	}
	return out
}
