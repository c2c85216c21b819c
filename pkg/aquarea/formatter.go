// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatFrameKind returns the human-readable name for a frame
func FormatFrameKind(frame []byte) string {
	if len(frame) < 2 {
		return "UNKNOWN"
	}
	switch {
	case frame[0] == HeaderSetting:
		return "SETTING"
	case frame[0] == HeaderQuery && len(frame) == StatusFrameLength:
		return "STATUS"
	case frame[0] == HeaderQuery:
		return "QUERY"
	default:
		return "UNKNOWN"
	}
}

// FormatPacketType returns the human-readable name for a packet type
func FormatPacketType(packetType uint8) string {
	switch packetType {
	case PacketStandard:
		return "STANDARD"
	case PacketExtra:
		return "EXTRA"
	default:
		return "UNKNOWN"
	}
}

// FormatFrame formats a frame header line
func FormatFrame(frame []byte, at time.Time) string {
	timestamp := at.Format("15:04:05.000")
	kind := FormatFrameKind(frame)

	var header, packet byte
	if len(frame) > 0 {
		header = frame[0]
	}
	if len(frame) > packetTypeOffset {
		packet = frame[packetTypeOffset]
	}

	return fmt.Sprintf("[%s] %s (0x%02X) packet=%s (0x%02X) len=%d\n",
		timestamp, kind, header, FormatPacketType(packet), packet, len(frame))
}

// FormatStatus formats decoded readings, one per line
func FormatStatus(s *Status) string {
	if len(s.Readings) == 0 && len(s.Anomalies) == 0 {
		return "  (no data)\n"
	}

	width := 0
	for _, r := range s.Readings {
		if len(r.Field) > width {
			width = len(r.Field)
		}
	}

	var b strings.Builder
	for _, r := range s.Readings {
		value := r.Value.String()
		if r.Unit != "" {
			value += " " + r.Unit
		}
		fmt.Fprintf(&b, "  %-*s %s\n", width, r.Field, value)
	}
	for _, a := range s.Anomalies {
		fmt.Fprintf(&b, "  [ANOMALY] %s\n", a)
	}
	return b.String()
}

// FormatSetting formats the values carried by a setting command
func FormatSetting(r *Registry, values map[string]float64) string {
	if len(values) == 0 {
		return "  (no changes)\n"
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		v := values[name]
		f, _ := r.Lookup(name)
		idx := int(v)
		if idx >= 0 && idx < len(f.WriteLabels) && float64(idx) == v {
			fmt.Fprintf(&b, "  %s -> %s (%d)\n", name, f.WriteLabels[idx], idx)
			continue
		}
		fmt.Fprintf(&b, "  %s -> %s %s\n", name, Value{Number: v}, f.Unit)
	}
	return b.String()
}

// FormatHex formats bytes as a hex dump, 16 bytes per line
func FormatHex(data []byte) string {
	var b strings.Builder
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&b, "  %04X:", i)
		for _, c := range data[i:end] {
			fmt.Fprintf(&b, " %02X", c)
		}
		b.WriteString("\n")
	}
	return b.String()
}
