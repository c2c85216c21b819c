// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Value is a decoded field value
type Value struct {
	Raw     uint64
	Number  float64
	Label   string // enum fields only
	Unknown bool   // enum raw value outside the label table
}

// String formats the value for display and publishing
func (v Value) String() string {
	switch {
	case v.Unknown:
		return fmt.Sprintf("Unknown(0x%02X)", v.Raw)
	case v.Label != "":
		return v.Label
	default:
		return strconv.FormatFloat(math.Round(v.Number*1000)/1000, 'f', -1, 64)
	}
}

// Reading is one decoded field from one status frame
type Reading struct {
	Field     string
	Value     Value
	Unit      string
	Timestamp time.Time
}

// Status is the decoded content of one status frame
type Status struct {
	Packet    uint8
	Readings  []Reading
	Anomalies []Anomaly
	Timestamp time.Time
}

// Get returns the reading for a field
func (s *Status) Get(field string) (Reading, bool) {
	for _, r := range s.Readings {
		if r.Field == field {
			return r, true
		}
	}
	return Reading{}, false
}

// Anomaly records a field dropped from decode output as implausible
type Anomaly struct {
	Field string
	Value float64
	Raw   uint64
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s=%g (raw 0x%X)", a.Field, a.Value, a.Raw)
}
