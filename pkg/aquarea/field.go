// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

import "fmt"

// Encoding selects how a field's bytes map to a value
type Encoding int

const (
	// EncodingRaw is a single byte with a linear transform: (raw + Bias) * Scale
	EncodingRaw Encoding = iota
	// EncodingUnsigned is an unsigned multi-byte integer with the same linear transform
	EncodingUnsigned
	// EncodingSigned is a two's-complement byte with the same linear transform
	EncodingSigned
	// EncodingFixedPoint is an integer byte plus a fraction byte
	EncodingFixedPoint
	// EncodingBits is a bit-field within one byte
	EncodingBits
	// EncodingEnum is a closed label table over a byte or a bit-field
	EncodingEnum
)

// String returns the encoding name
func (e Encoding) String() string {
	switch e {
	case EncodingRaw:
		return "raw"
	case EncodingUnsigned:
		return "unsigned"
	case EncodingSigned:
		return "signed"
	case EncodingFixedPoint:
		return "fixed"
	case EncodingBits:
		return "bits"
	case EncodingEnum:
		return "enum"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Field classes
const (
	ClassTemperature = "temperature"
	ClassPressure    = "pressure"
	ClassPower       = "power"
	ClassFrequency   = "frequency"
	ClassSpeed       = "speed"
	ClassFlow        = "flow"
	ClassState       = "state"
)

// EnumEntry maps a raw value to a label
type EnumEntry struct {
	Raw   uint8
	Label string
}

// FieldSpec describes where a field lives in the status frame and how it is
// encoded. Writable fields additionally describe their setting frame location.
type FieldSpec struct {
	Name   string
	Packet uint8

	// Read side (203-byte status frame)
	Offset   int
	Width    int // bytes, EncodingUnsigned only; 0 means 1
	Encoding Encoding

	LittleEndian bool
	Bias         float64
	Scale        float64 // 0 means 1

	BitOffset int
	BitLength int

	// Fixed point: value = int + (fraction - FractionBias) / Divisor.
	// A fraction byte above SignSentinel marks a negative value whose fraction
	// is fraction - (SignSentinel + 1). A zero SignSentinel disables the sign.
	FractionOffset int
	Divisor        float64 // 0 means 10
	FractionBias   int
	SignSentinel   uint8

	Labels []EnumEntry

	Unit     string
	Class    string
	SkipZero bool // raw zero means "no data"

	// Write side (110-byte setting frame)
	Writable      bool
	SettingOffset int
	WriteMap      []uint8  // write index -> raw setting byte
	WriteLabels   []string // write index -> label
	Min           float64
	Max           float64

	// UserMax is the operator ceiling. HasUserMax is false when unset.
	UserMax    float64
	HasUserMax bool
}

// Ceiling returns the effective write maximum
func (f *FieldSpec) Ceiling() float64 {
	if f.HasUserMax && f.UserMax < f.Max {
		return f.UserMax
	}
	return f.Max
}

func (f *FieldSpec) scale() float64 {
	if f.Scale == 0 {
		return 1
	}
	return f.Scale
}

func (f *FieldSpec) divisor() float64 {
	if f.Divisor == 0 {
		return 10
	}
	return f.Divisor
}

func (f *FieldSpec) width() int {
	if f.Encoding == EncodingUnsigned && f.Width > 1 {
		return f.Width
	}
	return 1
}

func (f *FieldSpec) usesBits() bool {
	return f.BitLength > 0 && (f.Encoding == EncodingBits || f.Encoding == EncodingEnum)
}

func (f *FieldSpec) bitMask() uint8 {
	return uint8((1<<f.BitLength)-1) << f.BitOffset
}

// readRange returns the first and one-past-last status frame bytes the field touches
func (f *FieldSpec) readRange() (int, int) {
	if f.Encoding == EncodingFixedPoint {
		lo, hi := f.Offset, f.FractionOffset
		if hi < lo {
			lo, hi = hi, lo
		}
		return lo, hi + 1
	}
	return f.Offset, f.Offset + f.width()
}

// settingBytes returns the setting frame offsets the field writes
func (f *FieldSpec) settingBytes() []int {
	switch {
	case f.Encoding == EncodingFixedPoint && len(f.WriteMap) == 0:
		return []int{f.SettingOffset, f.fractionSettingOffset()}
	case f.Encoding == EncodingUnsigned:
		offsets := make([]int, f.width())
		for i := range offsets {
			offsets[i] = f.SettingOffset + i
		}
		return offsets
	default:
		return []int{f.SettingOffset}
	}
}

func (f *FieldSpec) fractionSettingOffset() int {
	return f.SettingOffset + (f.FractionOffset - f.Offset)
}

// Label returns the label for a raw enum value
func (f *FieldSpec) Label(raw uint8) (string, bool) {
	for _, e := range f.Labels {
		if e.Raw == raw {
			return e.Label, true
		}
	}
	return "", false
}
