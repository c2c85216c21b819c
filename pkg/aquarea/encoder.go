// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// limitTolerance absorbs float error when comparing a scaled setting to its limits
const limitTolerance = 1e-9

// Encode builds a 110-byte setting command that changes one field.
// Every byte outside the header, the field's setting bytes and the checksum
// is zero, which the heat pump treats as "leave unchanged".
func (c *Codec) Encode(name string, value float64) ([]byte, error) {
	f, err := c.writableField(name)
	if err != nil {
		return nil, err
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, &RangeError{Field: name, Value: value, Min: f.Min, Max: f.Ceiling(), Reason: "is not a finite number"}
	}

	ceiling := f.Ceiling()
	if value < f.Min || value > ceiling {
		return nil, &RangeError{
			Field:     name,
			Value:     value,
			Min:       f.Min,
			Max:       ceiling,
			UserLimit: ceiling < f.Max,
		}
	}

	frame := newSettingFrame()
	if err := encodeField(&f, frame, value); err != nil {
		return nil, err
	}

	// Rounding to the field's step can carry an in-range request past a limit.
	if len(f.WriteMap) == 0 {
		sent := decodeField(&f, frame, f.SettingOffset, f.fractionSettingOffset()).Number
		if sent < f.Min-limitTolerance || sent > ceiling+limitTolerance {
			return nil, &RangeError{
				Field:     name,
				Value:     value,
				Min:       f.Min,
				Max:       ceiling,
				UserLimit: ceiling < f.Max,
				Reason:    fmt.Sprintf("would be sent as %g, outside [%g, %g]", sent, f.Min, ceiling),
			}
		}
	}
	Seal(frame)

	return frame, nil
}

// ParseWriteValue converts operator text into a write value for a field.
// Write labels ("Level 2", "on") are matched case-insensitively, anything
// else must parse as a number.
func (c *Codec) ParseWriteValue(name, text string) (float64, error) {
	f, err := c.writableField(name)
	if err != nil {
		return 0, err
	}

	text = strings.TrimSpace(text)
	for i, label := range f.WriteLabels {
		if strings.EqualFold(label, text) {
			return float64(i), nil
		}
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		if len(f.WriteLabels) > 0 {
			return 0, fmt.Errorf("field %s: %q is not a number or one of %s", name, text, strings.Join(f.WriteLabels, ", "))
		}
		return 0, fmt.Errorf("field %s: %q is not a number", name, text)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &RangeError{Field: name, Value: v, Min: f.Min, Max: f.Ceiling(), Reason: "is not a finite number"}
	}
	return v, nil
}

func (c *Codec) writableField(name string) (FieldSpec, error) {
	f, ok := c.registry.Lookup(name)
	if !ok {
		return FieldSpec{}, &UnknownFieldError{Field: name}
	}
	if !f.Writable {
		return FieldSpec{}, &UnwritableFieldError{Field: name}
	}
	return f, nil
}

// encodeField writes the inverse of the field's decode rule into its setting bytes
func encodeField(f *FieldSpec, frame []byte, value float64) error {
	unrepresentable := func(reason string) error {
		return &RangeError{Field: f.Name, Value: value, Min: f.Min, Max: f.Ceiling(), Reason: reason}
	}

	off := f.SettingOffset

	if len(f.WriteMap) > 0 {
		if value != math.Trunc(value) {
			return unrepresentable("is not a whole write index")
		}
		frame[off] = f.WriteMap[int(value)]
		return nil
	}

	switch f.Encoding {
	case EncodingFixedPoint:
		negative := value < 0
		if negative && f.SignSentinel == 0 {
			return unrepresentable("cannot be negative")
		}

		div := f.divisor()
		mag := math.Abs(value)
		whole := math.Floor(mag)
		frac := math.Round((mag - whole) * div)
		if frac >= div {
			whole++
			frac = 0
		}
		frac += float64(f.FractionBias)
		if f.SignSentinel != 0 && frac > float64(f.SignSentinel) {
			return unrepresentable("fraction collides with the sign marker")
		}
		if negative {
			frac += float64(f.SignSentinel) + 1
		}
		if whole > 255 || frac > 255 || frac < 0 {
			return unrepresentable("does not fit the fixed point bytes")
		}
		if whole == 0 && frac == 0 {
			return unrepresentable("encodes as the unchanged marker")
		}
		frame[off] = byte(whole)
		frame[f.fractionSettingOffset()] = byte(frac)

	case EncodingUnsigned:
		raw := math.Round(value/f.scale() - f.Bias)
		limit := math.Pow(2, float64(8*f.width())) - 1
		if raw < 1 || raw > limit {
			return unrepresentable("does not fit the setting bytes")
		}
		n := uint64(raw)
		w := f.width()
		for i := 0; i < w; i++ {
			shift := uint(8 * (w - 1 - i))
			if f.LittleEndian {
				shift = uint(8 * i)
			}
			frame[off+i] = byte(n >> shift)
		}

	case EncodingSigned:
		raw := math.Round(value/f.scale() - f.Bias)
		if raw < math.MinInt8 || raw > math.MaxInt8 || raw == 0 {
			return unrepresentable("does not fit a signed setting byte")
		}
		frame[off] = byte(int8(raw))

	case EncodingBits, EncodingEnum:
		raw := value
		if f.Encoding == EncodingBits {
			raw = value/f.scale() - f.Bias
		}
		raw = math.Round(raw)
		limit := 255.0
		if f.usesBits() {
			limit = float64(int(1)<<f.BitLength - 1)
		}
		if raw < 0 || raw > limit {
			return unrepresentable("does not fit the setting bits")
		}
		b := byte(raw) << f.BitOffset
		if b == 0 {
			return unrepresentable("encodes as the unchanged marker")
		}
		frame[off] = b

	default:
		raw := math.Round(value/f.scale() - f.Bias)
		if raw < 1 || raw > 255 {
			return unrepresentable("does not fit a setting byte")
		}
		frame[off] = byte(raw)
	}

	return nil
}
