// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotSetting is returned by DecodeSetting for frames that are not setting commands
var ErrNotSetting = errors.New("not a setting frame")

// Codec decodes status frames and encodes setting commands against a registry.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	registry *Registry
}

// NewCodec creates a codec over the given registry
func NewCodec(registry *Registry) *Codec {
	return &Codec{registry: registry}
}

// Registry returns the codec's field registry
func (c *Codec) Registry() *Registry {
	return c.registry
}

// Decode decodes a 203-byte status frame, stamping readings with the current time
func (c *Codec) Decode(frame []byte) (*Status, error) {
	return c.DecodeAt(frame, time.Now())
}

// DecodeAt decodes a 203-byte status frame, stamping readings with at.
// The frame is validated before any field is read.
func (c *Codec) DecodeAt(frame []byte, at time.Time) (*Status, error) {
	if len(frame) != StatusFrameLength {
		var header byte
		if len(frame) > 0 {
			header = frame[0]
		}
		return nil, &FrameLengthError{Header: header, Got: len(frame), Want: StatusFrameLength}
	}
	if err := Validate(frame); err != nil {
		return nil, err
	}

	packet := frame[packetTypeOffset]
	fields := c.registry.Packet(packet)
	if packet != PacketStandard && packet != PacketExtra {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownPacket, packet)
	}

	status := &Status{
		Packet:    packet,
		Readings:  make([]Reading, 0, len(fields)),
		Timestamp: at,
	}

	for i := range fields {
		f := &fields[i]
		v := decodeField(f, frame, f.Offset, f.FractionOffset)

		// Zero means the heat pump has no data for this field yet
		if f.SkipZero && v.Raw == 0 {
			continue
		}

		if f.Class == ClassTemperature && (v.Number < plausibleTempMin || v.Number > plausibleTempMax) {
			status.Anomalies = append(status.Anomalies, Anomaly{Field: f.Name, Value: v.Number, Raw: v.Raw})
			continue
		}

		status.Readings = append(status.Readings, Reading{
			Field:     f.Name,
			Value:     v,
			Unit:      f.Unit,
			Timestamp: at,
		})
	}

	return status, nil
}

// DecodeSetting returns the values carried by a 110-byte setting command.
// Fields whose setting bytes are all zero are left unchanged and omitted.
func (c *Codec) DecodeSetting(frame []byte) (map[string]float64, error) {
	if len(frame) != CommandFrameLength {
		var header byte
		if len(frame) > 0 {
			header = frame[0]
		}
		return nil, &FrameLengthError{Header: header, Got: len(frame), Want: CommandFrameLength}
	}
	if frame[0] != HeaderSetting {
		return nil, fmt.Errorf("%w: header 0x%02X", ErrNotSetting, frame[0])
	}
	if err := Validate(frame); err != nil {
		return nil, err
	}

	values := make(map[string]float64)
	for _, f := range c.registry.Fields() {
		if !f.Writable || untouched(&f, frame) {
			continue
		}

		if len(f.WriteMap) > 0 {
			code := frame[f.SettingOffset]
			for i, raw := range f.WriteMap {
				if raw == code {
					values[f.Name] = float64(i)
					break
				}
			}
			continue
		}

		v := decodeField(&f, frame, f.SettingOffset, f.fractionSettingOffset())
		values[f.Name] = v.Number
	}

	return values, nil
}

func untouched(f *FieldSpec, frame []byte) bool {
	for _, off := range f.settingBytes() {
		if frame[off] != 0 {
			return false
		}
	}
	return true
}

// decodeField applies the field's encoding to the bytes at off (and fracOff for fixed point)
func decodeField(f *FieldSpec, frame []byte, off, fracOff int) Value {
	switch f.Encoding {
	case EncodingUnsigned:
		raw := readUnsigned(frame[off:off+f.width()], f.LittleEndian)
		return Value{Raw: raw, Number: f.linear(float64(raw))}

	case EncodingSigned:
		b := frame[off]
		return Value{Raw: uint64(b), Number: f.linear(float64(int8(b)))}

	case EncodingFixedPoint:
		whole, frac := frame[off], frame[fracOff]
		return Value{
			Raw:    uint64(whole)<<8 | uint64(frac),
			Number: f.fixedPoint(whole, frac),
		}

	case EncodingBits:
		raw := uint64(f.extractBits(frame[off]))
		return Value{Raw: raw, Number: f.linear(float64(raw))}

	case EncodingEnum:
		raw := frame[off]
		if f.usesBits() {
			raw = f.extractBits(raw)
		}
		label, ok := f.Label(raw)
		return Value{Raw: uint64(raw), Number: float64(raw), Label: label, Unknown: !ok}

	default:
		b := frame[off]
		return Value{Raw: uint64(b), Number: f.linear(float64(b))}
	}
}

func (f *FieldSpec) linear(raw float64) float64 {
	return (raw + f.Bias) * f.scale()
}

func (f *FieldSpec) extractBits(b byte) byte {
	return (b & f.bitMask()) >> f.BitOffset
}

func (f *FieldSpec) fixedPoint(whole, frac byte) float64 {
	negative := f.SignSentinel != 0 && frac > f.SignSentinel
	if negative {
		frac -= f.SignSentinel + 1
	}

	v := float64(whole) + float64(int(frac)-f.FractionBias)/f.divisor()
	if negative {
		return -v
	}
	return v
}

func readUnsigned(b []byte, littleEndian bool) uint64 {
	var v uint64
	for i := range b {
		idx := i
		if littleEndian {
			idx = len(b) - 1 - i
		}
		v = v<<8 | uint64(b[idx])
	}
	return v
}
