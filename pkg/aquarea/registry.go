// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

import (
	"fmt"
	"math"
	"sort"
)

// Registry is an immutable, validated set of field specifications
type Registry struct {
	fields   []FieldSpec
	byName   map[string]int
	byPacket map[uint8][]int
}

// NewRegistry validates fields and builds a registry.
// Every byte range must lie inside its frame outside the 4-byte header and
// before the checksum, and no two writable fields may share a setting byte.
func NewRegistry(fields []FieldSpec) (*Registry, error) {
	r := &Registry{
		fields:   make([]FieldSpec, len(fields)),
		byName:   make(map[string]int, len(fields)),
		byPacket: make(map[uint8][]int),
	}
	copy(r.fields, fields)

	settingOwner := make(map[int]string)

	for i := range r.fields {
		f := &r.fields[i]

		if f.Name == "" {
			return nil, &RegistryError{Field: fmt.Sprintf("#%d", i), Reason: "empty name"}
		}
		if _, dup := r.byName[f.Name]; dup {
			return nil, &RegistryError{Field: f.Name, Reason: "duplicate name"}
		}
		if err := checkReadSide(f); err != nil {
			return nil, err
		}
		if f.Writable {
			if err := checkWriteSide(f); err != nil {
				return nil, err
			}
			for _, off := range f.settingBytes() {
				if owner, taken := settingOwner[off]; taken {
					return nil, &RegistryError{
						Field:  f.Name,
						Reason: fmt.Sprintf("setting byte %d overlaps %s", off, owner),
					}
				}
				settingOwner[off] = f.Name
			}
		}

		r.byName[f.Name] = i
		r.byPacket[f.Packet] = append(r.byPacket[f.Packet], i)
	}

	return r, nil
}

func checkReadSide(f *FieldSpec) error {
	if f.Packet != PacketStandard && f.Packet != PacketExtra {
		return &RegistryError{Field: f.Name, Reason: fmt.Sprintf("unknown packet type 0x%02X", f.Packet)}
	}

	lo, hi := f.readRange()
	if lo < frameHeaderSize || hi > StatusFrameLength-1 {
		return &RegistryError{
			Field:  f.Name,
			Reason: fmt.Sprintf("bytes [%d,%d) outside status frame payload [%d,%d)", lo, hi, frameHeaderSize, StatusFrameLength-1),
		}
	}

	switch f.Encoding {
	case EncodingUnsigned:
		if f.Width > 8 {
			return &RegistryError{Field: f.Name, Reason: fmt.Sprintf("width %d exceeds 8 bytes", f.Width)}
		}
	case EncodingBits:
		if f.BitLength == 0 {
			return &RegistryError{Field: f.Name, Reason: "bit field without bit length"}
		}
	case EncodingEnum:
		if len(f.Labels) == 0 {
			return &RegistryError{Field: f.Name, Reason: "enum without labels"}
		}
	case EncodingFixedPoint:
		if f.FractionOffset == f.Offset {
			return &RegistryError{Field: f.Name, Reason: "fraction byte overlaps integer byte"}
		}
	}

	if f.BitLength < 0 || f.BitOffset < 0 || f.BitOffset+f.BitLength > 8 {
		return &RegistryError{Field: f.Name, Reason: fmt.Sprintf("bits %d+%d exceed one byte", f.BitOffset, f.BitLength)}
	}

	return nil
}

func checkWriteSide(f *FieldSpec) error {
	for _, off := range f.settingBytes() {
		if off < frameHeaderSize || off >= CommandFrameLength-1 {
			return &RegistryError{
				Field:  f.Name,
				Reason: fmt.Sprintf("setting byte %d outside setting frame payload [%d,%d)", off, frameHeaderSize, CommandFrameLength-1),
			}
		}
	}

	if f.Min > f.Max {
		return &RegistryError{Field: f.Name, Reason: fmt.Sprintf("min %g above max %g", f.Min, f.Max)}
	}

	if len(f.WriteMap) > 0 {
		if f.Min != 0 || f.Max != float64(len(f.WriteMap)-1) {
			return &RegistryError{
				Field:  f.Name,
				Reason: fmt.Sprintf("range [%g,%g] does not cover write map of %d entries", f.Min, f.Max, len(f.WriteMap)),
			}
		}
		for i, raw := range f.WriteMap {
			if raw == 0 {
				return &RegistryError{Field: f.Name, Reason: fmt.Sprintf("write map entry %d is the unchanged marker", i)}
			}
		}
	}

	if len(f.WriteLabels) > 0 && len(f.WriteLabels) != len(f.WriteMap) {
		return &RegistryError{Field: f.Name, Reason: "write labels do not match write map"}
	}

	if f.HasUserMax {
		if math.IsNaN(f.UserMax) || f.UserMax > f.Max || f.UserMax < f.Min {
			return &RegistryError{
				Field:  f.Name,
				Reason: fmt.Sprintf("user max %g outside protocol range [%g,%g]", f.UserMax, f.Min, f.Max),
			}
		}
	}

	return nil
}

// Lookup returns the field with the given name
func (r *Registry) Lookup(name string) (FieldSpec, bool) {
	i, ok := r.byName[name]
	if !ok {
		return FieldSpec{}, false
	}
	return r.fields[i], true
}

// Fields returns all fields in declaration order
func (r *Registry) Fields() []FieldSpec {
	out := make([]FieldSpec, len(r.fields))
	copy(out, r.fields)
	return out
}

// Packet returns the fields carried by a packet type, in declaration order
func (r *Registry) Packet(packetType uint8) []FieldSpec {
	idx := r.byPacket[packetType]
	out := make([]FieldSpec, len(idx))
	for i, j := range idx {
		out[i] = r.fields[j]
	}
	return out
}

// Writable returns the names of all writable fields, sorted
func (r *Registry) Writable() []string {
	var names []string
	for _, f := range r.fields {
		if f.Writable {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names
}

// WithLimits returns a copy of the registry with operator ceilings applied.
// Limits on unknown or read-only fields, or outside the protocol range, are rejected.
func (r *Registry) WithLimits(limits map[string]float64) (*Registry, error) {
	fields := r.Fields()
	for name, max := range limits {
		i, ok := r.byName[name]
		if !ok {
			return nil, &RegistryError{Field: name, Reason: "limit on unknown field"}
		}
		if !fields[i].Writable {
			return nil, &RegistryError{Field: name, Reason: "limit on read-only field"}
		}
		fields[i].UserMax = max
		fields[i].HasUserMax = true
	}
	return NewRegistry(fields)
}
