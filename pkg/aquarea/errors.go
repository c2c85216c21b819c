// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

import (
	"errors"
	"fmt"
)

// ErrUnknownPacket is returned when a status frame carries an unknown packet type
var ErrUnknownPacket = errors.New("unknown packet type")

// ChecksumError reports a frame whose trailing byte does not match its contents
type ChecksumError struct {
	Got  byte
	Want byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%02X, got 0x%02X", e.Want, e.Got)
}

// FrameLengthError reports a frame whose length does not match its header
type FrameLengthError struct {
	Header byte
	Got    int
	Want   int // 0 when the header itself is not recognised
}

func (e *FrameLengthError) Error() string {
	if e.Want == 0 {
		return fmt.Sprintf("unrecognised frame header 0x%02X (length %d)", e.Header, e.Got)
	}
	return fmt.Sprintf("frame length mismatch: header 0x%02X expects %d bytes, got %d", e.Header, e.Want, e.Got)
}

// RangeError reports a write value outside the field's allowed range
type RangeError struct {
	Field     string
	Value     float64
	Min       float64
	Max       float64
	UserLimit bool // Max is the operator ceiling rather than the protocol maximum
	Reason    string
}

func (e *RangeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("field %s: value %g %s", e.Field, e.Value, e.Reason)
	}
	limit := "protocol"
	if e.UserLimit {
		limit = "configured"
	}
	return fmt.Sprintf("field %s: value %g outside %s range [%g, %g]", e.Field, e.Value, limit, e.Min, e.Max)
}

// UnwritableFieldError reports a write to a read-only field
type UnwritableFieldError struct {
	Field string
}

func (e *UnwritableFieldError) Error() string {
	return fmt.Sprintf("field %s is not writable", e.Field)
}

// UnknownFieldError reports a field name missing from the registry
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}

// RegistryError reports an inconsistent field specification
type RegistryError struct {
	Field  string
	Reason string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}
