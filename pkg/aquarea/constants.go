// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package aquarea implements the Panasonic Aquarea heat pump UART protocol.
//
// The heat pump speaks fixed-length frames over a half-duplex 9600 baud 8E1
// line. A controller sends 110-byte query (0x71) or setting (0xF1) commands and
// the heat pump answers each one with a 203-byte status frame. The last byte of
// every frame is a checksum: the low byte of the sum of all preceding bytes.
//
// This package provides the field registry, frame validation, status decoding
// and setting encoding. It has no knowledge of the serial line.
package aquarea

// Frame header bytes
const (
	HeaderQuery   = 0x71
	HeaderSetting = 0xF1
)

// Frame length bytes (second byte of every frame)
const (
	LengthByteCommand = 0x6C
	LengthByteStatus  = 0xC8
)

// Frame sizes, checksum included
const (
	CommandFrameLength = 110
	StatusFrameLength  = 203
)

// Packet types (fourth byte of every frame)
const (
	PacketStandard = 0x10
	PacketExtra    = 0x21
)

const (
	destinationByte = 0x01

	// Bytes 0-3 carry header, length, destination and packet type.
	frameHeaderSize = 4

	// Offset of the packet type byte.
	packetTypeOffset = 3
)

// Temperature-class readings outside this window are treated as line noise.
const (
	plausibleTempMin = -50.0
	plausibleTempMax = 100.0
)

// FrameLength returns the total length of a frame given its first two bytes.
// The second return value is false if the pair does not start a known frame.
func FrameLength(header, length byte) (int, bool) {
	switch {
	case header == HeaderQuery && length == LengthByteStatus:
		return StatusFrameLength, true
	case header == HeaderQuery && length == LengthByteCommand:
		return CommandFrameLength, true
	case header == HeaderSetting && length == LengthByteCommand:
		return CommandFrameLength, true
	default:
		return 0, false
	}
}

// IsHeader reports whether b can start a frame
func IsHeader(b byte) bool {
	return b == HeaderQuery || b == HeaderSetting
}
