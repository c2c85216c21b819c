// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

// Checksum returns the low byte of the sum of data
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Seal writes the checksum of all preceding bytes into the last byte of frame
func Seal(frame []byte) {
	if len(frame) == 0 {
		return
	}
	frame[len(frame)-1] = Checksum(frame[:len(frame)-1])
}

// Validate checks that the frame length matches its header and that the
// checksum byte is correct. A frame failing either check must be discarded.
func Validate(frame []byte) error {
	if len(frame) < 2 {
		var header byte
		if len(frame) == 1 {
			header = frame[0]
		}
		return &FrameLengthError{Header: header, Got: len(frame)}
	}

	want, ok := FrameLength(frame[0], frame[1])
	if !ok {
		return &FrameLengthError{Header: frame[0], Got: len(frame)}
	}
	if len(frame) != want {
		return &FrameLengthError{Header: frame[0], Got: len(frame), Want: want}
	}

	expected := Checksum(frame[:len(frame)-1])
	if got := frame[len(frame)-1]; got != expected {
		return &ChecksumError{Got: got, Want: expected}
	}

	return nil
}

// QueryFrame builds a 110-byte query command for the given packet type
func QueryFrame(packetType uint8) []byte {
	frame := make([]byte, CommandFrameLength)
	frame[0] = HeaderQuery
	frame[1] = LengthByteCommand
	frame[2] = destinationByte
	frame[3] = packetType
	Seal(frame)
	return frame
}

// newSettingFrame returns a zero-filled setting command with header bytes set
func newSettingFrame() []byte {
	frame := make([]byte, CommandFrameLength)
	frame[0] = HeaderSetting
	frame[1] = LengthByteCommand
	frame[2] = destinationByte
	frame[3] = PacketStandard
	return frame
}
