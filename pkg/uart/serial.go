// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uart

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Heat pump line defaults: 9600 baud, 8 data bits, even parity, 1 stop bit
const (
	DefaultBaudRate = 9600
	DefaultParity   = "even"
)

// SerialLine wraps a serial port
type SerialLine struct {
	port serial.Port
	name string
}

// ParseParity converts a parity name to its serial setting
func ParseParity(name string) (serial.Parity, error) {
	switch strings.ToLower(name) {
	case "", "even", "e":
		return serial.EvenParity, nil
	case "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	default:
		return serial.NoParity, fmt.Errorf("unknown parity %q (use even, odd or none)", name)
	}
}

// OpenSerial opens a serial port in 8-bit, one stop bit mode and discards
// anything left in its input buffer
func OpenSerial(portName string, baudRate int, parity string) (*SerialLine, error) {
	p, err := ParseParity(parity)
	if err != nil {
		return nil, err
	}
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   p,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	// Stale bytes would only desynchronise the first frame
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset serial port %s: %w", portName, err)
	}

	return &SerialLine{port: port, name: portName}, nil
}

// ReadTimeout reads available bytes, waiting at most d
func (s *SerialLine) ReadTimeout(p []byte, d time.Duration) (int, error) {
	if err := s.port.SetReadTimeout(d); err != nil {
		return 0, err
	}
	return s.port.Read(p)
}

// ResetInput discards the port's input buffer
func (s *SerialLine) ResetInput() error {
	return s.port.ResetInputBuffer()
}

func (s *SerialLine) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialLine) Close() error {
	return s.port.Close()
}

// String returns the port name
func (s *SerialLine) String() string {
	return s.name
}
