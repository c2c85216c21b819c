// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package uart owns the physical link to the heat pump and cuts the byte
// stream into frames. It has no knowledge of frame contents.
package uart

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Line is a raw byte link to the heat pump: a serial port or a
// serial-over-network bridge
type Line interface {
	io.Writer
	io.Closer

	// ReadTimeout reads whatever bytes are available, waiting at most d.
	// It returns 0, nil when d elapses without data.
	ReadTimeout(p []byte, d time.Duration) (int, error)
}

// InputResetter is implemented by lines that can drop bytes received but not
// yet read
type InputResetter interface {
	ResetInput() error
}

// ErrReadTimeout is returned by ReadFrame when no complete frame arrived in time
var ErrReadTimeout = errors.New("read timeout")

// ErrLineClosed is returned by lines whose peer has gone away
var ErrLineClosed = errors.New("line closed")

// TransportError reports a line-level fault (parity, disconnect, closed port).
// It fails the current operation; the owner decides whether to reconnect.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
