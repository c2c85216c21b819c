// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uart

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// FrameSizer reports the total length of a frame given its first two bytes.
// It returns false if the pair cannot start a frame.
type FrameSizer func(header, length byte) (int, bool)

const readChunkSize = 256

// Transport cuts a line's byte stream into length-delimited frames.
// It is not safe for concurrent use; one owner reads and writes.
type Transport struct {
	line    Line
	size    FrameSizer
	log     *logrus.Entry
	pending []byte
	buf     []byte
	skipped atomic.Uint64
}

// NewTransport creates a transport over line.
// A nil logger discards transport logs.
func NewTransport(line Line, size FrameSizer, log *logrus.Entry) *Transport {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = logrus.NewEntry(discard)
	}
	return &Transport{
		line:    line,
		size:    size,
		log:     log,
		pending: make([]byte, 0, 2*readChunkSize),
		buf:     make([]byte, readChunkSize),
	}
}

// Write sends exactly p
func (t *Transport) Write(p []byte) error {
	n, err := t.line.Write(p)
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if n != len(p) {
		return &TransportError{Op: "write", Err: io.ErrShortWrite}
	}
	return nil
}

// ReadFrame blocks until a complete frame arrives or timeout elapses.
// Bytes that cannot start a frame are skipped. A partial frame left at the
// deadline is discarded and ErrReadTimeout returned.
func (t *Transport) ReadFrame(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		if frame := t.extract(); frame != nil {
			return frame, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if len(t.pending) > 0 {
				t.log.WithField("bytes", len(t.pending)).Debug("discarding partial frame")
				t.pending = t.pending[:0]
			}
			return nil, ErrReadTimeout
		}

		n, err := t.line.ReadTimeout(t.buf, remaining)
		if err != nil {
			t.pending = t.pending[:0]
			return nil, &TransportError{Op: "read", Err: err}
		}
		t.pending = append(t.pending, t.buf[:n]...)
	}
}

// Flush drops bytes received but not yet returned as a frame, including any
// the line still buffers. Called before a write so a late reply to an earlier
// request is not taken as the answer to the next one.
func (t *Transport) Flush() error {
	if n := len(t.pending); n > 0 {
		t.log.WithField("bytes", n).Debug("flushing stale bytes")
		t.pending = t.pending[:0]
	}
	if r, ok := t.line.(InputResetter); ok {
		if err := r.ResetInput(); err != nil {
			return &TransportError{Op: "flush", Err: err}
		}
	}
	return nil
}

// Skipped returns the number of bytes dropped while resynchronising.
// It may be called from any goroutine.
func (t *Transport) Skipped() uint64 {
	return t.skipped.Load()
}

// Close closes the underlying line
func (t *Transport) Close() error {
	return t.line.Close()
}

// extract returns the first complete frame in pending, or nil
func (t *Transport) extract() []byte {
	skip := 0
	for skip+1 < len(t.pending) {
		if _, ok := t.size(t.pending[skip], t.pending[skip+1]); ok {
			break
		}
		skip++
	}
	if skip > 0 {
		t.skipped.Add(uint64(skip))
		t.log.WithField("bytes", skip).Debug("skipped bytes while resynchronising")
		t.pending = append(t.pending[:0], t.pending[skip:]...)
	}

	if len(t.pending) < 2 {
		return nil
	}
	n, ok := t.size(t.pending[0], t.pending[1])
	if !ok || len(t.pending) < n {
		return nil
	}

	frame := make([]byte, n)
	copy(frame, t.pending[:n])
	t.pending = append(t.pending[:0], t.pending[n:]...)
	return frame
}
