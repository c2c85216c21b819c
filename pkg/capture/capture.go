// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture stores line traffic as a CBOR sequence of frame records
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction tells which side of the line sent a frame
type Direction uint8

const (
	// FromController is a query or setting command
	FromController Direction = iota
	// FromHeatPump is a status frame
	FromHeatPump
)

func (d Direction) String() string {
	if d == FromHeatPump {
		return "rx"
	}
	return "tx"
}

// Record is one captured frame
type Record struct {
	UnixNano  int64     `cbor:"1,keyasint"`
	Direction Direction `cbor:"2,keyasint"`
	Frame     []byte    `cbor:"3,keyasint"`
}

// NewRecord builds a record for a frame seen at t
func NewRecord(t time.Time, dir Direction, frame []byte) Record {
	return Record{UnixNano: t.UnixNano(), Direction: dir, Frame: frame}
}

// Time returns when the frame was seen
func (r Record) Time() time.Time {
	return time.Unix(0, r.UnixNano)
}

// Writer appends records to a stream
type Writer struct {
	enc *cbor.Encoder
}

// NewWriter creates a capture writer
func NewWriter(w io.Writer) (*Writer, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return &Writer{enc: em.NewEncoder(w)}, nil
}

// Write appends one record
func (w *Writer) Write(rec Record) error {
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write capture record: %w", err)
	}
	return nil
}

// Reader reads records back from a stream
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a capture reader
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read capture record: %w", err)
	}
	return rec, nil
}
