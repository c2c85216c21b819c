// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	ChecksumErrors  uint64
	LengthErrors    uint64
	UnknownPackets  uint64
	DecodeErrors    uint64
	QueryFrames     uint64
	SettingFrames   uint64
	StatusFrames    uint64
	AnomalousValues uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a frame and the error from validating or decoding it.
// status may be nil for command frames.
func (s *Statistics) Update(frame []byte, err error, status *Status) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if err != nil {
		var checksumErr *ChecksumError
		var lengthErr *FrameLengthError
		switch {
		case errors.As(err, &checksumErr):
			s.ChecksumErrors++
		case errors.As(err, &lengthErr):
			s.LengthErrors++
		case errors.Is(err, ErrUnknownPacket):
			s.UnknownPackets++
		default:
			s.DecodeErrors++
		}
		return
	}

	s.ValidFrames++

	switch {
	case len(frame) == StatusFrameLength:
		s.StatusFrames++
	case len(frame) > 0 && frame[0] == HeaderSetting:
		s.SettingFrames++
	default:
		s.QueryFrames++
	}

	if status != nil {
		s.AnomalousValues += uint64(len(status.Anomalies))
	}
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

func (s *Statistics) errorCount() uint64 {
	return s.ChecksumErrors + s.LengthErrors + s.UnknownPackets + s.DecodeErrors
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames))
	result += fmt.Sprintf("  Queries:          %5d\n", s.QueryFrames)
	result += fmt.Sprintf("  Settings:         %5d\n", s.SettingFrames)
	result += fmt.Sprintf("  Status:           %5d\n", s.StatusFrames)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors))
	}
	if s.LengthErrors > 0 {
		result += fmt.Sprintf("Length Errors:   %8d (%.1f%%)\n", s.LengthErrors, percent(s.LengthErrors))
	}
	if s.UnknownPackets > 0 {
		result += fmt.Sprintf("Unknown Packets: %8d (%.1f%%)\n", s.UnknownPackets, percent(s.UnknownPackets))
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", s.AnomalousValues)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
