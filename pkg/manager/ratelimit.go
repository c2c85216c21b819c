// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package manager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Write rate limit: the heat pump stores settings in EEPROM
const (
	WriteLimit  = 10
	WriteWindow = 60 * time.Minute
)

// RateLimiter counts accepted writes per field over a trailing window.
// One limiter is created per process and shared by every manager so that a
// reconnect cannot reset it.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	accepted map[string][]time.Time
	path     string
}

// NewRateLimiter creates an in-memory limiter allowing WriteLimit writes per WriteWindow
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limit:    WriteLimit,
		window:   WriteWindow,
		accepted: make(map[string][]time.Time),
	}
}

// LoadRateLimiter creates a limiter persisted at path, restoring any
// windows recorded by earlier processes
func LoadRateLimiter(path string) (*RateLimiter, error) {
	l := NewRateLimiter()
	l.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read write history %s: %w", path, err)
	}

	var history map[string][]int64
	if err := cbor.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to decode write history %s: %w", path, err)
	}
	for field, stamps := range history {
		for _, ns := range stamps {
			l.accepted[field] = append(l.accepted[field], time.Unix(0, ns))
		}
	}
	return l, nil
}

// Allow records a write for field at now if the field is under its limit.
// It returns the time the oldest counted write leaves the window when the
// write is refused.
func (l *RateLimiter) Allow(field string, now time.Time) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(field, now)
	if len(recent) >= l.limit {
		return false, recent[0].Add(l.window)
	}
	l.accepted[field] = append(recent, now)
	return true, time.Time{}
}

// Refund removes a write recorded at at, for writes that were never transmitted
func (l *RateLimiter) Refund(field string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.accepted[field]
	for i := len(stamps) - 1; i >= 0; i-- {
		if stamps[i].Equal(at) {
			l.accepted[field] = append(stamps[:i], stamps[i+1:]...)
			return
		}
	}
}

// Count returns the writes counted for field in the window ending at now
func (l *RateLimiter) Count(field string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(field, now))
}

// prune drops writes older than the window; callers hold mu
func (l *RateLimiter) prune(field string, now time.Time) []time.Time {
	stamps := l.accepted[field]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		stamps = append(stamps[:0], stamps[i:]...)
		l.accepted[field] = stamps
	}
	return stamps
}

// Persist writes the history to the limiter's file, if it has one
func (l *RateLimiter) Persist() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path == "" {
		return nil
	}

	history := make(map[string][]int64, len(l.accepted))
	for field, stamps := range l.accepted {
		for _, s := range stamps {
			history[field] = append(history[field], s.UnixNano())
		}
	}

	data, err := cbor.Marshal(history)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
