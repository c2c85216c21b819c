// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package manager

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimitExceeded is returned when a field has used its write budget
	ErrRateLimitExceeded = errors.New("write rate limit exceeded")

	// ErrResponseTimeout fails a command that got no valid response in time
	ErrResponseTimeout = errors.New("no valid response within timeout")

	// ErrShutdown fails commands still queued when the manager stops
	ErrShutdown = errors.New("manager shut down")
)

// RateLimitError details a refused write. It matches ErrRateLimitExceeded.
type RateLimitError struct {
	Field   string
	Limit   int
	Window  time.Duration
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("field %s: %v (%d per %s, retry after %s)",
		e.Field, ErrRateLimitExceeded, e.Limit, e.Window, e.RetryAt.Format(time.RFC3339))
}

// Is reports whether target is ErrRateLimitExceeded
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}
