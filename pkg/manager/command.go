// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package manager

import (
	"context"
	"time"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
)

// Kind distinguishes query commands from setting commands
type Kind int

const (
	KindQuery Kind = iota
	KindSetting
)

func (k Kind) String() string {
	if k == KindSetting {
		return "setting"
	}
	return "query"
}

// Command is a pending transmission. It is consumed exactly once and never
// re-enqueued by the manager.
type Command struct {
	Kind       Kind
	Packet     uint8 // query packet type
	Payload    []byte
	Field      string // setting commands only
	Value      float64
	EnqueuedAt time.Time

	done chan Result
}

func newCommand(kind Kind, payload []byte, at time.Time) *Command {
	return &Command{
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: at,
		done:       make(chan Result, 1),
	}
}

// Result is the outcome of one command
type Result struct {
	Command     *Command
	Status      *aquarea.Status // decoded response, nil on failure
	Err         error
	SentAt      time.Time // zero if never transmitted
	CompletedAt time.Time
}

// Ticket lets the originator of a command learn its outcome
type Ticket struct {
	cmd *Command
}

// Command returns the ticket's command
func (t *Ticket) Command() *Command {
	return t.cmd
}

// Done returns a channel that receives the result once
func (t *Ticket) Done() <-chan Result {
	return t.cmd.done
}

// Wait blocks until the command completes or ctx ends
func (t *Ticket) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-t.cmd.done:
		return res, res.Err
	case <-ctx.Done():
		return Result{Command: t.cmd}, ctx.Err()
	}
}

// Update is published to observers once per decoded response frame
type Update struct {
	Command *Command
	Status  *aquarea.Status
}

// Observer receives decoded updates in transmission order.
// Observe is called from the manager goroutine and must not block.
type Observer interface {
	Observe(Update)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Update)

// Observe calls f(u)
func (f ObserverFunc) Observe(u Update) {
	f(u)
}
