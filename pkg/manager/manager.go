// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package manager serialises all traffic on the heat pump line.
//
// A single goroutine (Run) owns the in-flight slot and is the only user of
// the transport. Write requests and the periodic query ticker only push onto
// a FIFO queue. At most one command is outstanding at any time; a command is
// completed by the first valid response or failed after ResponseTimeout.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
	"github.com/Thermoquad/heatlink/pkg/uart"
)

const (
	// ResponseTimeout bounds the wait for a response after each transmission
	ResponseTimeout = 2000 * time.Millisecond

	// StartupDelay is the quiet period after the line becomes ready
	StartupDelay = 1500 * time.Millisecond

	// MinQueryInterval is the floor for the periodic query interval
	MinQueryInterval = 5 * time.Second

	// DefaultQueryInterval is used when no interval is configured
	DefaultQueryInterval = 30 * time.Second
)

// Transport is the line the manager owns
type Transport interface {
	// Flush drops received bytes that no command has claimed
	Flush() error
	Write(p []byte) error
	ReadFrame(timeout time.Duration) ([]byte, error)
}

// Recorder receives manager events, typically for metrics
type Recorder interface {
	CommandSent(kind string)
	ResponseDecoded(packet uint8)
	CommandFailed(reason string)
	InvalidFrame(reason string)
	WriteRejected(field, reason string)
	QueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) CommandSent(string)           {}
func (nopRecorder) ResponseDecoded(uint8)        {}
func (nopRecorder) CommandFailed(string)         {}
func (nopRecorder) InvalidFrame(string)          {}
func (nopRecorder) WriteRejected(string, string) {}
func (nopRecorder) QueueDepth(int)               {}

// Config configures a manager
type Config struct {
	Codec     *aquarea.Codec
	Transport Transport

	// Limiter is shared by every manager in the process. Nil creates a private one.
	Limiter *RateLimiter

	QueryInterval time.Duration // raised to MinQueryInterval
	ExtraQuery    bool          // also poll the extra (0x21) packet
	NoPolling     bool          // only send explicitly requested commands

	// ReadyAt is when the transport became ready. Zero means now.
	ReadyAt time.Time

	Clock     clock.Clock
	Observers []Observer
	Recorder  Recorder
	Logger    *logrus.Entry
}

// State is the slot state
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
)

func (s State) String() string {
	if s == StateAwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

// Slot is the single in-flight command
type Slot struct {
	State   State
	Command *Command
	SentAt  time.Time
}

// Manager owns the heat pump line for one connection
type Manager struct {
	codec     *aquarea.Codec
	transport Transport
	limiter   *RateLimiter
	clock     clock.Clock
	observers []Observer
	rec       Recorder
	log       *logrus.Entry

	interval time.Duration
	extra    bool
	polling  bool
	readyAt  time.Time

	mu      sync.Mutex
	queue   []*Command
	slot    Slot
	stopped bool

	wake   chan struct{}
	faults chan error
}

// New creates a manager. Call Run to start it.
func New(cfg Config) *Manager {
	m := &Manager{
		codec:     cfg.Codec,
		transport: cfg.Transport,
		limiter:   cfg.Limiter,
		clock:     cfg.Clock,
		observers: cfg.Observers,
		rec:       cfg.Recorder,
		log:       cfg.Logger,
		interval:  cfg.QueryInterval,
		extra:     cfg.ExtraQuery,
		polling:   !cfg.NoPolling,
		readyAt:   cfg.ReadyAt,
		wake:      make(chan struct{}, 1),
		faults:    make(chan error, 1),
	}

	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.limiter == nil {
		m.limiter = NewRateLimiter()
	}
	if m.rec == nil {
		m.rec = nopRecorder{}
	}
	if m.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		m.log = logrus.NewEntry(discard)
	}
	if m.interval == 0 {
		m.interval = DefaultQueryInterval
	}
	if m.interval < MinQueryInterval {
		m.log.WithFields(logrus.Fields{
			"configured": m.interval,
			"floor":      MinQueryInterval,
		}).Warn("query interval below floor, raising")
		m.interval = MinQueryInterval
	}
	if m.readyAt.IsZero() {
		m.readyAt = m.clock.Now()
	}

	return m
}

// QueryInterval returns the effective periodic query interval
func (m *Manager) QueryInterval() time.Duration {
	return m.interval
}

// RequestWrite validates a write, charges it to the field's rate limit and
// queues it. Range and writability errors are returned before the limit is
// consulted; a refused write is never queued.
func (m *Manager) RequestWrite(field string, value float64) (*Ticket, error) {
	payload, err := m.codec.Encode(field, value)
	if err != nil {
		m.rec.WriteRejected(field, rejectReason(err))
		m.log.WithError(err).WithField("field", field).Warn("write rejected")
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrShutdown
	}

	now := m.clock.Now()
	if ok, retryAt := m.limiter.Allow(field, now); !ok {
		m.rec.WriteRejected(field, "rate_limit")
		err := &RateLimitError{Field: field, Limit: WriteLimit, Window: WriteWindow, RetryAt: retryAt}
		m.log.WithField("field", field).Warn(err.Error())
		return nil, err
	}
	if err := m.limiter.Persist(); err != nil {
		m.log.WithError(err).Warn("failed to persist write history")
	}

	cmd := newCommand(KindSetting, payload, now)
	cmd.Field = field
	cmd.Value = value
	m.pushLocked(cmd)

	m.log.WithFields(logrus.Fields{
		"field": field,
		"value": value,
		"queue": len(m.queue),
	}).Info("write queued")

	return &Ticket{cmd: cmd}, nil
}

// RequestQuery queues an explicit query for a packet type
func (m *Manager) RequestQuery(packetType uint8) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrShutdown
	}

	cmd := newCommand(KindQuery, aquarea.QueryFrame(packetType), m.clock.Now())
	cmd.Packet = packetType
	m.pushLocked(cmd)
	return &Ticket{cmd: cmd}, nil
}

// injectQuery queues a query unless one for the same packet type is already waiting
func (m *Manager) injectQuery(packetType uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return false
	}
	for _, c := range m.queue {
		if c.Kind == KindQuery && c.Packet == packetType {
			return false
		}
	}

	cmd := newCommand(KindQuery, aquarea.QueryFrame(packetType), m.clock.Now())
	cmd.Packet = packetType
	m.pushLocked(cmd)
	return true
}

func (m *Manager) injectPeriodic() {
	if !m.injectQuery(aquarea.PacketStandard) {
		m.log.Debug("query already pending, skipping")
	}
	if m.extra {
		m.injectQuery(aquarea.PacketExtra)
	}
}

// pushLocked appends to the queue and wakes the owner; callers hold mu
func (m *Manager) pushLocked(cmd *Command) {
	m.queue = append(m.queue, cmd)
	m.rec.QueueDepth(len(m.queue))
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) next() *Command {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil
	}
	cmd := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	m.rec.QueueDepth(len(m.queue))
	return cmd
}

// State returns a snapshot of the in-flight slot
func (m *Manager) State() Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot
}

// QueueLen returns the number of queued commands
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Faults delivers transport errors; the owner should reconnect
func (m *Manager) Faults() <-chan error {
	return m.faults
}

func (m *Manager) setSlot(s Slot) {
	m.mu.Lock()
	m.slot = s
	m.mu.Unlock()
}

// Run owns the line until ctx ends or the transport fails. Queued commands
// are failed with ErrShutdown on return. It returns nil on cancellation and
// the *uart.TransportError otherwise.
func (m *Manager) Run(ctx context.Context) error {
	m.log.WithFields(logrus.Fields{
		"interval": m.interval,
		"extra":    m.extra,
		"polling":  m.polling,
	}).Info("manager started")

	if err := m.awaitStartup(ctx); err != nil {
		m.drain()
		return nil
	}

	if m.polling {
		pollCtx, stopPolling := context.WithCancel(ctx)
		defer stopPolling()
		m.injectPeriodic()
		go m.poll(pollCtx)
	}

	for {
		if ctx.Err() != nil {
			m.drain()
			m.log.Info("manager stopped")
			return nil
		}

		cmd := m.next()
		if cmd == nil {
			select {
			case <-ctx.Done():
			case <-m.wake:
			}
			continue
		}

		if err := m.execute(cmd); err != nil {
			select {
			case m.faults <- err:
			default:
			}
			m.drain()
			m.log.WithError(err).Error("transport fault, manager stopped")
			return err
		}
	}
}

// awaitStartup blocks until StartupDelay has passed since the line became ready
func (m *Manager) awaitStartup(ctx context.Context) error {
	wait := m.readyAt.Add(StartupDelay).Sub(m.clock.Now())
	if wait <= 0 {
		return nil
	}

	m.log.WithField("delay", wait).Debug("waiting for line to settle")
	timer := m.clock.Timer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Manager) poll(ctx context.Context) {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.injectPeriodic()
		}
	}
}

// execute transmits one command and waits for its response. It returns an
// error only for transport faults; timeouts and bad frames fail the command.
func (m *Manager) execute(cmd *Command) error {
	log := m.log.WithFields(logrus.Fields{
		"kind":   cmd.Kind.String(),
		"packet": fmt.Sprintf("0x%02X", cmd.Payload[3]),
	})
	if cmd.Field != "" {
		log = log.WithField("field", cmd.Field)
	}

	// A reply that missed an earlier deadline must not answer this command
	if err := m.transport.Flush(); err != nil {
		m.rec.CommandFailed("transport")
		m.complete(cmd, Result{Err: err})
		return err
	}
	if err := m.transport.Write(cmd.Payload); err != nil {
		m.rec.CommandFailed("transport")
		m.complete(cmd, Result{Err: err})
		return err
	}

	sentAt := m.clock.Now()
	m.setSlot(Slot{State: StateAwaitingResponse, Command: cmd, SentAt: sentAt})
	defer m.setSlot(Slot{})

	m.rec.CommandSent(cmd.Kind.String())
	log.Debug("command sent")

	deadline := sentAt.Add(ResponseTimeout)
	var lastInvalid error

	for {
		remaining := deadline.Sub(m.clock.Now())
		if remaining <= 0 {
			m.timeout(cmd, sentAt, lastInvalid, log)
			return nil
		}

		frame, err := m.transport.ReadFrame(remaining)
		if errors.Is(err, uart.ErrReadTimeout) {
			m.timeout(cmd, sentAt, lastInvalid, log)
			return nil
		}
		if err != nil {
			m.rec.CommandFailed("transport")
			m.complete(cmd, Result{Err: err, SentAt: sentAt})
			return err
		}

		status, err := m.codec.DecodeAt(frame, m.clock.Now())
		if err != nil {
			// A corrupt frame is never trusted; keep listening for the real response
			lastInvalid = err
			m.rec.InvalidFrame(invalidReason(err))
			log.WithError(err).Warn("discarding invalid frame")
			continue
		}

		m.rec.ResponseDecoded(status.Packet)
		for _, a := range status.Anomalies {
			log.WithField("anomaly", a.String()).Warn("implausible value dropped")
		}

		update := Update{Command: cmd, Status: status}
		for _, o := range m.observers {
			o.Observe(update)
		}

		m.complete(cmd, Result{Status: status, SentAt: sentAt})
		log.WithField("readings", len(status.Readings)).Debug("response decoded")
		return nil
	}
}

func (m *Manager) timeout(cmd *Command, sentAt time.Time, lastInvalid error, log *logrus.Entry) {
	err := ErrResponseTimeout
	if lastInvalid != nil {
		err = fmt.Errorf("%w (last invalid frame: %v)", ErrResponseTimeout, lastInvalid)
	}
	m.rec.CommandFailed("timeout")
	log.WithError(err).Warn("command failed")
	m.complete(cmd, Result{Err: err, SentAt: sentAt})
}

func (m *Manager) complete(cmd *Command, res Result) {
	res.Command = cmd
	res.CompletedAt = m.clock.Now()
	select {
	case cmd.done <- res:
	default:
	}
}

// drain fails every queued command without transmitting it. Writes that
// never reached the line are refunded to the rate limiter.
func (m *Manager) drain() {
	m.mu.Lock()
	m.stopped = true
	queue := m.queue
	m.queue = nil
	m.rec.QueueDepth(0)
	m.mu.Unlock()

	refunded := false
	for _, cmd := range queue {
		if cmd.Kind == KindSetting {
			m.limiter.Refund(cmd.Field, cmd.EnqueuedAt)
			refunded = true
		}
		m.complete(cmd, Result{Err: ErrShutdown})
	}

	if refunded {
		if err := m.limiter.Persist(); err != nil {
			m.log.WithError(err).Warn("failed to persist write history")
		}
	}
	if len(queue) > 0 {
		m.log.WithField("dropped", len(queue)).Info("queued commands cancelled")
	}
}

func rejectReason(err error) string {
	var rangeErr *aquarea.RangeError
	var unwritable *aquarea.UnwritableFieldError
	var unknown *aquarea.UnknownFieldError
	switch {
	case errors.As(err, &rangeErr):
		return "range"
	case errors.As(err, &unwritable):
		return "unwritable"
	case errors.As(err, &unknown):
		return "unknown_field"
	default:
		return "invalid"
	}
}

func invalidReason(err error) string {
	var checksumErr *aquarea.ChecksumError
	var lengthErr *aquarea.FrameLengthError
	switch {
	case errors.As(err, &checksumErr):
		return "checksum"
	case errors.As(err, &lengthErr):
		return "length"
	case errors.Is(err, aquarea.ErrUnknownPacket):
		return "packet"
	default:
		return "decode"
	}
}
