// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqttbridge publishes decoded readings to MQTT and turns set
// requests from the broker into manager writes
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
	"github.com/Thermoquad/heatlink/pkg/manager"
)

// ErrLineUnavailable is reported for set requests while no manager is bound
var ErrLineUnavailable = errors.New("heat pump line unavailable")

const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	// resultTimeout bounds how long a queued write may take to be answered
	resultTimeout = 5 * time.Minute
)

// Client is the part of mqtt.Client the bridge uses
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Waiter reports the outcome of an accepted write. *manager.Ticket satisfies it.
type Waiter interface {
	Wait(ctx context.Context) (manager.Result, error)
}

// Writer accepts write requests
type Writer interface {
	RequestWrite(field string, value float64) (Waiter, error)
}

// WriterFunc adapts a function to Writer
type WriterFunc func(field string, value float64) (Waiter, error)

// RequestWrite calls f(field, value)
func (f WriterFunc) RequestWrite(field string, value float64) (Waiter, error) {
	return f(field, value)
}

// ManagerWriter routes writes to m
func ManagerWriter(m *manager.Manager) Writer {
	return WriterFunc(func(field string, value float64) (Waiter, error) {
		ticket, err := m.RequestWrite(field, value)
		if err != nil {
			return nil, err
		}
		return ticket, nil
	})
}

// Result is published on <prefix>/set/<field>/result
type Result struct {
	Field    string  `json:"field"`
	Value    float64 `json:"value"`
	Accepted bool    `json:"accepted"`
	Status   string  `json:"status"`
	Error    string  `json:"error,omitempty"`
}

// Result status values
const (
	ResultRejected = "rejected"
	ResultQueued   = "queued"
	ResultSent     = "sent"
	ResultFailed   = "failed"
)

// Bridge connects the manager to an MQTT broker
type Bridge struct {
	client Client
	codec  *aquarea.Codec
	prefix string
	qos    byte
	log    *logrus.Entry

	mu     sync.Mutex
	writer Writer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a bridge publishing through client under prefix
func New(client Client, codec *aquarea.Codec, prefix string, qos byte, log *logrus.Entry) *Bridge {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = logrus.NewEntry(discard)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		client: client,
		codec:  codec,
		prefix: strings.TrimSuffix(prefix, "/"),
		qos:    qos,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Bind routes set requests to w. Binding nil rejects them until the next Bind.
func (b *Bridge) Bind(w Writer) {
	b.mu.Lock()
	b.writer = w
	b.mu.Unlock()
}

func (b *Bridge) boundWriter() Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writer
}

func (b *Bridge) StatusTopic() string {
	return b.prefix + "/status"
}

func (b *Bridge) setFilter() string {
	return b.prefix + "/set/+"
}

func (b *Bridge) resultTopic(field string) string {
	return b.prefix + "/set/" + field + "/result"
}

// Observe publishes every reading of a decoded response
func (b *Bridge) Observe(u manager.Update) {
	if u.Status == nil {
		return
	}
	for _, r := range u.Status.Readings {
		b.client.Publish(b.prefix+"/"+r.Field, b.qos, false, r.Value.String())
	}
	for _, a := range u.Status.Anomalies {
		b.log.WithField("field", a.Field).Debugf("not publishing %s", a)
	}
}

// OnConnect subscribes to set requests and announces availability
func (b *Bridge) OnConnect(c Client) {
	filter := b.setFilter()
	c.Subscribe(filter, b.qos, func(_ mqtt.Client, msg mqtt.Message) {
		b.HandleSet(msg.Topic(), msg.Payload())
	})
	c.Publish(b.StatusTopic(), b.qos, true, StatusOnline)
	b.log.WithField("topic", filter).Info("subscribed to set requests")
}

// HandleSet processes one set request
func (b *Bridge) HandleSet(topic string, payload []byte) {
	field := strings.TrimPrefix(topic, b.prefix+"/set/")
	if field == topic || field == "" || strings.Contains(field, "/") {
		b.log.WithField("topic", topic).Warn("ignoring set request on unexpected topic")
		return
	}
	log := b.log.WithField("field", field)

	value, err := b.codec.ParseWriteValue(field, string(payload))
	if err != nil {
		log.WithError(err).Warn("set request rejected")
		b.publishResult(Result{Field: field, Status: ResultRejected, Error: err.Error()})
		return
	}

	w := b.boundWriter()
	if w == nil {
		b.publishResult(Result{Field: field, Value: value, Status: ResultRejected, Error: ErrLineUnavailable.Error()})
		return
	}

	ticket, err := w.RequestWrite(field, value)
	if err != nil {
		b.publishResult(Result{Field: field, Value: value, Status: ResultRejected, Error: err.Error()})
		return
	}
	b.publishResult(Result{Field: field, Value: value, Accepted: true, Status: ResultQueued})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(b.ctx, resultTimeout)
		defer cancel()

		res := Result{Field: field, Value: value, Accepted: true, Status: ResultSent}
		if _, err := ticket.Wait(ctx); err != nil {
			res.Status = ResultFailed
			res.Error = err.Error()
		}
		b.publishResult(res)
	}()
}

func (b *Bridge) publishResult(r Result) {
	// JSON has no NaN or Inf; the reply must still go out.
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		r.Value = 0
	}
	data, err := json.Marshal(r)
	if err != nil {
		b.log.WithError(err).Error("failed to encode set result")
		return
	}
	b.client.Publish(b.resultTopic(r.Field), b.qos, false, data)
}

// Close stops waiting on outstanding writes and marks the bridge offline
func (b *Bridge) Close() {
	b.cancel()
	b.wg.Wait()
	token := b.client.Publish(b.StatusTopic(), b.qos, true, StatusOffline)
	token.WaitTimeout(time.Second)
}
