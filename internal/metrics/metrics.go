// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes manager activity as Prometheus metrics
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
)

const namespace = "heatlink"

// Collector records manager events. It satisfies manager.Recorder.
type Collector struct {
	framesSent      *prometheus.CounterVec
	responses       *prometheus.CounterVec
	commandFailures *prometheus.CounterVec
	invalidFrames   *prometheus.CounterVec
	writeRejections *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	reconnects      prometheus.Counter
}

// New creates a collector and registers it with reg
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		framesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_sent_total",
				Help:      "Frames transmitted to the heat pump.",
			},
			[]string{"kind"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Status frames decoded.",
			},
			[]string{"packet"},
		),
		commandFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "command_failures_total",
				Help:      "Commands that completed without a response.",
			},
			[]string{"reason"},
		),
		invalidFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalid_frames_total",
				Help:      "Received frames discarded by validation.",
			},
			[]string{"reason"},
		),
		writeRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "write_rejections_total",
				Help:      "Write requests refused before queueing.",
			},
			[]string{"field", "reason"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Commands waiting for transmission.",
			},
		),
		reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "line_reconnects_total",
				Help:      "Times the line was reopened after a transport fault.",
			},
		),
	}

	for _, col := range []prometheus.Collector{
		c.framesSent, c.responses, c.commandFailures, c.invalidFrames,
		c.writeRejections, c.queueDepth, c.reconnects,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) CommandSent(kind string) {
	c.framesSent.WithLabelValues(kind).Inc()
}

func (c *Collector) ResponseDecoded(packet uint8) {
	c.responses.WithLabelValues(strings.ToLower(aquarea.FormatPacketType(packet))).Inc()
}

func (c *Collector) CommandFailed(reason string) {
	c.commandFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) InvalidFrame(reason string) {
	c.invalidFrames.WithLabelValues(reason).Inc()
}

func (c *Collector) WriteRejected(field, reason string) {
	c.writeRejections.WithLabelValues(field, reason).Inc()
}

func (c *Collector) QueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// Reconnected counts a line reopened by the supervisor
func (c *Collector) Reconnected() {
	c.reconnects.Inc()
}

// Serve exposes g on addr under /metrics until ctx is done
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.WithField("addr", addr).Info("metrics endpoint listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
