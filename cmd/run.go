// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/internal/logging"
	"github.com/Thermoquad/heatlink/internal/metrics"
	"github.com/Thermoquad/heatlink/internal/mqttbridge"
	"github.com/Thermoquad/heatlink/pkg/manager"
)

const (
	reconnectInitial = 1 * time.Second
	reconnectMax     = 30 * time.Second
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the heat pump and bridge it to MQTT",
	Long: `Run heatlink as a daemon.

The heat pump is queried periodically (never more often than every 5 seconds)
and every decoded reading is published to MQTT under <prefix>/<field>. Setting
requests published to <prefix>/set/<field> are validated, rate limited and
sent to the heat pump; the outcome is reported on <prefix>/set/<field>/result.

Features:
  - Strict one-request-at-a-time line discipline
  - Per-field write rate limit (10 writes per hour)
  - Prometheus metrics on --metrics-listen (or metrics.listen)
  - Automatic reconnection on connection loss

Supports both serial and WebSocket connections.`,
	RunE: runRun,
}

var (
	runMetricsListen string
	runMQTTBroker    string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runMetricsListen, "metrics-listen", "", "Address for the /metrics endpoint (e.g. :9110)")
	runCmd.Flags().StringVar(&runMQTTBroker, "mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883)")
}

// supervisor owns the line and restarts the manager after transport faults
type supervisor struct {
	s         *session
	limiter   *manager.RateLimiter
	observers []manager.Observer
	recorder  *metrics.Collector
	bridge    *mqttbridge.Connection
	log       *logrus.Entry
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("metrics-listen") {
		s.cfg.Metrics.Listen = runMetricsListen
	}
	if cmd.Flags().Changed("mqtt-broker") {
		s.cfg.MQTT.Broker = runMQTTBroker
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sv := &supervisor{
		s:   s,
		log: logging.Component(s.log, "supervisor"),
	}

	sv.limiter = manager.NewRateLimiter()
	if s.cfg.StateFile != "" {
		if sv.limiter, err = manager.LoadRateLimiter(s.cfg.StateFile); err != nil {
			return err
		}
	}

	if s.cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if sv.recorder, err = metrics.New(reg); err != nil {
			return err
		}

		go func() {
			if err := metrics.Serve(ctx, s.cfg.Metrics.Listen, reg, logging.Component(s.log, "metrics")); err != nil {
				sv.log.WithError(err).Error("metrics endpoint failed")
			}
		}()
	}

	if s.cfg.MQTT.Broker != "" {
		sv.bridge = mqttbridge.Connect(mqttbridge.Options{
			Broker:   s.cfg.MQTT.Broker,
			ClientID: s.cfg.MQTT.ClientID,
			Username: s.cfg.MQTT.Username,
			Password: s.cfg.MQTT.Password,
			Prefix:   s.cfg.MQTT.Prefix,
			QoS:      s.cfg.MQTT.QoS,
		}, s.codec, logging.Component(s.log, "mqtt"))
		defer sv.bridge.Close()
		sv.observers = append(sv.observers, sv.bridge)
	}

	sv.observers = append(sv.observers, manager.ObserverFunc(sv.logUpdate))

	return sv.loop(ctx)
}

// loop opens the line and runs a manager on it until ctx ends
func (sv *supervisor) loop(ctx context.Context) error {
	backoff := reconnectInitial
	first := true

	for {
		if !first {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
		}
		first = false

		tr, connInfo, err := OpenTransport(ctx, &sv.s.cfg, logging.Component(sv.s.log, "transport"))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			sv.log.WithError(err).WithField("retry_in", backoff).Warn("failed to open line")
			continue
		}
		sv.log.WithField("line", connInfo).Info("line open")

		err = sv.runManager(ctx, tr)
		tr.Close()
		if ctx.Err() != nil {
			return nil
		}

		sv.log.WithError(err).Warn("line lost, reconnecting")
		if sv.recorder != nil {
			sv.recorder.Reconnected()
		}
		backoff = reconnectInitial
	}
}

// runManager runs one manager over tr and returns its transport fault
func (sv *supervisor) runManager(ctx context.Context, tr manager.Transport) error {
	cfg := manager.Config{
		Codec:         sv.s.codec,
		Transport:     tr,
		Limiter:       sv.limiter,
		QueryInterval: sv.s.cfg.Poll.Interval,
		ExtraQuery:    sv.s.cfg.Poll.ExtraQuery,
		Observers:     sv.observers,
		Logger:        logging.Component(sv.s.log, "manager"),
	}
	if sv.recorder != nil {
		cfg.Recorder = sv.recorder
	}
	m := manager.New(cfg)

	if sv.bridge != nil {
		sv.bridge.Bind(mqttbridge.ManagerWriter(m))
		defer sv.bridge.Bind(nil)
	}

	return m.Run(ctx)
}

// logUpdate logs a one-line summary of each decoded response
func (sv *supervisor) logUpdate(u manager.Update) {
	fields := logrus.Fields{
		"packet":   u.Status.Packet,
		"readings": len(u.Status.Readings),
	}
	if len(u.Status.Anomalies) > 0 {
		fields["anomalies"] = len(u.Status.Anomalies)
	}
	sv.log.WithFields(fields).Debug("status received")
	for _, a := range u.Status.Anomalies {
		sv.log.WithField("field", a.Field).Warnf("implausible value: %s", a)
	}
}
