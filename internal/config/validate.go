// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"net/url"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
	"github.com/Thermoquad/heatlink/pkg/uart"
)

// Validate checks configuration correctness against the field registry.
// It MUST NOT mutate configuration.
func Validate(cfg *Config, reg *aquarea.Registry) error {
	// ------------------------------------------------------------
	// LINE
	// ------------------------------------------------------------

	switch {
	case cfg.Serial.Port == "" && cfg.WebSocket.URL == "":
		return fmt.Errorf("serial.port or websocket.url is required")
	case cfg.Serial.Port != "" && cfg.WebSocket.URL != "":
		return fmt.Errorf("serial.port and websocket.url are mutually exclusive")
	}

	if cfg.Serial.Port != "" {
		if cfg.Serial.BaudRate <= 0 {
			return fmt.Errorf("serial.baud_rate must be positive, got %d", cfg.Serial.BaudRate)
		}
		if _, err := uart.ParseParity(cfg.Serial.Parity); err != nil {
			return fmt.Errorf("serial.parity: %w", err)
		}
	}

	if cfg.WebSocket.URL != "" {
		u, err := url.Parse(cfg.WebSocket.URL)
		if err != nil {
			return fmt.Errorf("websocket.url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("websocket.url: scheme must be ws or wss, got %q", u.Scheme)
		}
	}

	// ------------------------------------------------------------
	// POLL / OUTPUTS
	// ------------------------------------------------------------

	if cfg.Poll.Interval < 0 {
		return fmt.Errorf("poll.interval must not be negative, got %s", cfg.Poll.Interval)
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
		}
		if cfg.MQTT.Prefix == "" {
			return fmt.Errorf("mqtt.prefix is required when mqtt.broker is set")
		}
	}

	// ------------------------------------------------------------
	// LIMITS
	// ------------------------------------------------------------

	for name, l := range cfg.Limits {
		if l.Max == nil {
			return fmt.Errorf("limits.%s: max is required", name)
		}
	}
	if _, err := reg.WithLimits(cfg.UserLimits()); err != nil {
		return fmt.Errorf("limits: %w", err)
	}

	return nil
}
