// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/heatlink/pkg/manager"
)

// Normalize applies post-validation normalization.
// It MUST be called only after Validate().
func Normalize(cfg *Config, log logrus.FieldLogger) {
	if cfg == nil {
		return
	}

	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = manager.DefaultQueryInterval
	}
	if cfg.Poll.Interval < manager.MinQueryInterval {
		if log != nil {
			log.WithField("interval", cfg.Poll.Interval).
				Warnf("poll interval raised to %s", manager.MinQueryInterval)
		}
		cfg.Poll.Interval = manager.MinQueryInterval
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "heatlink"
	}
}
