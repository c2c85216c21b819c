// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
	"github.com/Thermoquad/heatlink/pkg/manager"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func floatPtr(v float64) *float64 { return &v }

func validConfig() Config {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	return cfg
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "heatlink.yaml", `
serial:
  port: /dev/ttyUSB0
  parity: even
poll:
  interval: 45s
  extra_query: true
mqtt:
  broker: tcp://localhost:1883
  prefix: hp
limits:
  dhw_target_temp:
    max: 60
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate, "default kept")
	assert.Equal(t, 45*time.Second, cfg.Poll.Interval)
	assert.True(t, cfg.Poll.ExtraQuery)
	assert.Equal(t, "hp", cfg.MQTT.Prefix)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, map[string]float64{"dhw_target_temp": 60}, cfg.UserLimits())
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "heatlink.toml", `
state_file = "/var/lib/heatlink/writes.cbor"

[websocket]
url = "wss://bridge.local/uart"
username = "admin"

[poll]
interval = "10s"

[limits.zone1_heat_target_temp]
max = 45.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://bridge.local/uart", cfg.WebSocket.URL)
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.Equal(t, "/var/lib/heatlink/writes.cbor", cfg.StateFile)
	assert.Equal(t, map[string]float64{"zone1_heat_target_temp": 45}, cfg.UserLimits())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown yaml key", "c.yaml", "serial:\n  speed: 9600\n"},
		{"unknown toml key", "c.toml", "[serial]\nspeed = 9600\n"},
		{"bad yaml", "c.yml", "serial: [\n"},
		{"bad duration", "c.yaml", "poll:\n  interval: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(writeFile(t, "c.json", "{}"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestValidate(t *testing.T) {
	reg := aquarea.DefaultRegistry()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no line", func(c *Config) { c.Serial.Port = "" }, "is required"},
		{"both lines", func(c *Config) { c.WebSocket.URL = "ws://host/" }, "mutually exclusive"},
		{"bad baud", func(c *Config) { c.Serial.BaudRate = 0 }, "baud_rate"},
		{"bad parity", func(c *Config) { c.Serial.Parity = "mark" }, "parity"},
		{"bad scheme", func(c *Config) {
			c.Serial.Port = ""
			c.WebSocket.URL = "http://host/"
		}, "scheme"},
		{"negative interval", func(c *Config) { c.Poll.Interval = -time.Second }, "poll.interval"},
		{"bad qos", func(c *Config) {
			c.MQTT.Broker = "tcp://localhost:1883"
			c.MQTT.QoS = 3
		}, "qos"},
		{"missing max", func(c *Config) {
			c.Limits = map[string]LimitConfig{"dhw_target_temp": {}}
		}, "max is required"},
		{"unknown field", func(c *Config) {
			c.Limits = map[string]LimitConfig{"boiler": {Max: floatPtr(1)}}
		}, "unknown field"},
		{"read-only field", func(c *Config) {
			c.Limits = map[string]LimitConfig{"outdoor_temp": {Max: floatPtr(1)}}
		}, "read-only"},
		{"above protocol max", func(c *Config) {
			c.Limits = map[string]LimitConfig{"dhw_target_temp": {Max: floatPtr(80)}}
		}, "dhw_target_temp"},
		{"below protocol min", func(c *Config) {
			c.Limits = map[string]LimitConfig{"dhw_target_temp": {Max: floatPtr(30)}}
		}, "dhw_target_temp"},
		{"within range", func(c *Config) {
			c.Limits = map[string]LimitConfig{"dhw_target_temp": {Max: floatPtr(60)}}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(&cfg, reg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalize(t *testing.T) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	tests := []struct {
		name     string
		interval time.Duration
		want     time.Duration
	}{
		{"zero uses default", 0, manager.DefaultQueryInterval},
		{"below floor raised", 2 * time.Second, manager.MinQueryInterval},
		{"at floor kept", manager.MinQueryInterval, manager.MinQueryInterval},
		{"above floor kept", time.Minute, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Poll.Interval = tt.interval
			Normalize(&cfg, log)
			assert.Equal(t, tt.want, cfg.Poll.Interval)
		})
	}

	Normalize(nil, nil)
}
