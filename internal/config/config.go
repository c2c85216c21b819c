// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the heatlink daemon configuration
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/heatlink/pkg/manager"
	"github.com/Thermoquad/heatlink/pkg/uart"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor TOML
var ErrUnsupportedFormat = errors.New("unsupported config format")

type Config struct {
	Serial    SerialConfig           `yaml:"serial" toml:"serial"`
	WebSocket WebSocketConfig        `yaml:"websocket" toml:"websocket"`
	Poll      PollConfig             `yaml:"poll" toml:"poll"`
	MQTT      MQTTConfig             `yaml:"mqtt" toml:"mqtt"`
	Metrics   MetricsConfig          `yaml:"metrics" toml:"metrics"`
	Log       LogConfig              `yaml:"log" toml:"log"`
	StateFile string                 `yaml:"state_file" toml:"state_file"`
	Limits    map[string]LimitConfig `yaml:"limits" toml:"limits"`
}

// ---- LINE ----

type SerialConfig struct {
	Port     string `yaml:"port" toml:"port"`
	BaudRate int    `yaml:"baud_rate" toml:"baud_rate"`
	Parity   string `yaml:"parity" toml:"parity"`
}

type WebSocketConfig struct {
	URL        string `yaml:"url" toml:"url"`
	Username   string `yaml:"username" toml:"username"`
	SkipVerify bool   `yaml:"skip_verify" toml:"skip_verify"`
}

// ---- POLL ----

type PollConfig struct {
	Interval   time.Duration `yaml:"interval" toml:"interval"`
	ExtraQuery bool          `yaml:"extra_query" toml:"extra_query"`
}

// ---- OUTPUTS ----

type MQTTConfig struct {
	Broker   string `yaml:"broker" toml:"broker"`
	ClientID string `yaml:"client_id" toml:"client_id"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
	QoS      byte   `yaml:"qos" toml:"qos"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// ---- LIMITS ----

// LimitConfig narrows a writable field below its protocol maximum
type LimitConfig struct {
	Max *float64 `yaml:"max" toml:"max"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Serial: SerialConfig{
			BaudRate: uart.DefaultBaudRate,
			Parity:   uart.DefaultParity,
		},
		Poll: PollConfig{
			Interval: manager.DefaultQueryInterval,
		},
		MQTT: MQTTConfig{
			ClientID: "heatlink",
			Prefix:   "aquarea",
			QoS:      1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML or TOML file on top of the defaults
func Load(path string) (Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("parse %s: unknown key %q", path, undecoded[0].String())
		}
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	return cfg, nil
}

// UserLimits flattens the configured limits for aquarea.Registry.WithLimits
func (c *Config) UserLimits() map[string]float64 {
	limits := make(map[string]float64, len(c.Limits))
	for name, l := range c.Limits {
		if l.Max != nil {
			limits[name] = *l.Max
		}
	}
	return limits
}
