// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/internal/config"
	"github.com/Thermoquad/heatlink/internal/logging"
	"github.com/Thermoquad/heatlink/pkg/aquarea"
)

// session bundles what every command that talks to the heat pump needs
type session struct {
	cfg      config.Config
	registry *aquarea.Registry
	codec    *aquarea.Codec
	log      *logrus.Logger
}

// loadConfig reads the config file, if any, and applies flags set on the command line
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
		cfg.WebSocket.URL = ""
	}
	if flags.Changed("baud") {
		cfg.Serial.BaudRate = baudRate
	}
	if flags.Changed("parity") {
		cfg.Serial.Parity = parity
	}
	if flags.Changed("url") {
		cfg.WebSocket.URL = wsURL
		cfg.Serial.Port = ""
	}
	if flags.Changed("username") {
		cfg.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.WebSocket.SkipVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("state") {
		cfg.StateFile = stateFile
	}
	return cfg, nil
}

// loadSession loads and validates configuration and builds the codec
func loadSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log := logging.Configure(cfg.Log.Level)

	base := aquarea.DefaultRegistry()
	if err := config.Validate(&cfg, base); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	config.Normalize(&cfg, logging.Component(log, "config"))

	reg, err := base.WithLimits(cfg.UserLimits())
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:      cfg,
		registry: reg,
		codec:    aquarea.NewCodec(reg),
		log:      log,
	}, nil
}

// loadOfflineSession is loadSession for commands that never open the line
func loadOfflineSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	reg, err := aquarea.DefaultRegistry().WithLimits(cfg.UserLimits())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &session{
		cfg:      cfg,
		registry: reg,
		codec:    aquarea.NewCodec(reg),
		log:      logging.Configure(cfg.Log.Level),
	}, nil
}
