// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heatlink/internal/logging"
	"github.com/Thermoquad/heatlink/pkg/manager"
)

// oneShotTimeout bounds a whole one-shot command including line settling
const oneShotTimeout = 15 * time.Second

// withManager opens the line, runs a non-polling manager on it and calls fn.
// The manager is stopped once fn returns.
func withManager(cmd *cobra.Command, s *session, fn func(ctx context.Context, m *manager.Manager) error) error {
	return withManagerTimeout(cmd, s, oneShotTimeout, fn)
}

func withManagerTimeout(cmd *cobra.Command, s *session, timeout time.Duration, fn func(ctx context.Context, m *manager.Manager) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := manager.NewRateLimiter()
	if s.cfg.StateFile != "" {
		var err error
		if limiter, err = manager.LoadRateLimiter(s.cfg.StateFile); err != nil {
			return err
		}
	}

	tr, connInfo, err := OpenTransport(ctx, &s.cfg, logging.Component(s.log, "transport"))
	if err != nil {
		return err
	}
	defer tr.Close()
	s.log.WithField("line", connInfo).Debug("line open")

	m := manager.New(manager.Config{
		Codec:     s.codec,
		Transport: tr,
		Limiter:   limiter,
		NoPolling: true,
		Logger:    logging.Component(s.log, "manager"),
	})

	runCtx, stopRun := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(runCtx) }()

	err = fn(ctx, m)
	stopRun()
	if rerr := <-runErr; err == nil && rerr != nil {
		err = rerr
	}
	return err
}
