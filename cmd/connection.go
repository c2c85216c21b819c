// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/Thermoquad/heatlink/internal/config"
	"github.com/Thermoquad/heatlink/pkg/aquarea"
	"github.com/Thermoquad/heatlink/pkg/uart"
)

// passwordEnv holds the WebSocket password when set
const passwordEnv = "HEATLINK_PASSWORD"

var (
	passwordOnce sync.Once
	password     string
	passwordErr  error
)

// GetPassword retrieves password from environment or prompts user.
// The answer is remembered so reconnects do not prompt again.
func GetPassword() (string, error) {
	passwordOnce.Do(func() {
		password, passwordErr = readPassword()
	})
	return password, passwordErr
}

func readPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenLine opens either a serial or WebSocket line based on configuration
func OpenLine(ctx context.Context, cfg *config.Config) (uart.Line, string, error) {
	if cfg.WebSocket.URL != "" {
		// WebSocket mode
		pw := ""
		if cfg.WebSocket.Username != "" {
			var err error
			pw, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		line, err := uart.DialWebSocket(dialCtx, cfg.WebSocket.URL, cfg.WebSocket.Username, pw, cfg.WebSocket.SkipVerify)
		if err != nil {
			return nil, "", err
		}

		return line, fmt.Sprintf("WebSocket: %s", cfg.WebSocket.URL), nil
	}

	if cfg.Serial.Port != "" {
		// Serial mode
		line, err := uart.OpenSerial(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.Parity)
		if err != nil {
			return nil, "", err
		}

		return line, fmt.Sprintf("Serial: %s @ %d baud, %s parity", cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.Parity), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// OpenTransport opens a line and wraps it in a frame transport
func OpenTransport(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*uart.Transport, string, error) {
	line, info, err := OpenLine(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	return uart.NewTransport(line, aquarea.FrameLength, log), info, nil
}

// isLineGone reports whether err means the line cannot be read any more
func isLineGone(err error) bool {
	var te *uart.TransportError
	return errors.As(err, &te) || errors.Is(err, uart.ErrLineClosed)
}
