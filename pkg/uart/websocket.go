// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uart

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketLine carries the serial byte stream in binary WebSocket messages.
// A pump goroutine owns ReadMessage since gorilla connections cannot survive
// a read deadline.
type WebSocketLine struct {
	conn *websocket.Conn

	data    chan []byte
	done    chan struct{} // closed when the pump exits
	closing chan struct{}
	err     error // set by the pump before done is closed

	buf       []byte
	closeOnce sync.Once
}

// DialWebSocket opens a WebSocket line with optional HTTP Basic auth
func DialWebSocket(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (*WebSocketLine, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketLine(conn), nil
}

func newWebSocketLine(conn *websocket.Conn) *WebSocketLine {
	w := &WebSocketLine{
		conn:    conn,
		data:    make(chan []byte, 16),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go w.pump()
	return w
}

func (w *WebSocketLine) pump() {
	defer close(w.done)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.err = err
			return
		}

		// Only binary messages carry line bytes
		if messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.data <- data:
		case <-w.closing:
			w.err = ErrLineClosed
			return
		}
	}
}

// ReadTimeout returns buffered message bytes, or waits at most d for the next message
func (w *WebSocketLine) ReadTimeout(p []byte, d time.Duration) (int, error) {
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}

	// Drain messages that arrived before the pump stopped
	select {
	case msg := <-w.data:
		return w.take(p, msg), nil
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case msg := <-w.data:
		return w.take(p, msg), nil
	case <-w.done:
		select {
		case msg := <-w.data:
			return w.take(p, msg), nil
		default:
		}
		if w.err == nil {
			return 0, ErrLineClosed
		}
		return 0, fmt.Errorf("%w: %v", ErrLineClosed, w.err)
	case <-timer.C:
		return 0, nil
	}
}

func (w *WebSocketLine) take(p, msg []byte) int {
	n := copy(p, msg)
	w.buf = msg[n:]
	return n
}

// ResetInput drops the unread part of the current message and every message
// already queued by the pump
func (w *WebSocketLine) ResetInput() error {
	w.buf = nil
	for {
		select {
		case <-w.data:
		default:
			return nil
		}
	}
}

func (w *WebSocketLine) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketLine) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closing)
		err = w.conn.Close()
	})
	return err
}
