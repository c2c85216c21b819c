// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
	"github.com/Thermoquad/heatlink/pkg/manager"
)

var _ manager.Recorder = (*Collector)(nil)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.CommandSent("query")
	c.CommandSent("query")
	c.CommandSent("setting")
	c.ResponseDecoded(aquarea.PacketStandard)
	c.ResponseDecoded(aquarea.PacketExtra)
	c.CommandFailed("timeout")
	c.InvalidFrame("checksum")
	c.WriteRejected("dhw_target_temp", "range")
	c.QueueDepth(3)
	c.Reconnected()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.framesSent.WithLabelValues("query")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesSent.WithLabelValues("setting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.responses.WithLabelValues("standard")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.responses.WithLabelValues("extra")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commandFailures.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.invalidFrames.WithLabelValues("checksum")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.writeRejections.WithLabelValues("dhw_target_temp", "range")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconnects))

	expected := `
# HELP heatlink_queue_depth Commands waiting for transmission.
# TYPE heatlink_queue_depth gauge
heatlink_queue_depth 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "heatlink_queue_depth"))
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)
	c.CommandSent("query")

	log := logrus.New()
	log.SetOutput(io.Discard)

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg, log) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.Contains(t, body, `heatlink_frames_sent_total{kind="query"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
