// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqttbridge

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
)

// Options configures the broker connection
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	QoS      byte
}

// Connection is a bridge with its own paho client
type Connection struct {
	*Bridge
	client mqtt.Client
}

// Connect creates a bridge on a new broker connection. A failed first
// attempt is logged and retried in the background.
func Connect(opts Options, codec *aquarea.Codec, log *logrus.Entry) *Connection {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetWriteTimeout(time.Second)

	b := New(nil, codec, opts.Prefix, opts.QoS, log)
	co.SetWill(b.StatusTopic(), StatusOffline, opts.QoS, true)
	co.SetOnConnectHandler(func(c mqtt.Client) {
		b.log.WithField("broker", opts.Broker).Info("connected to MQTT broker")
		b.OnConnect(c)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.WithError(err).Warn("lost MQTT connection")
	})

	conn := &Connection{Bridge: b, client: mqtt.NewClient(co)}
	b.client = conn.client

	if token := conn.client.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		b.log.WithError(token.Error()).Warn("could not connect to MQTT initially, will retry in background")
	}
	return conn
}

// Close publishes offline and disconnects
func (c *Connection) Close() {
	c.Bridge.Close()
	c.client.Disconnect(250)
}
