// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sink mirrors bridge activity to external systems. Sinks are fed from
// the bridge loop and never block it.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/canopy/internal/bridge"
	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions configures the broker connection
type MQTTOptions struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	Retries  uint64
}

// Publisher is the part of mqtt.Client the mirror needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTMirror publishes every message log entry to a topic
type MQTTMirror struct {
	client    Publisher
	topic     string
	logger    *slog.Logger
	closeFunc func()
}

// NewMQTTMirror wraps an already connected client
func NewMQTTMirror(client Publisher, topic string, logger *slog.Logger) *MQTTMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTMirror{client: client, topic: topic, logger: logger}
}

// DialMQTT connects to the broker, retrying with exponential backoff
func DialMQTT(ctx context.Context, opts MQTTOptions, logger *slog.Logger) (*MQTTMirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Retries == 0 {
		opts.Retries = 5
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", opts.Broker, "error", err)
		})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(clientOpts)
		token := client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Warn("failed to connect to mqtt broker", "broker", opts.Broker, "error", err)
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, opts.Retries-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not connect to mqtt broker %s: %w", opts.Broker, err)
	}

	logger.Info("connected to mqtt broker", "broker", opts.Broker, "topic", opts.Topic)
	m := NewMQTTMirror(client, opts.Topic, logger)
	m.closeFunc = func() { client.Disconnect(250) }
	return m, nil
}

// Publish sends the entry's raw line with QoS 0. The token is not waited on.
func (m *MQTTMirror) Publish(e bridge.MessageEntry) {
	token := m.client.Publish(m.topic, 0, false, e.Payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			m.logger.Debug("mqtt publish failed", "id", e.ID, "error", err)
		}
	default:
	}
}

// Close disconnects from the broker
func (m *MQTTMirror) Close() {
	if m.closeFunc != nil {
		m.closeFunc()
	}
}
