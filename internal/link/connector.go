// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link keeps the peer transport open and tells the peer where the
// bridge can be reached.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/canopy/internal/bridge"
	"github.com/cenkalti/backoff/v4"
)

// Conn is a byte stream to the peer (serial port or websocket)
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Dialer opens a new transport. info describes it for logs.
type Dialer func(ctx context.Context) (conn Conn, info string, err error)

// Target is where an open transport is plugged in. *bridge.Bridge implements it.
type Target interface {
	Attach(ctx context.Context, w io.Writer) error
	Consume(ctx context.Context, r io.Reader) error
}

// Settings controls the reconnect schedule
type Settings struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	ConnectTimeout  time.Duration // per attempt
}

// DefaultSettings returns the reconnect schedule used when none is configured
func DefaultSettings() Settings {
	return Settings{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		ConnectTimeout:  15 * time.Second,
	}
}

// Connector opens the transport, feeds it to the target and reopens it with
// exponential backoff whenever it fails.
type Connector struct {
	dial      Dialer
	target    Target
	settings  Settings
	logger    *slog.Logger
	metrics   *bridge.Metrics
	connected atomic.Bool
}

// NewConnector creates a connector; call Run to start it
func NewConnector(dial Dialer, target Target, settings Settings, logger *slog.Logger, metrics *bridge.Metrics) *Connector {
	def := DefaultSettings()
	if settings.InitialInterval <= 0 {
		settings.InitialInterval = def.InitialInterval
	}
	if settings.MaxInterval < settings.InitialInterval {
		settings.MaxInterval = settings.InitialInterval
	}
	if settings.ConnectTimeout <= 0 {
		settings.ConnectTimeout = def.ConnectTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		dial:     dial,
		target:   target,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
	}
}

// Connected reports whether a transport is currently open
func (c *Connector) Connected() bool {
	return c.connected.Load()
}

// Run keeps the transport open until ctx is cancelled. It returns nil on
// cancellation, or the target's error if the target goes away.
func (c *Connector) Run(ctx context.Context) error {
	first := true
	for {
		conn, info, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.target.Attach(ctx, conn); err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to attach transport: %w", err)
		}
		c.connected.Store(true)
		if !first {
			c.metrics.Reconnected()
		}
		first = false
		c.logger.Info("peer connected", "connection", info)

		// Closing the transport is the only way to unblock a pending Read
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		err = c.target.Consume(ctx, conn)
		stop()

		c.connected.Store(false)
		conn.Close()
		detach(c.target)

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, bridge.ErrStopped) {
			return err
		}
		c.logger.Warn("peer connection lost", "connection", info, "error", err)
	}
}

// detach removes the writer even when ctx is already cancelled
func detach(t Target) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = t.Attach(ctx, nil)
}

// connect dials until it succeeds or ctx is cancelled
func (c *Connector) connect(ctx context.Context) (Conn, string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.settings.InitialInterval
	bo.MaxInterval = c.settings.MaxInterval
	bo.MaxElapsedTime = 0

	var conn Conn
	var info string
	err := backoff.RetryNotify(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.settings.ConnectTimeout)
		defer cancel()

		var err error
		conn, info, err = c.dial(attemptCtx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		c.logger.Warn("failed to open peer connection", "error", err, "retry_in", next)
	})
	if err != nil {
		return nil, "", err
	}
	return conn, info, nil
}
