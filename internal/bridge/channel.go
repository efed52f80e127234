// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/canopy/pkg/ndjson"
	"github.com/sony/gobreaker"
)

var (
	// ErrNotConnected is returned when no transport is attached
	ErrNotConnected = errors.New("transport not connected")

	// ErrTransport wraps every failed write to the peer
	ErrTransport = errors.New("transport write failed")

	// ErrEmptyLine is returned by WriteLine for an empty line
	ErrEmptyLine = errors.New("empty line")
)

// BreakerSettings controls when the channel stops writing to a failing peer
type BreakerSettings struct {
	Failures uint32        // consecutive write failures before opening
	OpenFor  time.Duration // how long writes fail fast once open
}

// DefaultBreakerSettings returns the settings used when none are configured
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{Failures: 5, OpenFor: 10 * time.Second}
}

// CommandChannel writes validated commands to the peer as NDJSON lines
type CommandChannel struct {
	w       io.Writer
	breaker *gobreaker.CircuitBreaker
}

// NewCommandChannel creates a channel with no transport attached
func NewCommandChannel(settings BreakerSettings) *CommandChannel {
	if settings.Failures == 0 {
		settings.Failures = DefaultBreakerSettings().Failures
	}
	return &CommandChannel{
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "peer-write",
			Timeout: settings.OpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= settings.Failures
			},
		}),
	}
}

// SetWriter attaches the transport; nil detaches it
func (c *CommandChannel) SetWriter(w io.Writer) {
	c.w = w
}

// Connected reports whether a transport is attached
func (c *CommandChannel) Connected() bool {
	return c.w != nil
}

// Send validates cmd and writes it as one line.
// Returns the serialized command (without terminator) on success.
func (c *CommandChannel) Send(cmd ndjson.Command) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	line, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	if err := c.WriteLine(line); err != nil {
		return nil, err
	}
	return line, nil
}

// WriteLine writes line followed by '\n' in a single write
func (c *CommandChannel) WriteLine(line []byte) error {
	if len(line) == 0 {
		return ErrEmptyLine
	}
	if c.w == nil {
		return ErrNotConnected
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, ndjson.LineFeed)

	w := c.w
	_, err := c.breaker.Execute(func() (interface{}, error) {
		_, err := w.Write(buf)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}
