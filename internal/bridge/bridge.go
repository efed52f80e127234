// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge relays NDJSON lines between a serial peer and HTTP clients.
//
// All state lives in a State owned by the goroutine running Bridge.Run.
// Transport readers hand bytes to the loop with Feed; everything else
// (HTTP handlers, the status reporter, sinks) reaches the state through Do,
// so each request runs to completion between two chunks of peer input.
package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/Thermoquad/canopy/pkg/ndjson"
)

// ErrStopped is returned when the loop is not running anymore
var ErrStopped = errors.New("bridge stopped")

type call struct {
	fn   func(*State)
	done chan struct{}
}

// Bridge runs the single loop that owns a State
type Bridge struct {
	state   *State
	decoder *ndjson.LineDecoder
	chunks  chan []byte
	calls   chan call
	stopped chan struct{}
	logger  *slog.Logger
}

// New creates a bridge around state
func New(state *State) *Bridge {
	return &Bridge{
		state:   state,
		decoder: ndjson.NewLineDecoder(),
		chunks:  make(chan []byte, 16),
		calls:   make(chan call),
		stopped: make(chan struct{}),
		logger:  state.logger,
	}
}

// Run processes peer input and submitted calls until ctx is cancelled
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.stopped)

	var overflows uint64
	for {
		select {
		case <-ctx.Done():
			return nil

		case chunk := <-b.chunks:
			overflows = b.process(chunk, overflows)

		case c := <-b.calls:
			// Input fed before the call was submitted is routed first
			overflows = b.drain(overflows)
			c.fn(b.state)
			close(c.done)
		}
	}
}

func (b *Bridge) process(chunk []byte, overflows uint64) uint64 {
	b.decoder.Feed(chunk, func(line []byte) {
		b.state.HandleLine(string(line))
	})
	if n := b.decoder.Overflows(); n != overflows {
		b.state.metrics.overflow(n - overflows)
		b.logger.Warn("discarded oversized line", "limit", ndjson.MaxLineSize, "total", n)
	}
	return b.decoder.Overflows()
}

func (b *Bridge) drain(overflows uint64) uint64 {
	for {
		select {
		case chunk := <-b.chunks:
			overflows = b.process(chunk, overflows)
		default:
			return overflows
		}
	}
}

// Feed hands a chunk of peer bytes to the loop. p is copied.
func (b *Bridge) Feed(ctx context.Context, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	select {
	case <-b.stopped:
		return ErrStopped
	default:
	}

	chunk := make([]byte, len(p))
	copy(chunk, p)

	select {
	case b.chunks <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stopped:
		return ErrStopped
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
// fn must not call back into the Bridge.
func (b *Bridge) Do(ctx context.Context, fn func(*State)) error {
	c := call{fn: fn, done: make(chan struct{})}

	select {
	case b.calls <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stopped:
		return ErrStopped
	}

	select {
	case <-c.done:
		return nil
	case <-b.stopped:
		return ErrStopped
	}
}

// Attach connects the command channel to w and drops any partial input line
// left over from a previous transport. A nil w detaches it.
func (b *Bridge) Attach(ctx context.Context, w io.Writer) error {
	return b.Do(ctx, func(s *State) {
		s.channel.SetWriter(w)
		b.decoder.Reset()
		s.metrics.SetConnected(w != nil)
	})
}

// Consume copies r into the loop until r fails or ctx is cancelled
func (b *Bridge) Consume(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := b.Feed(ctx, buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			return err
		}
	}
}
