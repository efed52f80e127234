// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

var errWriteFailed = errors.New("write failed")

// recordingWriter captures every write and can be told to fail
type recordingWriter struct {
	writes []string
	fail   bool
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.fail {
		return 0, errWriteFailed
	}
	w.writes = append(w.writes, string(p))
	return len(p), nil
}

// manualClock is a clock that only moves when told to
type manualClock struct {
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestState returns a state wired to a recording transport and a manual clock
func newTestState() (*State, *recordingWriter, *manualClock) {
	w := &recordingWriter{}
	clock := newManualClock()
	ch := NewCommandChannel(BreakerSettings{Failures: 1000, OpenFor: time.Second})
	ch.SetWriter(w)
	s := NewState(Options{
		Channel: ch,
		Clock:   clock.Now,
		Logger:  quietLogger(),
	})
	return s, w, clock
}

func trimLines(writes []string) []string {
	out := make([]string, len(writes))
	for i, w := range writes {
		out[i] = strings.TrimSuffix(w, "\n")
	}
	return out
}
