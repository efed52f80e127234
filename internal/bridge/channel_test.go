// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"testing"
	"time"

	"github.com/Thermoquad/canopy/pkg/ndjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandChannel_SendWritesOneLine(t *testing.T) {
	w := &recordingWriter{}
	ch := NewCommandChannel(DefaultBreakerSettings())
	ch.SetWriter(w)

	line, err := ch.Send(ndjson.NewSwitchCommand(ndjson.TargetLight, true))
	require.NoError(t, err)

	assert.Equal(t, `{"type":"cmd","target":"light","action":"on"}`, string(line))
	assert.Equal(t, []string{`{"type":"cmd","target":"light","action":"on"}` + "\n"}, w.writes)
}

func TestCommandChannel_InvalidCommandNeverWritten(t *testing.T) {
	w := &recordingWriter{}
	ch := NewCommandChannel(DefaultBreakerSettings())
	ch.SetWriter(w)

	_, err := ch.Send(ndjson.NewPulseCommand(ndjson.TargetWater, 20000))
	require.Error(t, err)
	assert.True(t, ndjson.IsValidationError(err))
	assert.Empty(t, w.writes)
}

func TestCommandChannel_NotConnected(t *testing.T) {
	ch := NewCommandChannel(DefaultBreakerSettings())

	assert.False(t, ch.Connected())
	_, err := ch.Send(ndjson.NewSwitchCommand(ndjson.TargetFan, false))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCommandChannel_WriteFailureWrapsErrTransport(t *testing.T) {
	w := &recordingWriter{fail: true}
	ch := NewCommandChannel(DefaultBreakerSettings())
	ch.SetWriter(w)

	err := ch.WriteLine([]byte(`{"type":"status","ip":"0.0.0.0"}`))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestCommandChannel_BreakerOpensAfterFailures(t *testing.T) {
	w := &recordingWriter{fail: true}
	ch := NewCommandChannel(BreakerSettings{Failures: 2, OpenFor: time.Minute})
	ch.SetWriter(w)

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, ch.WriteLine([]byte("x")), ErrTransport)
	}

	// Open breaker: the writer is not called even though it would now succeed
	w.fail = false
	assert.ErrorIs(t, ch.WriteLine([]byte("x")), ErrTransport)
	assert.Empty(t, w.writes)
}

func TestCommandChannel_EmptyLine(t *testing.T) {
	ch := NewCommandChannel(DefaultBreakerSettings())
	ch.SetWriter(&recordingWriter{})
	assert.ErrorIs(t, ch.WriteLine(nil), ErrEmptyLine)
}

func TestState_SendCommandLogsEcho(t *testing.T) {
	s, w, _ := newTestState()

	id, err := s.SendCommand(ndjson.NewPulseCommand(ndjson.TargetWater, 500))
	require.NoError(t, err)

	assert.Equal(t, uint32(1), id)
	assert.Equal(t, []string{`{"type":"cmd","target":"water","action":"pulse","time":500}`}, s.Log.Query(0))
	assert.Len(t, w.writes, 1)
}

func TestState_SendCommandRejectedLeavesLogUnchanged(t *testing.T) {
	s, w, _ := newTestState()
	s.Log.Append("existing")

	_, err := s.SendCommand(ndjson.NewPulseCommand(ndjson.TargetWater, 20000))
	require.Error(t, err)

	assert.Empty(t, w.writes)
	assert.Equal(t, uint32(1), s.Log.LatestID())
}

func TestState_SendRawLine(t *testing.T) {
	s, w, _ := newTestState()

	require.NoError(t, s.SendRawLine(string(ndjson.NewStatusLine("10.1.1.1"))))
	assert.Equal(t, []string{`{"type":"status","ip":"10.1.1.1"}` + "\n"}, w.writes)
	assert.Equal(t, 0, s.Log.Len(), "raw lines are not logged")

	assert.ErrorIs(t, s.SendRawLine("   "), ErrEmptyLine)
}
