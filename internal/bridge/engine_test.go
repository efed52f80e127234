// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/Thermoquad/canopy/pkg/ndjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

const alarmCommandLine = `{"type":"cmd","target":"buzzer","action":"pulse","time":3000}`

func TestEngine_StrictlyGreaterThan(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		trigger bool
	}{
		{"below", 39, false},
		{"equal", 40, false},
		{"one above", 41, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, w, clock := newTestState()
			s.Engine.Thresholds.Set(MetricTemp, 40)

			sent := s.Engine.Evaluate(ndjson.SensorSample{Temp: ptr(tt.value)}, clock.Now())

			assert.Equal(t, tt.trigger, sent)
			assert.Equal(t, tt.trigger, s.Engine.Alarm.Triggered())
			if tt.trigger {
				assert.Len(t, w.writes, 1)
			} else {
				assert.Empty(t, w.writes)
				assert.Equal(t, AlarmState{}, s.Engine.Alarm)
			}
		})
	}
}

func TestEngine_NaNNeverBreaches(t *testing.T) {
	s, w, clock := newTestState()
	s.Engine.Thresholds.Set(MetricLux, 100)

	assert.False(t, s.Engine.Evaluate(ndjson.SensorSample{Lux: ptr(math.NaN())}, clock.Now()))
	assert.Empty(t, w.writes)
	assert.False(t, s.Engine.Alarm.Triggered())
}

func TestEngine_DisabledThresholdIgnored(t *testing.T) {
	s, w, clock := newTestState()
	s.Engine.Thresholds.Set(MetricHumi, 60)
	s.Engine.Thresholds.Disable(MetricHumi)

	assert.False(t, s.Engine.Evaluate(ndjson.SensorSample{Humi: ptr(99)}, clock.Now()))
	assert.Empty(t, w.writes)
}

func TestEngine_AbsentMetricIgnored(t *testing.T) {
	s, w, clock := newTestState()
	s.Engine.Thresholds.Set(MetricTemp, 10)

	assert.False(t, s.Engine.Evaluate(ndjson.SensorSample{Humi: ptr(99)}, clock.Now()))
	assert.Empty(t, w.writes)
}

func TestEngine_SendsPulseAndAlarmRecord(t *testing.T) {
	s, w, clock := newTestState()
	s.Engine.Thresholds.Set(MetricTemp, 40)
	s.Log.Append(`{"type":"data","temp":50}`)
	clock.Advance(2500 * time.Millisecond)

	require.True(t, s.Engine.Evaluate(ndjson.SensorSample{Temp: ptr(50)}, clock.Now()))

	assert.Equal(t, []string{alarmCommandLine}, trimLines(w.writes))
	assert.Equal(t, uint32(1), s.Engine.Alarm.Count)
	assert.Equal(t, "temperature 50.0 > threshold 40.0", s.Engine.Alarm.Reason)

	payloads := s.Log.Query(1)
	require.Len(t, payloads, 2)
	assert.Equal(t, alarmCommandLine, payloads[0])
	assert.Equal(t,
		`{"type":"alarm","reason":"temperature 50.0 > threshold 40.0","triggeredAt":2500,"relatedMessageId":2}`,
		payloads[1])

	var record ndjson.AlarmRecord
	require.NoError(t, json.Unmarshal([]byte(payloads[1]), &record))
	assert.Equal(t, ndjson.TypeAlarm, record.Type)
	assert.Equal(t, "temperature 50.0 > threshold 40.0", record.Reason)
	assert.Equal(t, int64(2500), record.TriggeredAt)
	assert.Equal(t, uint32(2), record.RelatedMessageID, "alarm must reference the command echo")
}

func TestEngine_ReasonJoinsEveryBreach(t *testing.T) {
	s, _, clock := newTestState()
	s.Engine.Thresholds.Set(MetricTemp, 30)
	s.Engine.Thresholds.Set(MetricSoil, 50)
	s.Engine.Thresholds.Set(MetricLux, 1000)

	s.Engine.Evaluate(ndjson.SensorSample{
		Temp: ptr(31.24),
		Soil: ptr(70),
		Lux:  ptr(900),
	}, clock.Now())

	assert.Equal(t, "temperature 31.2 > threshold 30.0; soil 70 > threshold 50", s.Engine.Alarm.Reason)
}

func TestEngine_Cooldown(t *testing.T) {
	s, w, clock := newTestState()
	s.Engine.Thresholds.Set(MetricTemp, 40)

	require.True(t, s.Engine.Evaluate(ndjson.SensorSample{Temp: ptr(45)}, clock.Now()))
	firstTrigger := s.Engine.Alarm.LastTriggeredAt

	// Second breach 1ms later: reason and time move, nothing is sent
	clock.Advance(time.Millisecond)
	assert.False(t, s.Engine.Evaluate(ndjson.SensorSample{Temp: ptr(46)}, clock.Now()))
	assert.Len(t, w.writes, 1)
	assert.Equal(t, uint32(1), s.Engine.Alarm.Count)
	assert.Equal(t, "temperature 46.0 > threshold 40.0", s.Engine.Alarm.Reason)
	assert.True(t, s.Engine.Alarm.LastTriggeredAt.After(firstTrigger))

	// Just short of the window
	clock.Advance(AlarmCooldown - 2*time.Millisecond)
	assert.False(t, s.Engine.Evaluate(ndjson.SensorSample{Temp: ptr(47)}, clock.Now()))
	assert.Equal(t, uint32(1), s.Engine.Alarm.Count)

	// Exactly one cooldown after the first send
	clock.Advance(time.Millisecond)
	assert.True(t, s.Engine.Evaluate(ndjson.SensorSample{Temp: ptr(48)}, clock.Now()))
	assert.Equal(t, uint32(2), s.Engine.Alarm.Count)
	assert.Len(t, w.writes, 2)
}

func TestEngine_NoBreachLeavesAlarmUntouched(t *testing.T) {
	s, _, clock := newTestState()
	s.Engine.Thresholds.Set(MetricTemp, 40)
	s.Engine.Evaluate(ndjson.SensorSample{Temp: ptr(41)}, clock.Now())
	before := s.Engine.Alarm

	clock.Advance(time.Minute)
	s.Engine.Evaluate(ndjson.SensorSample{Temp: ptr(20)}, clock.Now())

	assert.Equal(t, before, s.Engine.Alarm)
}

func TestEngine_TransportFailure(t *testing.T) {
	s, w, clock := newTestState()
	s.Engine.Thresholds.Set(MetricTemp, 40)
	w.fail = true

	assert.False(t, s.Engine.Evaluate(ndjson.SensorSample{Temp: ptr(50)}, clock.Now()))
	assert.Equal(t, uint32(0), s.Engine.Alarm.Count)
	assert.True(t, s.Engine.Alarm.Triggered(), "reason is recorded even when the command fails")
	assert.Equal(t, 0, s.Log.Len())

	// The failed attempt does not start a cooldown
	w.fail = false
	clock.Advance(time.Millisecond)
	assert.True(t, s.Engine.Evaluate(ndjson.SensorSample{Temp: ptr(50)}, clock.Now()))
	assert.Equal(t, uint32(1), s.Engine.Alarm.Count)
}
