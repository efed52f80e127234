// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Thermoquad/canopy/pkg/ndjson"
)

const (
	// AlarmCooldown is the minimum gap between two sent alarm commands
	AlarmCooldown = 15 * time.Second

	// AlarmPulse is how long the alarm indicator is switched on
	AlarmPulse = 3000 * time.Millisecond

	// AlarmTarget is the actuator pulsed on a breach
	AlarmTarget = ndjson.TargetBuzzer

	reasonSeparator = "; "
)

// AlarmState summarizes the most recent breach.
// Reason and LastTriggeredAt follow every breach; Count only counts sent commands.
type AlarmState struct {
	LastTriggeredAt time.Time
	Reason          string
	Count           uint32
}

// Triggered reports whether a breach has ever been recorded
func (a AlarmState) Triggered() bool {
	return !a.LastTriggeredAt.IsZero()
}

// CommandSender validates a command, writes it to the peer and logs its echo.
// Returns the log id of the echo.
type CommandSender interface {
	SendCommand(cmd ndjson.Command) (uint32, error)
}

// Engine evaluates sensor samples against the configured thresholds
type Engine struct {
	Thresholds ThresholdConfig
	Alarm      AlarmState

	lastSent time.Time
	sender   CommandSender
	log      *MessageLog
	start    time.Time
	logger   *slog.Logger
	metrics  *Metrics
}

// NewEngine creates an engine with every threshold disabled.
// start is the reference for the triggeredAt field of alarm records.
func NewEngine(sender CommandSender, log *MessageLog, start time.Time, logger *slog.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sender:  sender,
		log:     log,
		start:   start,
		logger:  logger,
		metrics: metrics,
	}
}

// Evaluate checks sample against the thresholds and, on a breach outside the
// cooldown window, pulses the alarm indicator and records an alarm line.
// Returns true when an alarm command was sent.
func (e *Engine) Evaluate(sample ndjson.SensorSample, now time.Time) bool {
	if !e.Thresholds.AnyEnabled() {
		return false
	}

	reason := e.breachReason(sample)
	if reason == "" {
		return false
	}

	e.Alarm.Reason = reason
	e.Alarm.LastTriggeredAt = now
	e.metrics.breach()

	if !e.lastSent.IsZero() && now.Sub(e.lastSent) < AlarmCooldown {
		e.logger.Debug("alarm suppressed by cooldown", "reason", reason, "since_last", now.Sub(e.lastSent))
		return false
	}

	cmd := ndjson.NewPulseCommand(AlarmTarget, int(AlarmPulse/time.Millisecond))
	cmdID, err := e.sender.SendCommand(cmd)
	if err != nil {
		e.logger.Warn("alarm command failed", "reason", reason, "error", err)
		return false
	}

	record := ndjson.NewAlarmRecord(reason, now.Sub(e.start).Milliseconds(), cmdID)
	line, err := record.Encode()
	if err != nil {
		e.logger.Error("failed to encode alarm record", "error", err)
	} else {
		e.log.Append(string(line))
	}

	e.lastSent = now
	e.Alarm.Count++
	e.metrics.alarmSent()
	e.logger.Info("alarm triggered", "reason", reason, "command_id", cmdID, "count", e.Alarm.Count)
	return true
}

// breachReason returns the joined description of every breached metric, or ""
func (e *Engine) breachReason(sample ndjson.SensorSample) string {
	var parts []string
	for _, m := range allMetrics {
		t := e.Thresholds.Get(m)
		if !t.Enabled {
			continue
		}
		v := sampleValue(sample, m)
		if v == nil || math.IsNaN(*v) {
			continue
		}
		if *v > t.Value {
			parts = append(parts, m.Label()+" "+m.Format(*v)+" > threshold "+m.Format(t.Value))
		}
	}
	return strings.Join(parts, reasonSeparator)
}

func sampleValue(s ndjson.SensorSample, m Metric) *float64 {
	switch m {
	case MetricTemp:
		return s.Temp
	case MetricHumi:
		return s.Humi
	case MetricSoil:
		return s.Soil
	case MetricLux:
		return s.Lux
	}
	return nil
}
