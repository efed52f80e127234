// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ndjson

import (
	"fmt"
	"strings"
	"time"
)

// FormatLine formats a received line into a human-readable string
func FormatLine(ts time.Time, line []byte) string {
	timestamp := ts.Format("15:04:05.000")

	fields, err := ParseObject(line)
	if err != nil {
		return fmt.Sprintf("[%s] INVALID %s\n  %v\n", timestamp, line, err)
	}

	msgType, err := MessageType(fields)
	if err != nil {
		return fmt.Sprintf("[%s] UNTYPED %s\n", timestamp, line)
	}

	result := fmt.Sprintf("[%s] %s len=%d\n", timestamp, FormatMessageType(msgType), len(line))

	switch msgType {
	case TypeData:
		result += FormatSensorSample(DecodeSensorSample(fields))
	case TypeAck:
		a := DecodeAck(fields)
		result += fmt.Sprintf("  Target: %s, Action: %s, Result: %s\n", a.Target, a.Action, a.Result)
	case TypeStatus:
		if ip, ok := DecodeStatusIP(fields); ok {
			result += fmt.Sprintf("  IP: %s\n", ip)
		}
	case TypeCmd:
		if cmd, err := DecodeCommand(line); err == nil {
			result += fmt.Sprintf("  Command: %s\n", cmd)
		} else {
			result += fmt.Sprintf("  Invalid command: %v\n", err)
		}
	default:
		result += fmt.Sprintf("  Payload: %s\n", line)
	}

	return result
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType string) string {
	switch msgType {
	case TypeData:
		return "DATA"
	case TypeAck:
		return "ACK"
	case TypeStatus:
		return "STATUS"
	case TypeCmd:
		return "CMD"
	case TypeAlarm:
		return "ALARM"
	default:
		return "UNKNOWN(" + msgType + ")"
	}
}

// FormatSensorSample lists the fields present in a sample
func FormatSensorSample(s SensorSample) string {
	if s.Empty() {
		return "  (no sensor fields)\n"
	}

	var parts []string
	if s.Temp != nil {
		parts = append(parts, fmt.Sprintf("Temp: %.1f°C", *s.Temp))
	}
	if s.Humi != nil {
		parts = append(parts, fmt.Sprintf("Humi: %.1f%%", *s.Humi))
	}
	if s.Soil != nil {
		parts = append(parts, fmt.Sprintf("Soil: %.0f", *s.Soil))
	}
	if s.Lux != nil {
		parts = append(parts, fmt.Sprintf("Lux: %.1f", *s.Lux))
	}

	var switches []string
	for _, sw := range []struct {
		name  string
		value *int
	}{
		{FieldWater, s.Water},
		{FieldLight, s.Light},
		{FieldFan, s.Fan},
		{FieldBuzzer, s.Buzzer},
	} {
		if sw.value != nil {
			switches = append(switches, fmt.Sprintf("%s=%s", sw.name, formatSwitch(*sw.value)))
		}
	}

	result := ""
	if len(parts) > 0 {
		result += "  " + strings.Join(parts, ", ") + "\n"
	}
	if len(switches) > 0 {
		result += "  " + strings.Join(switches, " ") + "\n"
	}
	return result
}

func formatSwitch(v int) string {
	if v != 0 {
		return "ON"
	}
	return "OFF"
}
