// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ndjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingType is returned for a JSON object without a string "type" field
var ErrMissingType = errors.New("missing type field")

// ParseObject decodes a JSON object into its raw fields
func ParseObject(data []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected object", ErrMalformed)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fields, nil
}

// MessageType returns the "type" discriminator of a parsed line
func MessageType(fields map[string]json.RawMessage) (string, error) {
	raw, ok := fields["type"]
	if !ok {
		return "", ErrMissingType
	}
	var t string
	if err := json.Unmarshal(raw, &t); err != nil {
		return "", ErrMissingType
	}
	return t, nil
}

// SensorSample is a decoded "data" line.
// A nil field was absent from the line (or not a number) and must leave the
// previously known value untouched.
type SensorSample struct {
	Temp   *float64
	Humi   *float64
	Soil   *float64
	Lux    *float64
	Water  *int
	Light  *int
	Fan    *int
	Buzzer *int
}

// DecodeSensorSample extracts the sensor fields of a "data" line
func DecodeSensorSample(fields map[string]json.RawMessage) SensorSample {
	return SensorSample{
		Temp:   numberField(fields, FieldTemp),
		Humi:   numberField(fields, FieldHumi),
		Soil:   numberField(fields, FieldSoil),
		Lux:    numberField(fields, FieldLux),
		Water:  switchField(fields, FieldWater),
		Light:  switchField(fields, FieldLight),
		Fan:    switchField(fields, FieldFan),
		Buzzer: switchField(fields, FieldBuzzer),
	}
}

// Empty reports whether the sample carries no fields at all
func (s SensorSample) Empty() bool {
	return s.Temp == nil && s.Humi == nil && s.Soil == nil && s.Lux == nil &&
		s.Water == nil && s.Light == nil && s.Fan == nil && s.Buzzer == nil
}

func numberField(fields map[string]json.RawMessage, key string) *float64 {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// switchField accepts only 0 or 1; any other value counts as absent
func switchField(fields map[string]json.RawMessage, key string) *int {
	v := numberField(fields, key)
	if v == nil || (*v != 0 && *v != 1) {
		return nil
	}
	i := int(*v)
	return &i
}

// Ack is a decoded "ack" line; absent fields are empty strings
type Ack struct {
	Target string
	Action string
	Result string
}

// DecodeAck extracts the fields of an "ack" line
func DecodeAck(fields map[string]json.RawMessage) Ack {
	var a Ack
	a.Target, _ = stringField(fields, "target")
	a.Action, _ = stringField(fields, "action")
	a.Result, _ = stringField(fields, "result")
	return a
}

// DecodeStatusIP extracts the "ip" field of a "status" line.
// Returns false when the field is absent, null or not a string.
func DecodeStatusIP(fields map[string]json.RawMessage) (string, bool) {
	raw, ok := fields["ip"]
	if !ok || isNull(raw) {
		return "", false
	}
	var ip string
	if err := json.Unmarshal(raw, &ip); err != nil {
		return "", false
	}
	return ip, true
}

// AlarmRecord is the log line recorded when an alarm command is sent
type AlarmRecord struct {
	Type             string `json:"type"`
	Reason           string `json:"reason"`
	TriggeredAt      int64  `json:"triggeredAt"`
	RelatedMessageID uint32 `json:"relatedMessageId"`
}

// NewAlarmRecord creates an alarm record; triggeredAtMs is milliseconds since bridge start
func NewAlarmRecord(reason string, triggeredAtMs int64, relatedID uint32) AlarmRecord {
	return AlarmRecord{
		Type:             TypeAlarm,
		Reason:           reason,
		TriggeredAt:      triggeredAtMs,
		RelatedMessageID: relatedID,
	}
}

// Encode renders the record as one line without the terminator.
// The reason keeps its literal '>' rather than the HTML-safe escape.
func (r AlarmRecord) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{LineFeed}), nil
}

// StatusMessage reports the bridge's network address to the peer
type StatusMessage struct {
	Type string `json:"type"`
	IP   string `json:"ip"`
}

// NewStatusLine encodes an outbound status line (without the terminator)
func NewStatusLine(ip string) []byte {
	line, _ := json.Marshal(StatusMessage{Type: TypeStatus, IP: ip})
	return line
}
