// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ndjson implements the newline-delimited JSON line protocol spoken between
// canopy and its serial peer (the sensor/actuator controller).
//
// Every message is a single JSON object terminated by '\n'. Carriage returns are
// ignored. The object's "type" field selects the message kind: the peer sends
// "data", "ack" and "status" lines, the bridge sends "cmd" and "status" lines and
// records "alarm" lines in its own message log.
package ndjson

// Line framing bytes
const (
	LineFeed       = '\n'
	CarriageReturn = '\r'
)

// MaxLineSize is the longest line the decoder will buffer before discarding it.
const MaxLineSize = 512

// Message types
const (
	TypeData   = "data"
	TypeAck    = "ack"
	TypeStatus = "status"
	TypeCmd    = "cmd"
	TypeAlarm  = "alarm"
)

// Pulse duration limits (milliseconds)
const (
	MinPulseMs = 1
	MaxPulseMs = 10000
)

// Sensor field keys carried by "data" lines
const (
	FieldTemp   = "temp"
	FieldHumi   = "humi"
	FieldSoil   = "soil"
	FieldLux    = "lux"
	FieldWater  = "water"
	FieldLight  = "light"
	FieldFan    = "fan"
	FieldBuzzer = "buzzer"
)
