// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Thermoquad/canopy/internal/bridge"
)

type errorResponse struct {
	Error string `json:"error"`
}

type commandResponse struct {
	Result   string `json:"result"`
	QueuedID uint32 `json:"queuedId"`
}

type linkStatus struct {
	Connected bool   `json:"connected"`
	IP        string `json:"ip"`
}

type transportStatus struct {
	Connected bool `json:"connected"`
}

type sensorJSON struct {
	Temp   float64 `json:"temp"`
	Humi   float64 `json:"humi"`
	Soil   int     `json:"soil"`
	Lux    float64 `json:"lux"`
	Water  int     `json:"water"`
	Light  int     `json:"light"`
	Fan    int     `json:"fan"`
	Buzzer int     `json:"buzzer"`
	AgeMs  int64   `json:"ageMs"`
}

type ackJSON struct {
	Target string `json:"target"`
	Action string `json:"action"`
	Result string `json:"result"`
	AgeMs  int64  `json:"ageMs"`
}

type alarmJSON struct {
	Count      uint32  `json:"count"`
	CooldownMs int64   `json:"cooldownMs"`
	PulseMs    int64   `json:"pulseMs"`
	Reason     *string `json:"reason"`
	AgeMs      *int64  `json:"ageMs"`
}

type stateResponse struct {
	WiFi           linkStatus             `json:"wifi"`
	Peer           transportStatus        `json:"peer"`
	PeerReportedIP string                 `json:"peerReportedIp"`
	UptimeSeconds  int64                  `json:"uptimeSeconds"`
	LatestData     *sensorJSON            `json:"latestData,omitempty"`
	LatestAck      *ackJSON               `json:"latestAck,omitempty"`
	Thresholds     bridge.ThresholdConfig `json:"thresholds"`
	Alarm          alarmJSON              `json:"alarm"`
}

type thresholdsResponse struct {
	OK         bool                   `json:"ok"`
	Thresholds bridge.ThresholdConfig `json:"thresholds"`
	Alarm      alarmJSON              `json:"alarm"`
}

func newAlarmJSON(s *bridge.State) alarmJSON {
	a := alarmJSON{
		Count:      s.Engine.Alarm.Count,
		CooldownMs: bridge.AlarmCooldown.Milliseconds(),
		PulseMs:    bridge.AlarmPulse.Milliseconds(),
	}
	if s.Engine.Alarm.Triggered() {
		reason := s.Engine.Alarm.Reason
		age := s.Age(s.Engine.Alarm.LastTriggeredAt).Milliseconds()
		a.Reason = &reason
		a.AgeMs = &age
	}
	return a
}

func newThresholdsResponse(s *bridge.State) thresholdsResponse {
	return thresholdsResponse{
		OK:         true,
		Thresholds: s.Engine.Thresholds,
		Alarm:      newAlarmJSON(s),
	}
}

func newStateResponse(s *bridge.State, wifi linkStatus) stateResponse {
	resp := stateResponse{
		WiFi:           wifi,
		Peer:           transportStatus{Connected: s.Connected()},
		PeerReportedIP: s.PeerIP,
		UptimeSeconds:  int64(s.Uptime() / time.Second),
		Thresholds:     s.Engine.Thresholds,
		Alarm:          newAlarmJSON(s),
	}
	if s.Sensor.Valid {
		resp.LatestData = &sensorJSON{
			Temp:   s.Sensor.Temp,
			Humi:   s.Sensor.Humi,
			Soil:   s.Sensor.Soil,
			Lux:    s.Sensor.Lux,
			Water:  s.Sensor.Water,
			Light:  s.Sensor.Light,
			Fan:    s.Sensor.Fan,
			Buzzer: s.Sensor.Buzzer,
			AgeMs:  s.Age(s.Sensor.UpdatedAt).Milliseconds(),
		}
	}
	if s.Ack.Valid {
		resp.LatestAck = &ackJSON{
			Target: s.Ack.Target,
			Action: s.Ack.Action,
			Result: s.Ack.Result,
			AgeMs:  s.Age(s.Ack.UpdatedAt).Milliseconds(),
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
