// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"github.com/Thermoquad/canopy/pkg/ndjson"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LinesReceived  *prometheus.CounterVec
	ParseErrors    prometheus.Counter
	Overflows      prometheus.Counter
	CommandsSent   *prometheus.CounterVec
	CommandErrors  prometheus.Counter
	Breaches       prometheus.Counter
	AlarmsSent     prometheus.Counter
	LatestLogID    prometheus.Gauge
	LinkConnected  prometheus.Gauge
	LinkReconnects prometheus.Counter
}

// NewMetrics creates the bridge collectors (unregistered)
func NewMetrics() *Metrics {
	return &Metrics{
		LinesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "canopy",
				Subsystem: "lines",
				Name:      "received_total",
				Help:      "Total number of framed lines received from the peer",
			},
			[]string{"type"},
		),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "lines",
			Name:      "parse_errors_total",
			Help:      "Lines that were not a JSON object or had no type",
		}),
		Overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "lines",
			Name:      "overflows_total",
			Help:      "Lines discarded for exceeding the length cap",
		}),
		CommandsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "canopy",
				Subsystem: "commands",
				Name:      "sent_total",
				Help:      "Commands written to the peer",
			},
			[]string{"target", "action"},
		),
		CommandErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "commands",
			Name:      "errors_total",
			Help:      "Commands rejected by validation or the transport",
		}),
		Breaches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "alarm",
			Name:      "breaches_total",
			Help:      "Sensor samples that exceeded at least one threshold",
		}),
		AlarmsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "alarm",
			Name:      "sent_total",
			Help:      "Alarm commands sent to the peer",
		}),
		LatestLogID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "canopy",
			Subsystem: "log",
			Name:      "latest_id",
			Help:      "Last assigned message log id",
		}),
		LinkConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "canopy",
			Subsystem: "link",
			Name:      "connected",
			Help:      "Whether the peer transport is open (1) or not (0)",
		}),
		LinkReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "link",
			Name:      "reconnects_total",
			Help:      "Successful transport reconnects",
		}),
	}
}

// Register adds every collector to reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.LinesReceived, m.ParseErrors, m.Overflows,
		m.CommandsSent, m.CommandErrors,
		m.Breaches, m.AlarmsSent,
		m.LatestLogID, m.LinkConnected, m.LinkReconnects,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// lineReceived counts a typed line; unknown types share the "other" series
func (m *Metrics) lineReceived(msgType string) {
	if m == nil {
		return
	}
	switch msgType {
	case ndjson.TypeData, ndjson.TypeAck, ndjson.TypeStatus:
	default:
		msgType = "other"
	}
	m.LinesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) parseError() {
	if m != nil {
		m.ParseErrors.Inc()
	}
}

func (m *Metrics) overflow(n uint64) {
	if m != nil && n > 0 {
		m.Overflows.Add(float64(n))
	}
}

func (m *Metrics) commandSent(target, action string) {
	if m != nil {
		m.CommandsSent.WithLabelValues(target, action).Inc()
	}
}

func (m *Metrics) commandFailed() {
	if m != nil {
		m.CommandErrors.Inc()
	}
}

func (m *Metrics) breach() {
	if m != nil {
		m.Breaches.Inc()
	}
}

func (m *Metrics) alarmSent() {
	if m != nil {
		m.AlarmsSent.Inc()
	}
}

func (m *Metrics) logAppended(id uint32) {
	if m != nil {
		m.LatestLogID.Set(float64(id))
	}
}

// SetConnected records the transport state
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.LinkConnected.Set(1)
	} else {
		m.LinkConnected.Set(0)
	}
}

// Reconnected counts a successful transport reconnect
func (m *Metrics) Reconnected() {
	if m != nil {
		m.LinkReconnects.Inc()
	}
}
