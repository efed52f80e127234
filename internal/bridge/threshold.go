// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/Thermoquad/canopy/pkg/ndjson"
)

// Metric is a sensor reading that can carry a threshold
type Metric uint8

const (
	MetricTemp Metric = iota
	MetricHumi
	MetricSoil
	MetricLux
	metricCount
)

// allMetrics lists every thresholded metric in evaluation order
var allMetrics = [metricCount]Metric{MetricTemp, MetricHumi, MetricSoil, MetricLux}

type metricInfo struct {
	key      string
	label    string
	min, max float64
	decimals int
}

var metricTable = [metricCount]metricInfo{
	MetricTemp: {ndjson.FieldTemp, "temperature", -40, 125, 1},
	MetricHumi: {ndjson.FieldHumi, "humidity", 0, 100, 1},
	MetricSoil: {ndjson.FieldSoil, "soil", 0, 100, 0},
	MetricLux:  {ndjson.FieldLux, "light", 0, 200000, 1},
}

// Key returns the JSON field name of the metric
func (m Metric) Key() string { return metricTable[m].key }

// Label returns the human-readable name used in alarm reasons
func (m Metric) Label() string { return metricTable[m].label }

// Range returns the inclusive bounds accepted for a threshold value
func (m Metric) Range() (lo, hi float64) { return metricTable[m].min, metricTable[m].max }

// Format renders v with the metric's display precision
func (m Metric) Format(v float64) string {
	return strconv.FormatFloat(v, 'f', metricTable[m].decimals, 64)
}

// Threshold is an optional upper limit; a disabled threshold never breaches
type Threshold struct {
	Enabled bool
	Value   float64
}

// ThresholdConfig holds one optional threshold per metric
type ThresholdConfig struct {
	limits [metricCount]Threshold
}

// Get returns the threshold for m
func (c *ThresholdConfig) Get(m Metric) Threshold {
	return c.limits[m]
}

// Set enables the threshold for m at value
func (c *ThresholdConfig) Set(m Metric, value float64) {
	c.limits[m] = Threshold{Enabled: true, Value: value}
}

// Disable removes the threshold for m
func (c *ThresholdConfig) Disable(m Metric) {
	c.limits[m].Enabled = false
}

// AnyEnabled reports whether at least one threshold is active
func (c *ThresholdConfig) AnyEnabled() bool {
	for _, t := range c.limits {
		if t.Enabled {
			return true
		}
	}
	return false
}

// Apply stores every threshold named in u; other metrics are untouched
func (c *ThresholdConfig) Apply(u ThresholdUpdate) {
	for _, m := range allMetrics {
		if t, ok := u[m]; ok {
			c.limits[m] = t
		}
	}
}

type thresholdsJSON struct {
	Temp *float64 `json:"temp"`
	Humi *float64 `json:"humi"`
	Soil *float64 `json:"soil"`
	Lux  *float64 `json:"lux"`
}

// MarshalJSON encodes each metric as its value, or null when disabled
func (c ThresholdConfig) MarshalJSON() ([]byte, error) {
	value := func(m Metric) *float64 {
		t := c.limits[m]
		if !t.Enabled {
			return nil
		}
		v := t.Value
		return &v
	}
	return json.Marshal(thresholdsJSON{
		Temp: value(MetricTemp),
		Humi: value(MetricHumi),
		Soil: value(MetricSoil),
		Lux:  value(MetricLux),
	})
}

// ThresholdUpdate is a validated set of threshold changes
type ThresholdUpdate map[Metric]Threshold

// DecodeThresholdUpdate parses a threshold update body.
// Each recognized field must be a number within the metric's range, or null to
// disable it. A single invalid field rejects the whole update; an update with
// no recognized field is rejected as well. Unknown fields are ignored.
func DecodeThresholdUpdate(data []byte) (ThresholdUpdate, error) {
	fields, err := ndjson.ParseObject(data)
	if err != nil {
		return nil, err
	}

	update := make(ThresholdUpdate)
	for _, m := range allMetrics {
		raw, ok := fields[m.Key()]
		if !ok {
			continue
		}

		var v *float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &ndjson.ValidationError{Field: m.Key(), Message: "must be a number or null"}
		}
		if v == nil {
			update[m] = Threshold{}
			continue
		}

		lo, hi := m.Range()
		if math.IsNaN(*v) || *v < lo || *v > hi {
			return nil, &ndjson.ValidationError{
				Field:   m.Key(),
				Message: fmt.Sprintf("out of range (%s, valid %s to %s)", m.Format(*v), m.Format(lo), m.Format(hi)),
			}
		}
		update[m] = Threshold{Enabled: true, Value: *v}
	}

	if len(update) == 0 {
		return nil, &ndjson.ValidationError{Message: "no threshold fields (want temp, humi, soil, lux)"}
	}
	return update, nil
}
