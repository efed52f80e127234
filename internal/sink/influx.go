// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"log/slog"
	"sync/atomic"

	"github.com/Thermoquad/canopy/internal/bridge"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Measurement is the InfluxDB measurement sensor snapshots are written to
const Measurement = "sensor"

// InfluxOptions configures the InfluxDB connection
type InfluxOptions struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	Source string // value of the "source" tag

	BatchSize       uint
	FlushIntervalMs uint
}

// InfluxRecorder writes every merged sensor snapshot as a point.
// Writes go through the non-blocking WriteAPI; failures are only logged.
type InfluxRecorder struct {
	client influxdb2.Client
	write  api.WriteAPI
	tags   map[string]string
	logger *slog.Logger
	errors atomic.Uint64
	done   chan struct{}
}

// NewInfluxRecorder creates the client and starts its error listener
func NewInfluxRecorder(opts InfluxOptions, logger *slog.Logger) *InfluxRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 20
	}
	if opts.FlushIntervalMs == 0 {
		opts.FlushIntervalMs = 1000
	}
	if opts.Source == "" {
		opts.Source = "canopy"
	}

	clientOpts := influxdb2.DefaultOptions().
		SetBatchSize(opts.BatchSize).
		SetFlushInterval(opts.FlushIntervalMs)
	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token, clientOpts)

	r := &InfluxRecorder{
		client: client,
		write:  client.WriteAPI(opts.Org, opts.Bucket),
		tags:   map[string]string{"source": opts.Source},
		logger: logger,
		done:   make(chan struct{}),
	}

	errs := r.write.Errors()
	go func() {
		defer close(r.done)
		for err := range errs {
			if err != nil {
				r.errors.Add(1)
				r.logger.Warn("influx write error", "error", err)
			}
		}
	}()

	logger.Info("recording sensor data to influx", "url", opts.URL, "bucket", opts.Bucket)
	return r
}

// Record queues one point for s. Register it with State.OnSample.
func (r *InfluxRecorder) Record(s bridge.SensorSnapshot) {
	fields := map[string]interface{}{
		"temp":   s.Temp,
		"humi":   s.Humi,
		"soil":   s.Soil,
		"lux":    s.Lux,
		"water":  s.Water,
		"light":  s.Light,
		"fan":    s.Fan,
		"buzzer": s.Buzzer,
	}
	r.write.WritePoint(influxdb2.NewPoint(Measurement, r.tags, fields, s.UpdatedAt))
}

// Errors returns the number of failed batch writes so far
func (r *InfluxRecorder) Errors() uint64 {
	return r.errors.Load()
}

// Close flushes pending points and closes the client
func (r *InfluxRecorder) Close() {
	r.write.Flush()
	r.client.Close()
	<-r.done
}
