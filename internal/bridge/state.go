// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"log/slog"
	"strings"
	"time"

	"github.com/Thermoquad/canopy/pkg/ndjson"
)

// DefaultPeerIP is reported until the peer sends a status line
const DefaultPeerIP = "0.0.0.0"

// SensorSnapshot is the last known value of every sensor field
type SensorSnapshot struct {
	Valid     bool
	Temp      float64
	Humi      float64
	Soil      int
	Lux       float64
	Water     int
	Light     int
	Fan       int
	Buzzer    int
	UpdatedAt time.Time
}

// Merge overwrites the fields present in sample and keeps the rest
func (s *SensorSnapshot) Merge(sample ndjson.SensorSample, now time.Time) {
	s.Valid = true
	if sample.Temp != nil {
		s.Temp = *sample.Temp
	}
	if sample.Humi != nil {
		s.Humi = *sample.Humi
	}
	if sample.Soil != nil {
		s.Soil = int(*sample.Soil)
	}
	if sample.Lux != nil {
		s.Lux = *sample.Lux
	}
	if sample.Water != nil {
		s.Water = *sample.Water
	}
	if sample.Light != nil {
		s.Light = *sample.Light
	}
	if sample.Fan != nil {
		s.Fan = *sample.Fan
	}
	if sample.Buzzer != nil {
		s.Buzzer = *sample.Buzzer
	}
	s.UpdatedAt = now
}

// AckSnapshot is the last command acknowledgement reported by the peer
type AckSnapshot struct {
	Valid     bool
	Target    string
	Action    string
	Result    string
	UpdatedAt time.Time
}

// Update replaces the snapshot with ack
func (a *AckSnapshot) Update(ack ndjson.Ack, now time.Time) {
	a.Valid = true
	a.Target = ack.Target
	a.Action = ack.Action
	a.Result = ack.Result
	a.UpdatedAt = now
}

// Options configures a State
type Options struct {
	LogCapacity int
	Channel     *CommandChannel
	Clock       func() time.Time
	Logger      *slog.Logger
	Metrics     *Metrics
}

// State is everything the bridge knows.
// It is owned by a single goroutine (see Bridge) and carries no locks.
type State struct {
	Log    *MessageLog
	Sensor SensorSnapshot
	Ack    AckSnapshot
	PeerIP string
	Engine *Engine

	channel         *CommandChannel
	clock           func() time.Time
	start           time.Time
	logger          *slog.Logger
	metrics         *Metrics
	sampleObservers []func(SensorSnapshot)
}

// NewState creates an empty state
func NewState(opts Options) *State {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Channel == nil {
		opts.Channel = NewCommandChannel(DefaultBreakerSettings())
	}

	s := &State{
		Log:     NewMessageLog(opts.LogCapacity),
		PeerIP:  DefaultPeerIP,
		channel: opts.Channel,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	s.start = s.clock()
	s.Engine = NewEngine(s, s.Log, s.start, s.logger, s.metrics)
	s.Log.OnAppend(func(e MessageEntry) { s.metrics.logAppended(e.ID) })
	return s
}

// Now returns the current time of the state's clock
func (s *State) Now() time.Time {
	return s.clock()
}

// Uptime returns the time since the state was created
func (s *State) Uptime() time.Duration {
	return s.clock().Sub(s.start)
}

// Age returns the time elapsed since t
func (s *State) Age(t time.Time) time.Duration {
	return s.clock().Sub(t)
}

// Channel returns the command channel
func (s *State) Channel() *CommandChannel {
	return s.channel
}

// Connected reports whether a transport is attached
func (s *State) Connected() bool {
	return s.channel.Connected()
}

// SendCommand validates cmd, writes it to the peer and appends its echo to the
// log. Returns the echo's log id. Nothing is logged when validation or the
// write fails.
func (s *State) SendCommand(cmd ndjson.Command) (uint32, error) {
	line, err := s.channel.Send(cmd)
	if err != nil {
		s.metrics.commandFailed()
		return 0, err
	}
	s.metrics.commandSent(cmd.Target.String(), cmd.Action.String())
	id := s.Log.Append(string(line))
	s.logger.Debug("command sent", "command", cmd.String(), "id", id)
	return id, nil
}

// SendRawLine writes line to the peer as-is; it is not added to the log
func (s *State) SendRawLine(line string) error {
	if strings.TrimSpace(line) == "" {
		return ErrEmptyLine
	}
	return s.channel.WriteLine([]byte(line))
}

// OnSample registers fn to be called with the merged snapshot after every
// data line. fn runs on the owning goroutine and must not block.
func (s *State) OnSample(fn func(SensorSnapshot)) {
	s.sampleObservers = append(s.sampleObservers, fn)
}
