// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"github.com/Thermoquad/canopy/pkg/ndjson"
)

// HandleLine routes one framed line from the peer.
// The raw line is always logged first, even when it does not parse.
func (s *State) HandleLine(line string) {
	s.Log.Append(line)

	fields, err := ndjson.ParseObject([]byte(line))
	if err != nil {
		s.metrics.parseError()
		s.logger.Warn("dropping unparseable line", "error", err, "line", line)
		return
	}

	msgType, err := ndjson.MessageType(fields)
	if err != nil {
		s.metrics.parseError()
		s.logger.Warn("dropping line without type", "line", line)
		return
	}
	s.metrics.lineReceived(msgType)

	now := s.clock()

	switch msgType {
	case ndjson.TypeData:
		sample := ndjson.DecodeSensorSample(fields)
		s.Sensor.Merge(sample, now)
		for _, fn := range s.sampleObservers {
			fn(s.Sensor)
		}
		s.Engine.Evaluate(sample, now)

	case ndjson.TypeAck:
		s.Ack.Update(ndjson.DecodeAck(fields), now)

	case ndjson.TypeStatus:
		if ip, ok := ndjson.DecodeStatusIP(fields); ok {
			s.PeerIP = ip
		}

	default:
		s.logger.Debug("ignoring line", "type", msgType)
	}
}
