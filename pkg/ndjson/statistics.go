// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ndjson

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks line counts and error rates for a stream
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalLines   uint64
	ValidLines   uint64
	ParseErrors  uint64
	UntypedLines uint64
	Overflows    uint64
	DataLines    uint64
	AckLines     uint64
	StatusLines  uint64
	OtherLines   uint64

	// Rates (calculated)
	LineRate  float64 // lines/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one delivered line.
// msgType is the line's type (ignored when err is non-nil).
func (s *Statistics) Update(msgType string, err error) {
	s.TotalLines++
	s.LastUpdateTime = time.Now()

	if err != nil {
		if errors.Is(err, ErrMissingType) {
			s.UntypedLines++
		} else {
			s.ParseErrors++
		}
		return
	}

	s.ValidLines++
	switch msgType {
	case TypeData:
		s.DataLines++
	case TypeAck:
		s.AckLines++
	case TypeStatus:
		s.StatusLines++
	default:
		s.OtherLines++
	}
}

// SetOverflows records the decoder's discarded line count
func (s *Statistics) SetOverflows(n uint64) {
	s.Overflows = n
}

// CalculateRates calculates line and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.LineRate = float64(s.TotalLines) / elapsed
		s.ErrorRate = float64(s.ParseErrors+s.UntypedLines+s.Overflows) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalLines > 0 {
		validPercent = float64(s.ValidLines) * 100.0 / float64(s.TotalLines)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Lines:     %8d\n", s.TotalLines)
	result += fmt.Sprintf("Valid Lines:     %8d (%.1f%%)\n", s.ValidLines, validPercent)
	result += fmt.Sprintf("  data/ack/status: %d/%d/%d, other: %d\n", s.DataLines, s.AckLines, s.StatusLines, s.OtherLines)

	if s.ParseErrors > 0 {
		result += fmt.Sprintf("Parse Errors:    %8d\n", s.ParseErrors)
	}
	if s.UntypedLines > 0 {
		result += fmt.Sprintf("Untyped Lines:   %8d\n", s.UntypedLines)
	}
	if s.Overflows > 0 {
		result += fmt.Sprintf("Overflows:       %8d (lines > %d bytes)\n", s.Overflows, MaxLineSize)
	}

	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", s.LineRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}
