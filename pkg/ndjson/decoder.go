// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ndjson

// LineDecoder frames a byte stream into lines.
//
// Bytes accumulate until a line feed completes the line. Carriage returns are
// dropped. A line that grows past MaxLineSize is discarded as a whole: the
// buffered bytes are thrown away and every byte up to the next line feed is
// skipped, so only complete, length-bounded lines are ever delivered.
type LineDecoder struct {
	buffer     []byte
	discarding bool
	overflows  uint64
}

// NewLineDecoder creates a new line decoder
func NewLineDecoder() *LineDecoder {
	return &LineDecoder{
		buffer: make([]byte, 0, MaxLineSize/2),
	}
}

// Reset drops any partially received line
func (d *LineDecoder) Reset() {
	d.buffer = d.buffer[:0]
	d.discarding = false
}

// Pending returns the number of bytes buffered for the line in progress
func (d *LineDecoder) Pending() int {
	return len(d.buffer)
}

// Overflows returns how many oversized lines have been discarded
func (d *LineDecoder) Overflows() uint64 {
	return d.overflows
}

// DecodeByte processes a single byte.
// Returns the completed line and true when b terminates a non-empty line.
// The returned slice is owned by the caller.
func (d *LineDecoder) DecodeByte(b byte) ([]byte, bool) {
	switch b {
	case LineFeed:
		if d.discarding || len(d.buffer) == 0 {
			d.Reset()
			return nil, false
		}
		line := make([]byte, len(d.buffer))
		copy(line, d.buffer)
		d.Reset()
		return line, true

	case CarriageReturn:
		return nil, false
	}

	if d.discarding {
		return nil, false
	}

	if len(d.buffer) >= MaxLineSize {
		d.buffer = d.buffer[:0]
		d.discarding = true
		d.overflows++
		return nil, false
	}

	d.buffer = append(d.buffer, b)
	return nil, false
}

// Feed runs every byte of p through the decoder and calls fn for each completed line
func (d *LineDecoder) Feed(p []byte, fn func(line []byte)) {
	for _, b := range p {
		if line, ok := d.DecodeByte(b); ok {
			fn(line)
		}
	}
}
