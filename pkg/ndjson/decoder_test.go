// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ndjson

import (
	"bytes"
	"strings"
	"testing"
)

// collectLines feeds data through a fresh decoder and returns every delivered line
func collectLines(d *LineDecoder, data []byte) []string {
	var lines []string
	d.Feed(data, func(line []byte) {
		lines = append(lines, string(line))
	})
	return lines
}

// ============================================================
// Line Framing Tests
// ============================================================

func TestLineDecoder_SingleLine(t *testing.T) {
	d := NewLineDecoder()
	lines := collectLines(d, []byte(`{"type":"data","temp":21.5}`+"\n"))

	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	if lines[0] != `{"type":"data","temp":21.5}` {
		t.Errorf("Unexpected line: %q", lines[0])
	}
	if d.Pending() != 0 {
		t.Errorf("Expected empty buffer after delivery, got %d bytes", d.Pending())
	}
}

func TestLineDecoder_CarriageReturnIgnored(t *testing.T) {
	d := NewLineDecoder()
	lines := collectLines(d, []byte("{\"a\":1}\r\n{\"b\"\r:2}\r\n"))

	want := []string{`{"a":1}`, `{"b":2}`}
	if len(lines) != len(want) {
		t.Fatalf("Expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestLineDecoder_SplitAcrossChunks(t *testing.T) {
	d := NewLineDecoder()

	if lines := collectLines(d, []byte(`{"type":"ack",`)); len(lines) != 0 {
		t.Fatalf("Partial line must not be delivered, got %q", lines)
	}
	if d.Pending() == 0 {
		t.Fatal("Expected buffered bytes for partial line")
	}

	lines := collectLines(d, []byte(`"result":"ok"}`+"\n"))
	if len(lines) != 1 || lines[0] != `{"type":"ack","result":"ok"}` {
		t.Errorf("Unexpected lines: %q", lines)
	}
}

func TestLineDecoder_EmptyLinesNotDelivered(t *testing.T) {
	d := NewLineDecoder()
	lines := collectLines(d, []byte("\n\r\n\n{}\n"))

	if len(lines) != 1 || lines[0] != "{}" {
		t.Errorf("Expected only the non-empty line, got %q", lines)
	}
}

func TestLineDecoder_MaxSizeLineDelivered(t *testing.T) {
	d := NewLineDecoder()
	payload := strings.Repeat("x", MaxLineSize)
	lines := collectLines(d, []byte(payload+"\n"))

	if len(lines) != 1 {
		t.Fatalf("Expected a line of exactly %d bytes to be delivered, got %d lines", MaxLineSize, len(lines))
	}
	if len(lines[0]) != MaxLineSize {
		t.Errorf("Delivered length = %d, want %d", len(lines[0]), MaxLineSize)
	}
	if d.Overflows() != 0 {
		t.Errorf("Overflows = %d, want 0", d.Overflows())
	}
}

func TestLineDecoder_OversizedLineDiscarded(t *testing.T) {
	d := NewLineDecoder()
	oversized := strings.Repeat("y", MaxLineSize+100)
	data := []byte(oversized + "\n" + `{"type":"status"}` + "\n")

	lines := collectLines(d, data)

	if len(lines) != 1 {
		t.Fatalf("Expected only the line after the oversized one, got %d lines", len(lines))
	}
	if lines[0] != `{"type":"status"}` {
		t.Errorf("Unexpected line: %q", lines[0])
	}
	if d.Overflows() != 1 {
		t.Errorf("Overflows = %d, want 1", d.Overflows())
	}
}

func TestLineDecoder_OverflowTailNotDelivered(t *testing.T) {
	d := NewLineDecoder()

	// The overflow happens in the first chunk; the tail arrives later
	collectLines(d, bytes.Repeat([]byte("z"), MaxLineSize+1))
	lines := collectLines(d, []byte("tail-of-oversized-line\n"))

	if len(lines) != 0 {
		t.Errorf("Tail of an oversized line must not be delivered, got %q", lines)
	}

	lines = collectLines(d, []byte("{}\n"))
	if len(lines) != 1 {
		t.Errorf("Decoder should recover after the terminator, got %q", lines)
	}
}

func TestLineDecoder_Reset(t *testing.T) {
	d := NewLineDecoder()
	collectLines(d, []byte(`{"partial"`))
	d.Reset()

	lines := collectLines(d, []byte("{}\n"))
	if len(lines) != 1 || lines[0] != "{}" {
		t.Errorf("Reset should drop the partial line, got %q", lines)
	}
}

func TestLineDecoder_DeliveredLineIsCopy(t *testing.T) {
	d := NewLineDecoder()
	var first []byte
	d.Feed([]byte("aaaa\n"), func(line []byte) { first = line })
	d.Feed([]byte("bbbb\n"), func(line []byte) {})

	if string(first) != "aaaa" {
		t.Errorf("Delivered line was overwritten by later input: %q", first)
	}
}
