// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ndjson

import (
	"encoding/json"
	"errors"
	"testing"
)

// ============================================================
// Command Decoding Tests
// ============================================================

func TestDecodeCommand_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Command
	}{
		{"water on", `{"target":"water","action":"on"}`, Command{Target: TargetWater, Action: ActionOn}},
		{"light off", `{"target":"light","action":"off"}`, Command{Target: TargetLight, Action: ActionOff}},
		{"fan on ignores time", `{"target":"fan","action":"on","time":50}`, Command{Target: TargetFan, Action: ActionOn}},
		{"buzzer pulse", `{"target":"buzzer","action":"pulse","time":3000}`, Command{Target: TargetBuzzer, Action: ActionPulse, TimeMs: 3000}},
		{"pulse lower bound", `{"target":"water","action":"pulse","time":1}`, Command{Target: TargetWater, Action: ActionPulse, TimeMs: 1}},
		{"pulse upper bound", `{"target":"water","action":"pulse","time":10000}`, Command{Target: TargetWater, Action: ActionPulse, TimeMs: 10000}},
		{"type overridden", `{"type":"data","target":"light","action":"on"}`, Command{Target: TargetLight, Action: ActionOn}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tt.input))
			if err != nil {
				t.Fatalf("DecodeCommand(%s) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("DecodeCommand(%s) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeCommand_Rejected(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantField string
	}{
		{"missing target", `{"action":"on"}`, "target"},
		{"unknown target", `{"target":"heater","action":"on"}`, "target"},
		{"numeric target", `{"target":3,"action":"on"}`, "target"},
		{"missing action", `{"target":"fan"}`, "action"},
		{"unknown action", `{"target":"fan","action":"toggle"}`, "action"},
		{"pulse without time", `{"target":"buzzer","action":"pulse"}`, "time"},
		{"pulse null time", `{"target":"buzzer","action":"pulse","time":null}`, "time"},
		{"pulse zero", `{"target":"buzzer","action":"pulse","time":0}`, "time"},
		{"pulse negative", `{"target":"buzzer","action":"pulse","time":-5}`, "time"},
		{"pulse too long", `{"target":"buzzer","action":"pulse","time":10001}`, "time"},
		{"pulse fractional", `{"target":"buzzer","action":"pulse","time":12.5}`, "time"},
		{"pulse string time", `{"target":"buzzer","action":"pulse","time":"100"}`, "time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(tt.input))
			if err == nil {
				t.Fatalf("DecodeCommand(%s) expected error", tt.input)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T: %v", err, err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("error field = %q, want %q (%v)", verr.Field, tt.wantField, err)
			}
		})
	}
}

func TestDecodeCommand_Malformed(t *testing.T) {
	for _, input := range []string{"", "not json", "[1,2]", `{"target":`, "42"} {
		_, err := DecodeCommand([]byte(input))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeCommand(%q) = %v, want ErrMalformed", input, err)
		}
		if IsValidationError(err) {
			t.Errorf("DecodeCommand(%q) should not be a validation error", input)
		}
	}
}

// ============================================================
// Command Encoding Tests
// ============================================================

func TestCommand_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"switch on", NewSwitchCommand(TargetWater, true), `{"type":"cmd","target":"water","action":"on"}`},
		{"switch off", NewSwitchCommand(TargetFan, false), `{"type":"cmd","target":"fan","action":"off"}`},
		{"pulse", NewPulseCommand(TargetBuzzer, 3000), `{"type":"cmd","target":"buzzer","action":"pulse","time":3000}`},
		{"time dropped for switch", Command{Target: TargetLight, Action: ActionOn, TimeMs: 99}, `{"type":"cmd","target":"light","action":"on"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.cmd)
			if err != nil {
				t.Fatalf("Marshal error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCommand_Validate(t *testing.T) {
	if err := NewPulseCommand(TargetBuzzer, 3000).Validate(); err != nil {
		t.Errorf("alarm pulse should be valid: %v", err)
	}
	if err := NewPulseCommand(TargetBuzzer, 0).Validate(); err == nil {
		t.Error("zero-length pulse should be rejected")
	}
	if err := (Command{Action: ActionOn}).Validate(); err == nil {
		t.Error("command without target should be rejected")
	}
	if err := (Command{Target: Target(42), Action: ActionOn}).Validate(); err == nil {
		t.Error("command with out-of-range target should be rejected")
	}
}

func TestCommand_String(t *testing.T) {
	if got := NewPulseCommand(TargetBuzzer, 3000).String(); got != "buzzer pulse 3000ms" {
		t.Errorf("String() = %q", got)
	}
	if got := NewSwitchCommand(TargetLight, true).String(); got != "light on" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseTarget_AllNames(t *testing.T) {
	for _, target := range []Target{TargetWater, TargetLight, TargetFan, TargetBuzzer} {
		got, err := ParseTarget(target.String())
		if err != nil || got != target {
			t.Errorf("ParseTarget(%q) = %v, %v", target.String(), got, err)
		}
	}
}
