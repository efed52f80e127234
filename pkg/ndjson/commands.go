// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ndjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Target is an actuator on the peer
type Target uint8

const (
	TargetNone Target = iota
	TargetWater
	TargetLight
	TargetFan
	TargetBuzzer
)

var targetNames = [...]string{"", "water", "light", "fan", "buzzer"}

// String returns the wire name of the target
func (t Target) String() string {
	if int(t) < len(targetNames) {
		return targetNames[t]
	}
	return ""
}

// ParseTarget decodes a wire target name
func ParseTarget(s string) (Target, error) {
	if s == "" {
		return TargetNone, invalid("target", "is required")
	}
	for i := 1; i < len(targetNames); i++ {
		if targetNames[i] == s {
			return Target(i), nil
		}
	}
	return TargetNone, invalid("target", "unknown target %q (want %s)", s, strings.Join(targetNames[1:], ", "))
}

// Action is what the peer should do with a target
type Action uint8

const (
	ActionNone Action = iota
	ActionOn
	ActionOff
	ActionPulse
)

var actionNames = [...]string{"", "on", "off", "pulse"}

// String returns the wire name of the action
func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return ""
}

// ParseAction decodes a wire action name
func ParseAction(s string) (Action, error) {
	if s == "" {
		return ActionNone, invalid("action", "is required")
	}
	for i := 1; i < len(actionNames); i++ {
		if actionNames[i] == s {
			return Action(i), nil
		}
	}
	return ActionNone, invalid("action", "unknown action %q (want %s)", s, strings.Join(actionNames[1:], ", "))
}

// Command is an outbound actuator command.
// TimeMs is only meaningful (and only serialized) for pulse commands.
type Command struct {
	Target Target
	Action Action
	TimeMs int
}

// NewSwitchCommand creates an on/off command for target
func NewSwitchCommand(target Target, on bool) Command {
	action := ActionOff
	if on {
		action = ActionOn
	}
	return Command{Target: target, Action: action}
}

// NewPulseCommand creates a pulse command.
// The peer switches target on for durationMs and then off again.
func NewPulseCommand(target Target, durationMs int) Command {
	return Command{Target: target, Action: ActionPulse, TimeMs: durationMs}
}

// Validate checks the command's fields against the protocol limits
func (c Command) Validate() error {
	if c.Target == TargetNone {
		return invalid("target", "is required")
	}
	if c.Target.String() == "" {
		return invalid("target", "unknown target %d", c.Target)
	}
	if c.Action == ActionNone {
		return invalid("action", "is required")
	}
	if c.Action.String() == "" {
		return invalid("action", "unknown action %d", c.Action)
	}
	if c.Action == ActionPulse && (c.TimeMs < MinPulseMs || c.TimeMs > MaxPulseMs) {
		return invalid("time", "out of range (%d, valid %d-%d ms)", c.TimeMs, MinPulseMs, MaxPulseMs)
	}
	return nil
}

// String returns a short human-readable form, e.g. "buzzer pulse 3000ms"
func (c Command) String() string {
	if c.Action == ActionPulse {
		return fmt.Sprintf("%s %s %dms", c.Target, c.Action, c.TimeMs)
	}
	return fmt.Sprintf("%s %s", c.Target, c.Action)
}

type wireCommand struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Action string `json:"action"`
	Time   *int   `json:"time,omitempty"`
}

// MarshalJSON encodes the command as a "cmd" line object.
// The type is always "cmd" regardless of how the command was built.
func (c Command) MarshalJSON() ([]byte, error) {
	w := wireCommand{
		Type:   TypeCmd,
		Target: c.Target.String(),
		Action: c.Action.String(),
	}
	if c.Action == ActionPulse {
		t := c.TimeMs
		w.Time = &t
	}
	return json.Marshal(w)
}

// DecodeCommand parses and validates a command object.
// Returns an error wrapping ErrMalformed when data is not a JSON object, or a
// *ValidationError when a field is missing or out of range. Any "type" field
// in data is ignored; the decoded command is always a "cmd".
func DecodeCommand(data []byte) (Command, error) {
	fields, err := ParseObject(data)
	if err != nil {
		return Command{}, err
	}

	var cmd Command

	target, err := stringField(fields, "target")
	if err != nil {
		return Command{}, err
	}
	if cmd.Target, err = ParseTarget(target); err != nil {
		return Command{}, err
	}

	action, err := stringField(fields, "action")
	if err != nil {
		return Command{}, err
	}
	if cmd.Action, err = ParseAction(action); err != nil {
		return Command{}, err
	}

	if cmd.Action == ActionPulse {
		raw, ok := fields["time"]
		if !ok || isNull(raw) {
			return Command{}, invalid("time", "is required for pulse")
		}
		var ms float64
		if err := json.Unmarshal(raw, &ms); err != nil || ms != math.Trunc(ms) {
			return Command{}, invalid("time", "must be an integer number of milliseconds")
		}
		if ms < MinPulseMs || ms > MaxPulseMs {
			return Command{}, invalid("time", "out of range (%.0f, valid %d-%d ms)", ms, MinPulseMs, MaxPulseMs)
		}
		cmd.TimeMs = int(ms)
	}

	return cmd, cmd.Validate()
}

// stringField returns fields[key] as a string, "" when absent or null
func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid(key, "must be a string")
	}
	return s, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
