// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/canopy/pkg/ndjson"
	"github.com/spf13/cobra"
)

var (
	sendTarget string
	sendAction string
	sendTimeMs int
	sendWait   time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one actuator command directly to the controller",
	Long: `Validate a command and write it to the controller as a single NDJSON line,
without going through a running bridge.

Examples:
  canopy send --port /dev/ttyUSB0 --target fan --action on
  canopy send --port /dev/ttyUSB0 --target water --action pulse --time 1500

After sending, the controller's ack is awaited for --wait (0 disables).

Supports both serial and WebSocket connections.`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendTarget, "target", "", "Actuator: water, light, fan, buzzer")
	sendCmd.Flags().StringVar(&sendAction, "action", "", "Action: on, off, pulse")
	sendCmd.Flags().IntVar(&sendTimeMs, "time", 0, "Pulse duration in milliseconds (pulse only)")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 2*time.Second, "How long to wait for the ack")
}

func runSend(cmd *cobra.Command, args []string) error {
	args = []string{sendTarget, sendAction}
	if sendAction == ndjson.ActionPulse.String() {
		args = append(args, strconv.Itoa(sendTimeMs))
	}
	command, err := parseCommand(args)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	line, err := json.Marshal(command)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(line, ndjson.LineFeed)); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	fmt.Printf("Sent %s via %s\n", line, connInfo)

	if sendWait <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, sendWait)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	decoder := ndjson.NewLineDecoder()
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		var ack []byte
		decoder.Feed(buf[:n], func(l []byte) {
			if ack == nil && isAckFor(l, command) {
				ack = l
			}
		})
		if ack != nil {
			fmt.Print(ndjson.FormatLine(time.Now(), ack))
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				logger.Warn("no ack received", "wait", sendWait)
				return nil
			}
			return fmt.Errorf("read failed while waiting for ack: %w", err)
		}
	}
}

// parseCommand builds a command from "target action [ms]"
func parseCommand(args []string) (ndjson.Command, error) {
	if len(args) < 2 {
		return ndjson.Command{}, fmt.Errorf("usage: <target> <action> [ms]")
	}
	target, err := ndjson.ParseTarget(strings.ToLower(args[0]))
	if err != nil {
		return ndjson.Command{}, err
	}
	action, err := ndjson.ParseAction(strings.ToLower(args[1]))
	if err != nil {
		return ndjson.Command{}, err
	}

	cmd := ndjson.Command{Target: target, Action: action}
	if action == ndjson.ActionPulse {
		if len(args) < 3 {
			return ndjson.Command{}, &ndjson.ValidationError{Field: "time", Message: "is required for pulse"}
		}
		ms, err := strconv.Atoi(args[2])
		if err != nil {
			return ndjson.Command{}, &ndjson.ValidationError{Field: "time", Message: fmt.Sprintf("not a number: %q", args[2])}
		}
		cmd.TimeMs = ms
	}
	return cmd, cmd.Validate()
}

// isAckFor reports whether line acknowledges cmd
func isAckFor(line []byte, cmd ndjson.Command) bool {
	fields, err := ndjson.ParseObject(line)
	if err != nil {
		return false
	}
	if t, err := ndjson.MessageType(fields); err != nil || t != ndjson.TypeAck {
		return false
	}
	ack := ndjson.DecodeAck(fields)
	return ack.Target == cmd.Target.String() && ack.Action == cmd.Action.String()
}
