// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/canopy/pkg/ndjson"
	"github.com/spf13/cobra"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw line log in human-readable format",
	Long: `Continuously frame and display NDJSON lines as they arrive from the
controller, showing each line with timestamp, message type and decoded fields.

Lines longer than 512 bytes are discarded, exactly as the bridge does.
Statistics are printed on exit (Ctrl+C).

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Canopy - Raw Line Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// Closing the connection unblocks Read
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	decoder := ndjson.NewLineDecoder()
	stats := ndjson.NewStatistics()
	defer func() { fmt.Print("\n" + stats.String()) }()

	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n], func(line []byte) {
				fmt.Print(ndjson.FormatLine(time.Now(), line))
				stats.Update(lineType(line))
			})
			stats.SetOverflows(decoder.Overflows())
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// For WebSocket connections, a read error means the connection is
			// permanently closed
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				logger.Info("connection closed")
				return nil
			}
			logger.Warn("read error", "error", err)
			if !sleepCtx(ctx, 10*time.Millisecond) {
				return nil
			}
		}
	}
}

// lineType returns the type of a framed line, or the reason it has none
func lineType(line []byte) (string, error) {
	fields, err := ndjson.ParseObject(line)
	if err != nil {
		return "", err
	}
	return ndjson.MessageType(fields)
}

// sleepCtx waits for d; returns false when ctx ends first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
