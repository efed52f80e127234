// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/canopy/pkg/ndjson"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	monitorAPI      string
	monitorInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for a running canopy bridge",
	Long: `Monitor a running bridge through its HTTP API.

Polls /api/state and /api/messages and shows the latest sensor values,
alarm thresholds and the live message log. Commands typed into the input
line ("water pulse 1500", "fan on") are posted to /api/cmd.

This command does not open the serial link itself.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorAPI, "api", "http://localhost:8080", "Base URL of the bridge")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "Poll interval")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if _, _, err := loadConfig(); err != nil {
		return err
	}

	client := newAPIClient(monitorAPI)
	m := initialMonitorModel(client, monitorInterval)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

//////////////////////////////////////////////////////////////
// HTTP client
//////////////////////////////////////////////////////////////

// apiClient talks to a running bridge
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

type apiSensor struct {
	Temp   float64 `json:"temp"`
	Humi   float64 `json:"humi"`
	Soil   int     `json:"soil"`
	Lux    float64 `json:"lux"`
	Water  int     `json:"water"`
	Light  int     `json:"light"`
	Fan    int     `json:"fan"`
	Buzzer int     `json:"buzzer"`
	AgeMs  int64   `json:"ageMs"`
}

type apiAck struct {
	Target string `json:"target"`
	Action string `json:"action"`
	Result string `json:"result"`
	AgeMs  int64  `json:"ageMs"`
}

type apiAlarm struct {
	Count      uint32  `json:"count"`
	CooldownMs int64   `json:"cooldownMs"`
	Reason     *string `json:"reason"`
	AgeMs      *int64  `json:"ageMs"`
}

type apiState struct {
	WiFi struct {
		Connected bool   `json:"connected"`
		IP        string `json:"ip"`
	} `json:"wifi"`
	Peer struct {
		Connected bool `json:"connected"`
	} `json:"peer"`
	PeerReportedIP string              `json:"peerReportedIp"`
	UptimeSeconds  int64               `json:"uptimeSeconds"`
	LatestData     *apiSensor          `json:"latestData"`
	LatestAck      *apiAck             `json:"latestAck"`
	Thresholds     map[string]*float64 `json:"thresholds"`
	Alarm          apiAlarm            `json:"alarm"`
}

// apiError is a non-2xx response from the bridge
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &apiError{Status: resp.StatusCode, Message: body.Error}
	}
	return resp, nil
}

func (c *apiClient) state(ctx context.Context) (*apiState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/state", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var st apiState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &st, nil
}

// messages returns the log lines after the cursor and the new cursor
func (c *apiClient) messages(ctx context.Context, after uint32) ([]string, uint32, error) {
	url := c.base + "/api/messages?after=" + strconv.FormatUint(uint64(after), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, after, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, after, err
	}
	defer resp.Body.Close()

	latest := after
	if v := resp.Header.Get("X-Last-Message-Id"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			latest = uint32(n)
		}
	}

	var lines []string
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, 1<<20))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, after, fmt.Errorf("failed to read messages: %w", err)
	}
	return lines, latest, nil
}

// command posts cmd and returns the id of its log entry
func (c *apiClient) command(ctx context.Context, cmd ndjson.Command) (uint32, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/cmd", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var result struct {
		Result   string `json:"result"`
		QueuedID uint32 `json:"queuedId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode command result: %w", err)
	}
	return result.QueuedID, nil
}
