// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/canopy/pkg/ndjson"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxLogLines   = 200
	maxEvents     = 100
	pollTimeout   = 3 * time.Second
	commandPrompt = "> "
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

type logLine struct {
	received time.Time
	text     string
}

type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	client   *apiClient
	interval time.Duration

	// Bridge state
	state     *apiState
	lines     []logLine
	after     uint32
	stats     *ndjson.Statistics
	reachable bool

	// Events and command input
	events []eventEntry
	input  textinput.Model

	// UI state
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type pollResultMsg struct {
	state  *apiState
	lines  []string
	latest uint32
	err    error
}

type commandResultMsg struct {
	command string
	id      uint32
	err     error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(client *apiClient, interval time.Duration) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "water pulse 1500"
	ti.Prompt = commandPrompt
	ti.CharLimit = 64
	ti.Width = 40
	ti.Focus()

	if interval <= 0 {
		interval = time.Second
	}

	return monitorModel{
		client:   client,
		interval: interval,
		stats:    ndjson.NewStatistics(),
		input:    ti,
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.pollCmd())
}

func (m monitorModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) pollCmd() tea.Cmd {
	client, after := m.client, m.after
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()

		st, err := client.state(ctx)
		if err != nil {
			return pollResultMsg{err: err}
		}
		lines, latest, err := client.messages(ctx, after)
		if err != nil {
			return pollResultMsg{err: err}
		}
		return pollResultMsg{state: st, lines: lines, latest: latest}
	}
}

func (m monitorModel) commandCmd(cmd ndjson.Command) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()
		id, err := client.command(ctx, cmd)
		return commandResultMsg{command: cmd.String(), id: id, err: err}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case monitorTickMsg:
		return m, m.pollCmd()

	case pollResultMsg:
		m.applyPoll(msg)
		return m, m.tickCmd()

	case commandResultMsg:
		if msg.err != nil {
			m.addEvent(fmt.Sprintf("%s rejected: %v", msg.command, msg.err), true)
		} else {
			m.addEvent(fmt.Sprintf("%s sent (log id %d)", msg.command, msg.id), false)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.SetValue("")
		cmd, err := parseCommand(strings.Fields(text))
		if err != nil {
			m.addEvent(fmt.Sprintf("invalid command %q: %v", text, err), true)
			return m, nil
		}
		return m, m.commandCmd(cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) applyPoll(msg pollResultMsg) {
	if msg.err != nil {
		if m.reachable || len(m.events) == 0 {
			m.addEvent(fmt.Sprintf("bridge unreachable: %v", msg.err), true)
		}
		m.reachable = false
		return
	}
	if !m.reachable {
		m.addEvent("connected to "+m.client.base, false)
	}
	m.reachable = true
	m.state = msg.state

	// The bridge restarted: its ids start over
	if msg.latest < m.after {
		m.addEvent("bridge restarted, log cursor reset", false)
	}
	m.after = msg.latest

	now := time.Now()
	for _, text := range msg.lines {
		m.stats.Update(lineType([]byte(text)))
		m.lines = append(m.lines, logLine{received: now, text: text})
	}
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
}

func (m *monitorModel) addEvent(message string, isError bool) {
	m.events = append(m.events, eventEntry{timestamp: time.Now(), message: message, isError: isError})
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("CANOPY MONITOR"))
	s.WriteString(" ")
	status := m.client.base
	if !m.reachable {
		status = warningStyle.Render("UNREACHABLE " + m.client.base)
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Enter=send Esc=quit", status)))
	s.WriteString("\n\n")

	boxWidth := m.width - 4
	if boxWidth < 20 {
		boxWidth = 20
	}

	if m.state != nil {
		left := boxStyle.Width(boxWidth/2 - 1).Render(m.renderSensors())
		right := boxStyle.Width(boxWidth - boxWidth/2 - 1).Render(m.renderAlarm())
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
		s.WriteString("\n")
	}

	s.WriteString(boxStyle.Width(boxWidth).Render(m.renderLog()))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(boxWidth).Render(m.renderEvents()))
	s.WriteString("\n")
	s.WriteString(m.input.View())
	s.WriteString("\n")

	return s.String()
}

func (m monitorModel) renderSensors() string {
	st := m.state
	var s strings.Builder
	s.WriteString(labelStyle.Render("SENSORS"))
	s.WriteString("\n")

	link := errorStyle.Render("down")
	if st.Peer.Connected {
		link = valueStyle.Render("up")
	}
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		labelStyle.Render("Link:"), link,
		labelStyle.Render("Peer IP:"), valueStyle.Render(st.PeerReportedIP)))
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Uptime:"), valueStyle.Render(formatUptime(st.UptimeSeconds))))

	d := st.LatestData
	if d == nil {
		s.WriteString(headerStyle.Render("(no data yet)"))
		return s.String()
	}
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		labelStyle.Render("Temp:"), valueStyle.Render(fmt.Sprintf("%.1fC", d.Temp)),
		labelStyle.Render("Humi:"), valueStyle.Render(fmt.Sprintf("%.1f%%", d.Humi))))
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		labelStyle.Render("Soil:"), valueStyle.Render(fmt.Sprintf("%d%%", d.Soil)),
		labelStyle.Render("Light:"), valueStyle.Render(fmt.Sprintf("%.0f lx", d.Lux))))
	s.WriteString(fmt.Sprintf("%s %s %s %s\n",
		switchLabel("water", d.Water), switchLabel("light", d.Light),
		switchLabel("fan", d.Fan), switchLabel("buzzer", d.Buzzer)))
	s.WriteString(headerStyle.Render(fmt.Sprintf("updated %s ago", time.Duration(d.AgeMs)*time.Millisecond)))

	if a := st.LatestAck; a != nil {
		s.WriteString("\n")
		s.WriteString(fmt.Sprintf("%s %s %s %s", labelStyle.Render("Ack:"), a.Target, a.Action, valueStyle.Render(a.Result)))
	}
	return s.String()
}

func switchLabel(name string, v int) string {
	if v != 0 {
		return valueStyle.Render(name + ":on")
	}
	return headerStyle.Render(name + ":off")
}

func (m monitorModel) renderAlarm() string {
	st := m.state
	var s strings.Builder
	s.WriteString(labelStyle.Render("THRESHOLDS"))
	s.WriteString("\n")

	for _, key := range []string{"temp", "humi", "soil", "lux"} {
		value := headerStyle.Render("off")
		if v := st.Thresholds[key]; v != nil {
			value = valueStyle.Render(fmt.Sprintf("> %g", *v))
		}
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-5s", key+":")), value))
	}

	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Alarms:"), valueStyle.Render(fmt.Sprintf("%d", st.Alarm.Count))))
	if st.Alarm.Reason != nil {
		age := ""
		if st.Alarm.AgeMs != nil {
			age = fmt.Sprintf(" (%s ago)", time.Duration(*st.Alarm.AgeMs)*time.Millisecond)
		}
		s.WriteString(errorStyle.Render(*st.Alarm.Reason))
		s.WriteString(headerStyle.Render(age))
	}
	return s.String()
}

func (m monitorModel) renderLog() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("MESSAGES"))
	s.WriteString(headerStyle.Render(fmt.Sprintf("  %d lines, %d parse errors", m.stats.TotalLines, m.stats.ParseErrors+m.stats.UntypedLines)))
	s.WriteString("\n")

	logHeight := m.height - 24
	if logHeight < 5 {
		logHeight = 5
	}

	if len(m.lines) == 0 {
		s.WriteString(headerStyle.Render("  (no messages yet)"))
		return s.String()
	}

	start := len(m.lines) - logHeight
	if start < 0 {
		start = 0
	}
	for i := start; i < len(m.lines); i++ {
		l := m.lines[i]
		s.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(l.received.Format("15:04:05")), l.text))
	}
	return strings.TrimSuffix(s.String(), "\n")
}

func (m monitorModel) renderEvents() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	if len(m.events) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
		return s.String()
	}

	start := len(m.events) - 5
	if start < 0 {
		start = 0
	}
	for i := start; i < len(m.events); i++ {
		entry := m.events[i]
		icon := "i"
		style := warningStyle
		if entry.isError {
			icon = "x"
			style = errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}
	return strings.TrimSuffix(s.String(), "\n")
}

// formatUptime formats seconds as a human-readable duration
func formatUptime(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
