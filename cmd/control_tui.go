// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusDeviceList = iota
	focusLEDInput
	focusLEDButton
	focusFailSafeButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// device represents a discovered hub
type device struct {
	address  uint8
	parent   bool
	status   *rhsp.ModuleStatus
	lastErr  string
	lastSeen time.Time
}

// Implement list.Item interface
func (d device) Title() string {
	if d.parent {
		return fmt.Sprintf("Hub 0x%02X (parent)", d.address)
	}
	return fmt.Sprintf("Hub 0x%02X", d.address)
}

func (d device) Description() string {
	switch {
	case d.lastErr != "":
		return d.lastErr
	case d.status == nil:
		return "waiting for status"
	default:
		return rhsp.FormatModuleStatus(*d.status)
	}
}

func (d device) FilterValue() string { return fmt.Sprintf("%02X", d.address) }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Connection manager (for hub sessions and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Device tracking
	devices    []device
	deviceList list.Model

	// Discovery state
	discoveryDone bool
	discoveryErr  error

	// Monitoring
	stats   *rhsp.Statistics
	decoder rhsp.DecoderStats
	events  eventLog

	// Control
	ledInput     textinput.Model
	focusedField int

	// Polling
	polling  bool
	lastPoll time.Time

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type discoveryCompleteMsg struct {
	addrs *rhsp.DiscoveredAddresses
	err   error
}

type pollResult struct {
	address uint8
	status  rhsp.ModuleStatus
	err     error
}

type pollResultMsg struct {
	results []pollResult
	decoder rhsp.DecoderStats
}

type commandResultMsg struct {
	what    string
	address uint8
	status  rhsp.WriteStatus
	err     error
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
	stats    *rhsp.Statistics
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string, stats *rhsp.Statistics) controlModel {
	// Initialize text input for the LED colour
	ti := textinput.New()
	ti.Placeholder = "#00FF00"
	ti.CharLimit = 11
	ti.Width = 12

	// Initialize device list with empty items
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	deviceList := list.New([]list.Item{}, delegate, 30, 10)
	deviceList.Title = "Hubs"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)

	return controlModel{
		connMgr:      connMgr,
		connInfo:     connInfo,
		devices:      make([]device, 0),
		deviceList:   deviceList,
		stats:        stats,
		events:       newEventLog(100),
		ledInput:     ti,
		focusedField: focusDeviceList,
		width:        80,
		height:       24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(controlTickCmd(), m.startDiscovery())
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.deviceList, _ = m.deviceList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats.CalculateRates()
		if cmd := m.maybePoll(time.Time(msg), false); cmd != nil {
			cmds = append(cmds, cmd)
		}
		cmds = append(cmds, controlTickCmd())
		return m, tea.Batch(cmds...)

	case discoveryCompleteMsg:
		return m, m.finishDiscovery(msg)

	case pollResultMsg:
		return m, m.applyPoll(msg)

	case commandResultMsg:
		return m, m.applyCommandResult(msg)

	case connectionLostMsg:
		if m.connectionLost {
			return m, nil
		}
		m.connectionLost = true
		m.events.add(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)
		return m, reconnectCmd(m.connMgr)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		if msg.stats != nil {
			m.stats = msg.stats
		}
		m.events.add("Reconnected - starting discovery", false)
		return m, m.startDiscovery()
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusLEDInput {
		m.ledInput, cmd = m.ledInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.focusedField == focusDeviceList {
		m.deviceList, cmd = m.deviceList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Text entry swallows letters while focused
	if m.focusedField == focusLEDInput {
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			return m.cycleFocus(1), nil
		case "shift+tab":
			return m.cycleFocus(-1), nil
		case "enter":
			return m.handleEnter()
		}
		var cmd tea.Cmd
		m.ledInput, cmd = m.ledInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		if m.discoveryDone {
			return m.handleEnter()
		}

	case "d":
		if m.discoveryDone && !m.connectionLost {
			m.events.add("Rerunning discovery", false)
			return m, m.startDiscovery()
		}

	case "c":
		if selected := m.getSelectedDevice(); selected != nil && !m.connectionLost && !m.polling {
			m.polling = true
			m.events.add(fmt.Sprintf("Clearing status of hub 0x%02X", selected.address), false)
			return m, pollHubsCmd(m.connMgr, []uint8{selected.address}, true)
		}

	case "up", "k", "down", "j":
		if m.focusedField == focusDeviceList {
			m.deviceList, _ = m.deviceList.Update(msg)
		}
	}

	return m, nil
}

func (m controlModel) cycleFocus(delta int) controlModel {
	if !m.discoveryDone || m.getSelectedDevice() == nil {
		m.focusedField = focusDeviceList
		m.ledInput.Blur()
		return m
	}

	maxFocus := focusFailSafeButton
	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	if m.focusedField == focusLEDInput {
		m.ledInput.Focus()
	} else {
		m.ledInput.Blur()
	}
	return m
}

func (m controlModel) handleEnter() (tea.Model, tea.Cmd) {
	// Don't allow control commands while connection is lost
	if m.connectionLost {
		m.events.add("Cannot send command: connection lost", true)
		return m, nil
	}

	selected := m.getSelectedDevice()
	if selected == nil {
		return m, nil
	}

	switch m.focusedField {
	case focusLEDInput, focusLEDButton:
		return m.sendLEDCommand(selected.address)
	case focusFailSafeButton:
		m.events.add(fmt.Sprintf("Sending FAIL_SAFE to hub 0x%02X", selected.address), false)
		return m, hubWriteCmd(m.connMgr, "FAIL_SAFE", selected.address, (*rhsp.Hub).FailSafe)
	}
	return m, nil
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newTUIStyles()
	var s strings.Builder

	// Header
	helpText := "q=quit"
	if m.discoveryDone {
		helpText = "q=quit Tab=switch d=discover c=clear status"
	}
	s.WriteString(st.title.Render("RHSP CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = st.warning.Render("RECONNECTING...")
	}
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | %s", connStatus, helpText)))
	s.WriteString("\n\n")

	if !m.discoveryDone {
		s.WriteString(st.warning.Render("Discovering hubs..."))
		s.WriteString("\n\n")
		s.WriteString(renderEventLog(&m.events, st, 8, m.width-4))
		return s.String()
	}

	s.WriteString(m.renderControlView(st))
	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlView(st tuiStyles) string {
	var s strings.Builder

	// Layout: left panel (hubs) | right panel (control)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 20 {
		rightWidth = 20
	}

	listStyle := st.box.Width(leftWidth)
	if m.focusedField == focusDeviceList {
		listStyle = st.focusedBox.Width(leftWidth)
	}
	devicePanel := listStyle.Render(m.deviceList.View())

	controlPanel := st.box.Width(rightWidth).Render(m.renderControlPanel(st))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, devicePanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(st))
	s.WriteString("\n\n")

	s.WriteString(renderEventLog(&m.events, st, 8, m.width-4))
	return s.String()
}

func (m controlModel) renderControlPanel(st tuiStyles) string {
	var s strings.Builder

	if m.discoveryErr != nil {
		s.WriteString(st.errorText.Render(m.discoveryErr.Error()))
		s.WriteString("\n\n")
	}

	selected := m.getSelectedDevice()
	if selected == nil {
		s.WriteString(st.header.Render("No hub selected"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Selected:"), selected.Title()))
	statusText := st.value.Render(selected.Description())
	if selected.lastErr != "" || (selected.status != nil && selected.status.StatusWord != 0) {
		statusText = st.errorText.Render(selected.Description())
	}
	s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Status:"), statusText))
	if !selected.lastSeen.IsZero() {
		s.WriteString(fmt.Sprintf("%s %s ago\n", st.label.Render("Last reply:"),
			time.Since(selected.lastSeen).Round(time.Second)))
	}
	s.WriteString("\n")

	// LED colour entry
	s.WriteString(st.label.Render("LED colour: "))
	if m.focusedField == focusLEDInput {
		s.WriteString(m.ledInput.View())
	} else {
		val := m.ledInput.Value()
		if val == "" {
			val = m.ledInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("\n\n")

	s.WriteString(m.renderButton(st, "[ Set LED ]", focusLEDButton))
	s.WriteString("  ")
	s.WriteString(m.renderButton(st, "[ Fail-safe ]", focusFailSafeButton))
	return s.String()
}

func (m controlModel) renderButton(st tuiStyles, text string, focus int) string {
	if m.focusedField == focus {
		return st.focusedButton.Render(text)
	}
	return st.button.Render(text)
}

func (m controlModel) renderStatisticsBar(st tuiStyles) string {
	sum := m.stats.Summary()

	var errorPercent float64
	if sum.Commands > 0 {
		errorPercent = float64(sum.CommandErrors) * 100.0 / float64(sum.Commands)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		st.label.Render("Commands:"), st.value.Render(fmt.Sprintf("%d", sum.Commands)),
		st.label.Render("Errors:"), func() string {
			if errorPercent > 0 {
				return st.errorText.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return st.value.Render("0.0%")
		}(),
		st.label.Render("Latency:"), st.value.Render(sum.AverageLatency.Round(time.Microsecond).String()),
		st.label.Render("Framing:"), errOrValue(st, m.decoder.ChecksumErrors+m.decoder.LengthErrors),
		st.label.Render("Rate:"), st.value.Render(fmt.Sprintf("%.1f frames/s", sum.FrameRate)),
	)

	return st.box.Width(m.width - 4).Render(content)
}

//////////////////////////////////////////////////////////////
// State Transitions
//////////////////////////////////////////////////////////////

func (m *controlModel) startDiscovery() tea.Cmd {
	m.discoveryDone = false
	m.discoveryErr = nil
	m.polling = false
	m.devices = make([]device, 0)
	m.updateDeviceList()
	return discoverHubsCmd(m.connMgr)
}

func (m *controlModel) finishDiscovery(msg discoveryCompleteMsg) tea.Cmd {
	m.discoveryDone = true
	m.discoveryErr = msg.err

	if msg.err != nil {
		m.events.add(fmt.Sprintf("Discovery: %v", msg.err), true)
		if isLinkFailure(msg.err) {
			return func() tea.Msg { return connectionLostMsg{err: msg.err} }
		}
	}
	if msg.addrs == nil {
		return nil
	}

	m.devices = make([]device, 0, msg.addrs.NumChildren()+1)
	if msg.addrs.Parent != 0 {
		m.devices = append(m.devices, device{address: msg.addrs.Parent, parent: true})
	}
	for _, child := range msg.addrs.Children {
		m.devices = append(m.devices, device{address: child})
	}
	m.updateDeviceList()
	m.focusedField = focusDeviceList

	m.events.add(fmt.Sprintf("Discovery complete: %d hub(s)", len(m.devices)), false)

	// Poll right away rather than waiting a full interval
	return m.maybePoll(time.Now(), true)
}

// maybePoll starts a keep-alive and status round when one is due
func (m *controlModel) maybePoll(now time.Time, force bool) tea.Cmd {
	if !m.discoveryDone || m.connectionLost || m.polling || len(m.devices) == 0 {
		return nil
	}
	if !force && now.Sub(m.lastPoll) < pollInterval {
		return nil
	}

	m.polling = true
	m.lastPoll = now
	addresses := make([]uint8, len(m.devices))
	for i, d := range m.devices {
		addresses[i] = d.address
	}
	return pollHubsCmd(m.connMgr, addresses, false)
}

func (m *controlModel) applyPoll(msg pollResultMsg) tea.Cmd {
	m.polling = false
	m.decoder = msg.decoder

	var linkErr error
	for _, res := range msg.results {
		dev := m.findDevice(res.address)
		if dev == nil {
			continue
		}

		if res.err != nil {
			errText := res.err.Error()
			if dev.lastErr != errText {
				m.events.add(fmt.Sprintf("Hub 0x%02X: %v", res.address, res.err), true)
			}
			dev.lastErr = errText
			if isLinkFailure(res.err) {
				linkErr = res.err
			}
			continue
		}

		if dev.lastErr != "" {
			m.events.add(fmt.Sprintf("Hub 0x%02X responding again", res.address), false)
		}
		dev.lastErr = ""
		dev.lastSeen = time.Now()

		status := res.status
		if dev.status == nil || *dev.status != status {
			m.events.add(fmt.Sprintf("Hub 0x%02X status: %s", res.address, rhsp.FormatModuleStatus(status)), status.StatusWord != 0)
		}
		dev.status = &status
	}
	m.updateDeviceList()

	if linkErr != nil {
		return func() tea.Msg { return connectionLostMsg{err: linkErr} }
	}
	return nil
}

func (m *controlModel) applyCommandResult(msg commandResultMsg) tea.Cmd {
	if msg.err != nil {
		m.events.add(fmt.Sprintf("%s to hub 0x%02X failed: %v", msg.what, msg.address, msg.err), true)
		if isLinkFailure(msg.err) {
			return func() tea.Msg { return connectionLostMsg{err: msg.err} }
		}
		return nil
	}

	m.events.add(fmt.Sprintf("%s to hub 0x%02X: %s", msg.what, msg.address, msg.status), msg.status == rhsp.WriteAttentionRequired)
	return nil
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m controlModel) sendLEDCommand(address uint8) (tea.Model, tea.Cmd) {
	value := m.ledInput.Value()
	if value == "" {
		value = m.ledInput.Placeholder
	}

	rgb, err := parseLEDColor(value)
	if err != nil {
		m.events.add(err.Error(), true)
		return m, nil
	}

	m.events.add(fmt.Sprintf("Setting hub 0x%02X LED to #%02X%02X%02X", address, rgb[0], rgb[1], rgb[2]), false)
	return m, hubWriteCmd(m.connMgr, "SET_MODULE_LED_COLOR", address, func(h *rhsp.Hub) (rhsp.WriteStatus, error) {
		return h.SetModuleLEDColor(rgb[0], rgb[1], rgb[2])
	})
}

// parseLEDColor accepts "#RRGGBB", "RRGGBB" or three comma or space
// separated components
func parseLEDColor(s string) ([3]uint8, error) {
	s = strings.TrimSpace(s)

	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 6 && !strings.ContainsAny(hex, ", ") {
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return [3]uint8{}, fmt.Errorf("invalid LED colour %q", s)
		}
		return [3]uint8{uint8(v >> 16), uint8(v >> 8), uint8(v)}, nil
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	rgb, err := parseRGB(parts)
	if err != nil {
		return rgb, fmt.Errorf("invalid LED colour %q: %w", s, err)
	}
	return rgb, nil
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) getSelectedDevice() *device {
	if len(m.devices) == 0 {
		return nil
	}

	idx := m.deviceList.Index()
	if idx < 0 || idx >= len(m.devices) {
		return nil
	}

	return &m.devices[idx]
}

func (m *controlModel) findDevice(address uint8) *device {
	for i := range m.devices {
		if m.devices[i].address == address {
			return &m.devices[i]
		}
	}
	return nil
}

func (m *controlModel) updateDeviceList() {
	items := make([]list.Item, len(m.devices))
	for i, d := range m.devices {
		items[i] = d
	}
	m.deviceList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	// Adjust list size based on terminal size
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.deviceList.SetSize(28, listHeight)
}
