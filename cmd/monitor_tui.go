// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

// hubActivity is what the monitor has seen from one module address
type hubActivity struct {
	address  uint8
	frames   uint64
	lastType uint16
	lastSeen time.Time
	status   *rhsp.ModuleStatus
}

// TUI model for the passive link monitor
type monitorModel struct {
	connInfo     string
	stats        *rhsp.Statistics
	events       eventLog
	synchronized bool
	invalidBytes uint64
	lastStats    rhsp.DecoderStats
	hubs         map[uint8]*hubActivity
	width        int
	height       int
	quitting     bool
	linkClosed   bool
}

type monitorTickMsg time.Time

func initialMonitorModel(connInfo string, stats *rhsp.Statistics) monitorModel {
	return monitorModel{
		connInfo: connInfo,
		stats:    stats,
		events:   newEventLog(100),
		hubs:     make(map[uint8]*hubActivity),
		width:    80,
		height:   24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		monitorTickCmd(),
		tea.EnterAltScreen,
	)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.events.add("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		m.stats.CalculateRates()
		return m, monitorTickCmd()

	case linkClosedMsg:
		m.linkClosed = true
		m.events.add("Connection closed", true)

	case frameMsg:
		m.processFrame(msg)
	}

	return m, nil
}

func (m *monitorModel) processFrame(msg frameMsg) {
	m.stats.SetDecoderStats(msg.stats)
	prev := m.lastStats
	m.lastStats = msg.stats

	if msg.frame == nil {
		if !m.synchronized {
			return
		}
		if n := msg.stats.ChecksumErrors - prev.ChecksumErrors; n > 0 {
			m.events.add(fmt.Sprintf("CHECKSUM ERROR: %d frame(s) dropped", n), true)
		}
		if n := msg.stats.LengthErrors - prev.LengthErrors; n > 0 {
			m.events.add(fmt.Sprintf("LENGTH ERROR: %d frame(s) dropped", n), true)
		}
		return
	}

	if !m.synchronized {
		m.synchronized = true
		m.invalidBytes = msg.stats.DiscardedBytes
		if m.invalidBytes > 0 {
			m.events.add(fmt.Sprintf("Synchronized after skipping %d invalid bytes", m.invalidBytes), false)
		} else {
			m.events.add("Synchronized", false)
		}
	}

	f := msg.frame
	if f.SourceAddress() == rhsp.HostAddress {
		// Host traffic: only note discovery broadcasts
		if f.PacketTypeID() == rhsp.PacketDiscovery {
			m.events.add("Host started discovery", false)
		}
		return
	}

	hub := m.hubs[f.SourceAddress()]
	if hub == nil {
		hub = &hubActivity{address: f.SourceAddress()}
		m.hubs[f.SourceAddress()] = hub
		m.events.add(fmt.Sprintf("Hub 0x%02X seen", hub.address), false)
	}
	hub.frames++
	hub.lastType = f.PacketTypeID()
	hub.lastSeen = f.Timestamp()

	payload := f.Payload()
	switch {
	case f.PacketTypeID() == rhsp.PacketNack && len(payload) > 0:
		reason := rhsp.NackReason(payload[0])
		m.events.add(fmt.Sprintf("Hub 0x%02X NACK %d (%s)", hub.address, payload[0], reason), true)

	case f.IsResponseTo(rhsp.PacketGetModuleStatus) && len(payload) >= 2:
		status := rhsp.ModuleStatus{StatusWord: payload[0], MotorAlerts: payload[1]}
		if hub.status == nil || *hub.status != status {
			m.events.add(fmt.Sprintf("Hub 0x%02X status %s", hub.address, rhsp.FormatModuleStatus(status)), status.StatusWord != 0)
		}
		hub.status = &status
	}
}

// sortedHubs returns hub activity ordered by address
func (m monitorModel) sortedHubs() []*hubActivity {
	hubs := make([]*hubActivity, 0, len(m.hubs))
	for _, h := range m.hubs {
		hubs = append(hubs, h)
	}
	sort.Slice(hubs, func(i, j int) bool { return hubs[i].address < hubs[j].address })
	return hubs
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newTUIStyles()

	// Header
	var s strings.Builder
	s.WriteString(st.title.Render("RHSP - LINK MONITOR"))
	s.WriteString("\n")
	s.WriteString(st.header.Render(fmt.Sprintf("%s | r=reset stats | q=quit", m.connInfo)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.linkClosed:
		s.WriteString(st.errorText.Render("Connection closed"))
	case !m.synchronized:
		s.WriteString(st.warning.Render("Waiting for synchronization..."))
	default:
		s.WriteString(st.value.Render("Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(st.header.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	sum := m.stats.Summary()
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		st.label.Render("Frames:"), st.value.Render(fmt.Sprintf("%d", sum.FramesReceived)),
		st.label.Render("Framing errors:"), errOrValue(st, sum.FramingErrors),
		st.label.Render("Discarded bytes:"), st.value.Render(fmt.Sprintf("%d", m.lastStats.DiscardedBytes)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		st.label.Render("Frame Rate:"), st.value.Render(fmt.Sprintf("%.1f frames/s", sum.FrameRate)),
		st.label.Render("Error Rate:"), func() string {
			if sum.ErrorRate > 0 {
				return st.errorText.Render(fmt.Sprintf("%.1f err/s", sum.ErrorRate))
			}
			return st.value.Render(fmt.Sprintf("%.1f err/s", sum.ErrorRate))
		}(),
	))
	s.WriteString(st.box.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Hubs heard on the link
	if len(m.hubs) > 0 {
		s.WriteString(st.label.Render("Hubs:"))
		s.WriteString("\n")
		hubContent := strings.Builder{}
		for _, h := range m.sortedHubs() {
			status := "-"
			if h.status != nil {
				status = rhsp.FormatModuleStatus(*h.status)
			}
			hubContent.WriteString(fmt.Sprintf("%s %s frames, last %s at %s, status %s\n",
				st.label.Render(fmt.Sprintf("0x%02X:", h.address)),
				st.value.Render(fmt.Sprintf("%d", h.frames)),
				rhsp.FormatPacketType(h.lastType),
				h.lastSeen.Format("15:04:05.000"),
				status,
			))
		}
		s.WriteString(st.box.Render(strings.TrimRight(hubContent.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Calculate how many log entries we can show
	logHeight := m.height - 15 - len(m.hubs)
	if logHeight < 5 {
		logHeight = 5
	}
	s.WriteString(renderEventLog(&m.events, st, logHeight, m.width-4))

	return s.String()
}

func errOrValue(st tuiStyles, n uint64) string {
	if n > 0 {
		return st.errorText.Render(fmt.Sprintf("%d", n))
	}
	return st.value.Render("0")
}
