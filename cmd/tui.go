// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for informational
}

// eventLog keeps the most recent entries shown in a TUI's event panel
type eventLog struct {
	entries    []errorLogEntry
	maxEntries int
}

func newEventLog(maxEntries int) eventLog {
	return eventLog{entries: make([]errorLogEntry, 0), maxEntries: maxEntries}
}

func (l *eventLog) add(message string, isError bool) {
	l.entries = append(l.entries, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
}

// tail returns at most n of the newest entries
func (l *eventLog) tail(n int) []errorLogEntry {
	start := len(l.entries) - n
	if start < 0 {
		start = 0
	}
	return l.entries[start:]
}

type tuiStyles struct {
	title         lipgloss.Style
	header        lipgloss.Style
	label         lipgloss.Style
	value         lipgloss.Style
	errorText     lipgloss.Style
	warning       lipgloss.Style
	box           lipgloss.Style
	focusedBox    lipgloss.Style
	button        lipgloss.Style
	focusedButton lipgloss.Style
}

func newTUIStyles() tuiStyles {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	button := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	return tuiStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		label:         lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		value:         lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		errorText:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning:       lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		box:           box,
		focusedBox:    box.BorderForeground(lipgloss.Color("12")),
		button:        button,
		focusedButton: button.Background(lipgloss.Color("10")),
	}
}

// renderEventLog draws the newest height entries inside a box of the given width
func renderEventLog(l *eventLog, st tuiStyles, height, width int) string {
	var s strings.Builder
	s.WriteString(st.label.Render("EVENTS"))
	s.WriteString("\n")

	var content strings.Builder
	entries := l.tail(height)
	if len(entries) == 0 {
		content.WriteString(st.header.Render("  (no events yet)"))
	}
	for _, entry := range entries {
		timestamp := entry.timestamp.Format("15:04:05.000")
		icon := "i"
		style := st.warning
		if entry.isError {
			icon = "x"
			style = st.errorText
		}
		content.WriteString(fmt.Sprintf("%s %s %s\n",
			st.header.Render(timestamp),
			style.Render(icon),
			entry.message))
	}

	if width < 20 {
		width = 20
	}
	s.WriteString(st.box.Width(width).Render(content.String()))
	return s.String()
}
