// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhsp-go/rhsp/pkg/capture"
	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

// ============================================================
// Argument Parsing Tests
// ============================================================

func TestParsePacketID(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{"0x7F04", 0x7F04, false},
		{"32516", 0x7F04, false},
		{"0x10000", 0, true},
		{"seven", 0, true},
	}

	for _, tt := range tests {
		got, err := parsePacketID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parsePacketID(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("parsePacketID(%q) = 0x%04X, %v; expected 0x%04X", tt.in, got, err, tt.want)
		}
	}
}

func TestParseHexPayload(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr bool
	}{
		{"plain", "ff0010", []byte{0xFF, 0x00, 0x10}, false},
		{"spaced", "ff 00 10", []byte{0xFF, 0x00, 0x10}, false},
		{"colons", "FF:00:10", []byte{0xFF, 0x00, 0x10}, false},
		{"prefixed", "0xff00", []byte{0xFF, 0x00}, false},
		{"empty", "", []byte{}, false},
		{"odd length", "fff", nil, true},
		{"not hex", "zz", nil, true},
		{"too large", strings.Repeat("00", rhsp.MaxPayloadSize+1), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHexPayload(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLEDColor(t *testing.T) {
	tests := []struct {
		in      string
		want    [3]uint8
		wantErr bool
	}{
		{"#00FF00", [3]uint8{0, 255, 0}, false},
		{"ff8000", [3]uint8{255, 128, 0}, false},
		{"10,20,30", [3]uint8{10, 20, 30}, false},
		{"10 20 30", [3]uint8{10, 20, 30}, false},
		{"0x10, 0x20, 0x30", [3]uint8{16, 32, 48}, false},
		{"#GG0000", [3]uint8{}, true},
		{"1,2", [3]uint8{}, true},
		{"1,2,300", [3]uint8{}, true},
	}

	for _, tt := range tests {
		got, err := parseLEDColor(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLEDColor(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLEDColor(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLEDColor(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestDescribeCommandError(t *testing.T) {
	err := describeCommandError("keepalive", &rhsp.NackError{Reason: rhsp.NackPacketTypeIDUnknown})
	assert.Contains(t, err.Error(), "NACK 255")

	err = describeCommandError("keepalive", rhsp.ErrResponseTimeout)
	assert.True(t, errors.Is(err, rhsp.ErrResponseTimeout))
}

// ============================================================
// Replay Formatting Tests
// ============================================================

func TestFormatEvent(t *testing.T) {
	raw := rhsp.MustEncodeFrame(2, 5, 0, rhsp.PacketKeepAlive, nil)
	frameEvent := capture.Event{
		Timestamp: time.Now(),
		Kind:      capture.KindFrame,
		Direction: capture.DirectionOut,
		Frame:     raw,
	}
	out := formatEvent(frameEvent)
	assert.True(t, strings.HasPrefix(out, "OUT"))
	assert.Contains(t, out, "KEEP_ALIVE")

	frameEvent.Frame = raw[:5]
	assert.Contains(t, formatEvent(frameEvent), "corrupt frame")

	cmdEvent := capture.Event{
		Timestamp:    time.Now(),
		Kind:         capture.KindCommand,
		Address:      2,
		PacketTypeID: rhsp.PacketKeepAlive,
		Elapsed:      time.Millisecond,
		Error:        "rhsp: response timeout",
	}
	assert.Contains(t, formatEvent(cmdEvent), "to 0x02 in 1ms: rhsp: response timeout")
}

// ============================================================
// Monitor TUI Tests
// ============================================================

func hubFrameFrom(src uint8, id uint16, payload []byte) *rhsp.Frame {
	raw := rhsp.MustEncodeFrame(rhsp.HostAddress, 1, 1, id, payload)
	// Rewrite the source address and checksum as the hub would send it
	raw[5] = src
	raw[len(raw)-1] = rhsp.CalculateChecksum(raw[:len(raw)-1])
	f, err := rhsp.ParseFrame(raw, time.Now())
	if err != nil {
		panic(err)
	}
	return f
}

func TestMonitorModel_TracksHubs(t *testing.T) {
	m := initialMonitorModel("test", rhsp.NewStatistics())

	next, _ := m.Update(frameMsg{
		frame: hubFrameFrom(2, rhsp.PacketGetModuleStatus|rhsp.ResponseBit, []byte{rhsp.StatusFailSafe, 0}),
		stats: rhsp.DecoderStats{FramesDecoded: 1, DiscardedBytes: 3},
	})
	m = next.(monitorModel)

	require.True(t, m.synchronized)
	assert.Equal(t, uint64(3), m.invalidBytes)
	require.Contains(t, m.hubs, uint8(2))
	require.NotNil(t, m.hubs[2].status)
	assert.True(t, m.hubs[2].status.Has(rhsp.StatusFailSafe))

	next, _ = m.Update(frameMsg{
		frame: hubFrameFrom(3, rhsp.PacketNack, []byte{255}),
		stats: rhsp.DecoderStats{FramesDecoded: 2, DiscardedBytes: 3},
	})
	m = next.(monitorModel)

	assert.Len(t, m.sortedHubs(), 2)
	assert.Equal(t, uint8(2), m.sortedHubs()[0].address)
	last := m.events.entries[len(m.events.entries)-1]
	assert.True(t, last.isError)
	assert.Contains(t, last.message, "NACK 255")
}

func TestMonitorModel_FramingFaults(t *testing.T) {
	m := initialMonitorModel("test", rhsp.NewStatistics())

	// Faults before synchronization are not logged
	next, _ := m.Update(frameMsg{stats: rhsp.DecoderStats{ChecksumErrors: 1}})
	m = next.(monitorModel)
	assert.Empty(t, m.events.entries)

	next, _ = m.Update(frameMsg{
		frame: hubFrameFrom(2, rhsp.PacketAck, nil),
		stats: rhsp.DecoderStats{FramesDecoded: 1, ChecksumErrors: 1},
	})
	m = next.(monitorModel)

	next, _ = m.Update(frameMsg{stats: rhsp.DecoderStats{FramesDecoded: 1, ChecksumErrors: 3}})
	m = next.(monitorModel)

	last := m.events.entries[len(m.events.entries)-1]
	assert.True(t, last.isError)
	assert.Contains(t, last.message, "CHECKSUM ERROR: 2")
	assert.Equal(t, uint64(3), m.stats.Summary().FramingErrors)
	assert.Contains(t, m.View(), "LINK MONITOR")
}

// ============================================================
// Control TUI Tests
// ============================================================

func discoveredModel(t *testing.T) controlModel {
	t.Helper()
	pollInterval = time.Second

	m := initialControlModel(nil, "test", rhsp.NewStatistics())
	next, cmd := m.Update(discoveryCompleteMsg{
		addrs: &rhsp.DiscoveredAddresses{Parent: 2, Children: []uint8{3, 4}},
	})
	m = next.(controlModel)
	require.NotNil(t, cmd, "discovery should trigger an immediate poll")
	return m
}

func TestControlModel_Discovery(t *testing.T) {
	m := discoveredModel(t)

	require.True(t, m.discoveryDone)
	require.Len(t, m.devices, 3)
	assert.True(t, m.devices[0].parent)
	assert.Equal(t, uint8(2), m.devices[0].address)
	assert.Equal(t, "Hub 0x02 (parent)", m.devices[0].Title())
	assert.Equal(t, "waiting for status", m.devices[1].Description())
	assert.True(t, m.polling)
	assert.Contains(t, m.View(), "RHSP CONTROL")
}

func TestControlModel_DiscoveryFailure(t *testing.T) {
	m := initialControlModel(nil, "test", rhsp.NewStatistics())
	next, cmd := m.Update(discoveryCompleteMsg{err: rhsp.ErrNoHubDiscovered})
	m = next.(controlModel)

	assert.True(t, m.discoveryDone)
	assert.Empty(t, m.devices)
	assert.Nil(t, cmd)
	assert.True(t, m.events.entries[len(m.events.entries)-1].isError)
}

func TestControlModel_PollResults(t *testing.T) {
	m := discoveredModel(t)

	next, cmd := m.Update(pollResultMsg{
		results: []pollResult{
			{address: 2, status: rhsp.ModuleStatus{}},
			{address: 3, status: rhsp.ModuleStatus{StatusWord: rhsp.StatusBatteryLow}},
			{address: 4, err: rhsp.ErrResponseTimeout},
		},
		decoder: rhsp.DecoderStats{ChecksumErrors: 1},
	})
	m = next.(controlModel)

	assert.Nil(t, cmd)
	assert.False(t, m.polling)
	assert.Equal(t, "OK (motor alerts 0x00)", m.devices[0].Description())
	assert.True(t, m.devices[1].status.Has(rhsp.StatusBatteryLow))
	assert.Equal(t, rhsp.ErrResponseTimeout.Error(), m.devices[2].Description())
	assert.Equal(t, uint64(1), m.decoder.ChecksumErrors)
}

func TestControlModel_LinkFailureStartsReconnect(t *testing.T) {
	m := discoveredModel(t)

	linkErr := &rhsp.SerialPortError{Op: "write", Err: errors.New("device gone")}
	next, cmd := m.Update(pollResultMsg{results: []pollResult{{address: 2, err: linkErr}}})
	m = next.(controlModel)
	require.NotNil(t, cmd)

	msg := cmd()
	lost, ok := msg.(connectionLostMsg)
	require.True(t, ok)

	next, cmd = m.Update(lost)
	m = next.(controlModel)
	assert.True(t, m.connectionLost)
	assert.NotNil(t, cmd)

	// Commands are refused while reconnecting
	m.focusedField = focusFailSafeButton
	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(controlModel)
	assert.Nil(t, cmd)
	assert.Contains(t, m.events.entries[len(m.events.entries)-1].message, "connection lost")
}

func TestControlModel_FocusCycle(t *testing.T) {
	m := discoveredModel(t)

	m = m.cycleFocus(1)
	assert.Equal(t, focusLEDInput, m.focusedField)
	assert.True(t, m.ledInput.Focused())

	m = m.cycleFocus(1)
	assert.Equal(t, focusLEDButton, m.focusedField)
	assert.False(t, m.ledInput.Focused())

	m = m.cycleFocus(1)
	m = m.cycleFocus(1)
	assert.Equal(t, focusDeviceList, m.focusedField)

	m = m.cycleFocus(-1)
	assert.Equal(t, focusFailSafeButton, m.focusedField)
}

func TestControlModel_InvalidLEDColor(t *testing.T) {
	m := discoveredModel(t)
	m.focusedField = focusLEDButton
	m.ledInput.SetValue("purple")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(controlModel)

	assert.Nil(t, cmd)
	last := m.events.entries[len(m.events.entries)-1]
	assert.True(t, last.isError)
	assert.Contains(t, last.message, "invalid LED colour")
}

func TestControlModel_CommandResult(t *testing.T) {
	m := discoveredModel(t)

	next, _ := m.Update(commandResultMsg{what: "FAIL_SAFE", address: 3, status: rhsp.WriteAttentionRequired})
	m = next.(controlModel)
	last := m.events.entries[len(m.events.entries)-1]
	assert.True(t, last.isError)
	assert.Contains(t, last.message, "FAIL_SAFE to hub 0x03")

	next, _ = m.Update(commandResultMsg{what: "FAIL_SAFE", address: 3, err: &rhsp.NackError{Reason: 1}})
	m = next.(controlModel)
	assert.Contains(t, m.events.entries[len(m.events.entries)-1].message, "failed")
}

func TestEventLog_Bounded(t *testing.T) {
	l := newEventLog(3)
	for i := 0; i < 5; i++ {
		l.add(strings.Repeat("x", i+1), false)
	}
	require.Len(t, l.entries, 3)
	assert.Equal(t, "xxx", l.entries[0].message)
	assert.Len(t, l.tail(2), 2)
	assert.Len(t, l.tail(10), 3)
}

func TestPingSummary(t *testing.T) {
	var p pingSummary
	p.add(2*time.Millisecond, nil)
	p.add(4*time.Millisecond, nil)
	p.add(0, rhsp.ErrResponseTimeout)
	p.add(3*time.Millisecond, nil)

	assert.Equal(t, 4, p.sent)
	assert.Equal(t, 3, p.received)
	assert.InDelta(t, 25.0, p.loss(), 0.001)
	assert.Equal(t, 2*time.Millisecond, p.min)
	assert.Equal(t, 4*time.Millisecond, p.max)
	assert.Contains(t, p.String(), "rtt min/avg/max = 2ms/3ms/4ms")

	var empty pingSummary
	assert.Zero(t, empty.loss())
	assert.NotContains(t, empty.String(), "rtt")
}

func TestReplayFilter(t *testing.T) {
	defer func() {
		replaySession, replayDir, replayCommands, replaySince = "", "", false, 0
	}()

	f, err := replayFilter()
	require.NoError(t, err)
	require.NotNil(t, f.Kind)
	assert.Equal(t, capture.KindFrame, *f.Kind)
	assert.Nil(t, f.Direction)
	assert.Nil(t, f.TimeStart)

	replayCommands = true
	f, err = replayFilter()
	require.NoError(t, err)
	assert.Nil(t, f.Kind)

	replayDir = "out"
	replaySession = "abc"
	replaySince = time.Minute
	f, err = replayFilter()
	require.NoError(t, err)
	require.NotNil(t, f.Direction)
	assert.Equal(t, capture.DirectionOut, *f.Direction)
	assert.Equal(t, "abc", f.SessionID)
	require.NotNil(t, f.TimeStart)
	assert.WithinDuration(t, time.Now().Add(-time.Minute), *f.TimeStart, time.Second)

	replayDir = "sideways"
	_, err = replayFilter()
	assert.Error(t, err)
}
