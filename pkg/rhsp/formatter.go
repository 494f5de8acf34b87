// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable line followed by its
// payload dump.
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")

	result := fmt.Sprintf("[%s] %s (0x%04X) src=0x%02X dest=0x%02X msg=%d ref=%d len=%d\n",
		timestamp, FormatPacketType(f.PacketTypeID()), f.PacketTypeID(),
		f.SourceAddress(), f.DestAddress(), f.MessageNumber(), f.ReferenceNumber(), len(f.Payload()))

	result += FormatPayload(f.PacketTypeID(), f.Payload())
	return result
}

// FormatPacketType returns the human-readable name for a packet type ID
func FormatPacketType(id uint16) string {
	switch id {
	case PacketAck:
		return "ACK"
	case PacketNack:
		return "NACK"
	case PacketGetModuleStatus:
		return "GET_MODULE_STATUS"
	case PacketKeepAlive:
		return "KEEP_ALIVE"
	case PacketFailSafe:
		return "FAIL_SAFE"
	case PacketSetNewModuleAddress:
		return "SET_NEW_MODULE_ADDRESS"
	case PacketQueryInterface:
		return "QUERY_INTERFACE"
	case PacketSetModuleLEDColor:
		return "SET_MODULE_LED_COLOR"
	case PacketGetModuleLEDColor:
		return "GET_MODULE_LED_COLOR"
	case PacketSetModuleLEDPattern:
		return "SET_MODULE_LED_PATTERN"
	case PacketGetModuleLEDPattern:
		return "GET_MODULE_LED_PATTERN"
	case PacketDebugLogLevel:
		return "DEBUG_LOG_LEVEL"
	case PacketDiscovery:
		return "DISCOVERY"
	case PacketDiscoveryResponse:
		return "DISCOVERY_RESPONSE"
	}

	if id&ResponseBit != 0 {
		request := id &^ ResponseBit
		if name := FormatPacketType(request); name != "UNKNOWN" {
			return name + "_RESPONSE"
		}
		return fmt.Sprintf("RESPONSE(0x%04X)", request)
	}
	return "UNKNOWN"
}

// FormatPayload decodes the payloads of well-known packets and falls back to
// a hex dump for everything else.
func FormatPayload(id uint16, payload []byte) string {
	switch {
	case len(payload) == 0:
		return "  (no payload)\n"

	case id == PacketAck:
		if payload[0] != 0 {
			return "  Attention required\n"
		}
		return "  OK\n"

	case id == PacketNack:
		reason := NackReason(payload[0])
		return fmt.Sprintf("  Reason: %s (%d)\n", reason, uint8(reason))

	case id == PacketDiscoveryResponse:
		if payload[0] != 0 {
			return "  Arrival: parent\n"
		}
		return "  Arrival: child\n"

	case id == PacketQueryInterface:
		name, _, _ := strings.Cut(string(payload), "\x00")
		return fmt.Sprintf("  Interface: %q\n", name)

	case id == PacketGetModuleStatus|ResponseBit && len(payload) >= 2:
		status := ModuleStatus{StatusWord: payload[0], MotorAlerts: payload[1]}
		return fmt.Sprintf("  Status: %s, Motor alerts: 0x%02X\n", formatStatusWord(status.StatusWord), status.MotorAlerts)

	case (id == PacketSetModuleLEDColor || id == PacketGetModuleLEDColor|ResponseBit) && len(payload) >= 3:
		return fmt.Sprintf("  Colour: R=%d G=%d B=%d\n", payload[0], payload[1], payload[2])
	}

	return FormatHexDump(payload)
}

// FormatHexDump renders data as indented rows of 16 bytes
func FormatHexDump(data []byte) string {
	var sb strings.Builder
	for offset := 0; offset < len(data); offset += 16 {
		end := min(offset+16, len(data))
		fmt.Fprintf(&sb, "  %04X:", offset)
		for _, b := range data[offset:end] {
			fmt.Fprintf(&sb, " %02X", b)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatStatusWord lists the set module status bits
func formatStatusWord(word uint8) string {
	if word == 0 {
		return "OK"
	}

	names := []struct {
		bit  uint8
		name string
	}{
		{StatusKeepAliveTimeout, "KEEP_ALIVE_TIMEOUT"},
		{StatusDeviceReset, "DEVICE_RESET"},
		{StatusFailSafe, "FAIL_SAFE"},
		{StatusControllerOverTemp, "CONTROLLER_OVER_TEMP"},
		{StatusBatteryLow, "BATTERY_LOW"},
		{StatusHIBFault, "HIB_FAULT"},
	}

	var parts []string
	for _, n := range names {
		if word&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := word &^ 0x3F; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02X", rest))
	}
	return strings.Join(parts, "|")
}

// FormatModuleStatus renders a module status for display
func FormatModuleStatus(s ModuleStatus) string {
	return fmt.Sprintf("%s (motor alerts 0x%02X)", formatStatusWord(s.StatusWord), s.MotorAlerts)
}
