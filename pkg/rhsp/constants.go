// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rhsp implements the host side of the REV Hub Serial Protocol.
//
// RHSP is a binary request/response protocol spoken over a UART link to
// motor/servo/sensor expansion hubs. This package provides the frame codec,
// the per-hub transaction engine, the interface packet-ID resolver and the
// broadcast discovery procedure used to enumerate hubs sharing one bus.
//
// All multi-byte integers on the wire are little-endian.
package rhsp

import "time"

// Frame magic bytes ("DK")
const (
	FirstMagicByte  byte = 0x44
	SecondMagicByte byte = 0x4B
)

// Frame size limits
const (
	HeaderSize     = 10
	ChecksumSize   = 1
	MaxPayloadSize = 512
	MaxFrameSize   = HeaderSize + MaxPayloadSize + ChecksumSize
)

// Header field offsets
const (
	offsetLength        = 2
	offsetDestAddress   = 4
	offsetSourceAddress = 5
	offsetMessageNumber = 6
	offsetReference     = 7
	offsetPacketTypeID  = 8
)

// Special addresses
const (
	HostAddress      uint8 = 0x00
	BroadcastAddress uint8 = 0xFF
)

// ResponseBit is set in the packet type ID of a data response.
const ResponseBit uint16 = 0x8000

// Well-known packet type IDs of the system interface
const (
	PacketAck                 uint16 = 0x7F01
	PacketNack                uint16 = 0x7F02
	PacketGetModuleStatus     uint16 = 0x7F03
	PacketKeepAlive           uint16 = 0x7F04
	PacketFailSafe            uint16 = 0x7F05
	PacketSetNewModuleAddress uint16 = 0x7F06
	PacketQueryInterface      uint16 = 0x7F07
	PacketSetModuleLEDColor   uint16 = 0x7F0A
	PacketGetModuleLEDColor   uint16 = 0x7F0B
	PacketSetModuleLEDPattern uint16 = 0x7F0C
	PacketGetModuleLEDPattern uint16 = 0x7F0D
	PacketDebugLogLevel       uint16 = 0x7F0E
	PacketDiscovery           uint16 = 0x7F0F
	PacketDiscoveryResponse   uint16 = PacketDiscovery | ResponseBit
)

// Session defaults
const (
	DefaultResponseTimeout  = 1000 * time.Millisecond
	DefaultDiscoveryTimeout = 500 * time.Millisecond

	// MaxDiscoveredChildren bounds the child list of one discovery run.
	MaxDiscoveredChildren = 254

	firstMessageNumber = 1
)

// Decoder states (internal)
const (
	stateAwaitFirstMagicByte = iota
	stateAwaitSecondMagicByte
	stateReadHeader
	stateReadPayload
	stateReadCrc
)

// WriteStatus is the successful outcome of a write-style command.
type WriteStatus int

// Write status values
const (
	WriteOK WriteStatus = iota
	// WriteAttentionRequired means the hub wants its module status polled.
	WriteAttentionRequired
)

func (s WriteStatus) String() string {
	switch s {
	case WriteOK:
		return "OK"
	case WriteAttentionRequired:
		return "ATTENTION_REQUIRED"
	default:
		return "UNKNOWN"
	}
}

// NackReason is the device-defined reason code carried by a NACK.
type NackReason uint8

// Generic NACK reason codes
const (
	NackCommandImplementationPending NackReason = 253
	NackCommandRoutingError          NackReason = 254
	NackPacketTypeIDUnknown          NackReason = 255
)

func (r NackReason) String() string {
	switch r {
	case NackCommandImplementationPending:
		return "COMMAND_IMPLEMENTATION_PENDING"
	case NackCommandRoutingError:
		return "COMMAND_ROUTING_ERROR"
	case NackPacketTypeIDUnknown:
		return "PACKET_TYPE_ID_UNKNOWN"
	default:
		return "DEVICE_SPECIFIC"
	}
}
