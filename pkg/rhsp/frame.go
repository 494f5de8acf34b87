// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Frame represents one decoded RHSP frame
type Frame struct {
	destAddress     uint8
	sourceAddress   uint8
	messageNumber   uint8
	referenceNumber uint8
	packetTypeID    uint16
	payload         []byte
	checksum        uint8
	timestamp       time.Time
}

// NewFrame creates a frame with the given header fields and payload.
// The source address is always the host address.
func NewFrame(destAddress, messageNumber, referenceNumber uint8, packetTypeID uint16, payload []byte) *Frame {
	return &Frame{
		destAddress:     destAddress,
		sourceAddress:   HostAddress,
		messageNumber:   messageNumber,
		referenceNumber: referenceNumber,
		packetTypeID:    packetTypeID,
		payload:         payload,
		timestamp:       time.Now(),
	}
}

// frameFromBytes builds a Frame from a complete, checksum-validated wire buffer.
// The payload is copied so the caller may reuse raw.
func frameFromBytes(raw []byte) *Frame {
	payloadLen := len(raw) - HeaderSize - ChecksumSize
	payload := make([]byte, payloadLen)
	copy(payload, raw[HeaderSize:HeaderSize+payloadLen])

	return &Frame{
		destAddress:     raw[offsetDestAddress],
		sourceAddress:   raw[offsetSourceAddress],
		messageNumber:   raw[offsetMessageNumber],
		referenceNumber: raw[offsetReference],
		packetTypeID:    binary.LittleEndian.Uint16(raw[offsetPacketTypeID:]),
		payload:         payload,
		checksum:        raw[len(raw)-1],
		timestamp:       time.Now(),
	}
}

// ParseFrame decodes raw as exactly one complete frame, stamping it with ts.
// It is meant for stored frames; live links go through a Decoder.
func ParseFrame(raw []byte, ts time.Time) (*Frame, error) {
	if len(raw) < HeaderSize+ChecksumSize || len(raw) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(raw))
	}
	if raw[0] != FirstMagicByte || raw[1] != SecondMagicByte {
		return nil, fmt.Errorf("%w: bad magic 0x%02X%02X", ErrInvalidFrame, raw[0], raw[1])
	}
	if declared := int(binary.LittleEndian.Uint16(raw[offsetLength:])); declared != len(raw) {
		return nil, fmt.Errorf("%w: length field %d, have %d bytes", ErrInvalidFrame, declared, len(raw))
	}
	if sum := CalculateChecksum(raw[:len(raw)-1]); sum != raw[len(raw)-1] {
		return nil, fmt.Errorf("%w: checksum 0x%02X, expected 0x%02X", ErrInvalidFrame, raw[len(raw)-1], sum)
	}

	f := frameFromBytes(raw)
	f.timestamp = ts
	return f, nil
}

// DestAddress returns the destination address
func (f *Frame) DestAddress() uint8 {
	return f.destAddress
}

// SourceAddress returns the source address
func (f *Frame) SourceAddress() uint8 {
	return f.sourceAddress
}

// MessageNumber returns the message number
func (f *Frame) MessageNumber() uint8 {
	return f.messageNumber
}

// ReferenceNumber returns the reference number. In a response it echoes the
// message number of the request it answers.
func (f *Frame) ReferenceNumber() uint8 {
	return f.referenceNumber
}

// PacketTypeID returns the packet type ID
func (f *Frame) PacketTypeID() uint16 {
	return f.packetTypeID
}

// Payload returns the payload bytes
func (f *Frame) Payload() []byte {
	return f.payload
}

// Length returns the total wire length including header and checksum
func (f *Frame) Length() int {
	return HeaderSize + len(f.payload) + ChecksumSize
}

// Checksum returns the checksum byte as received (zero for frames built locally)
func (f *Frame) Checksum() uint8 {
	return f.checksum
}

// Timestamp returns when the frame was built or decoded
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// IsBroadcast returns true if the frame is addressed to every hub
func (f *Frame) IsBroadcast() bool {
	return f.destAddress == BroadcastAddress
}

// IsResponseTo returns true if the frame is the data response to packetTypeID
func (f *Frame) IsResponseTo(packetTypeID uint16) bool {
	return f.packetTypeID == packetTypeID|ResponseBit
}
