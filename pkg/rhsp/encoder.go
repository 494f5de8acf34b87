// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"encoding/binary"
	"fmt"
)

// AppendFrame appends the wire encoding of one frame to dst and returns the
// extended buffer. The source address is always the host address.
func AppendFrame(dst []byte, destAddress, messageNumber, referenceNumber uint8, packetTypeID uint16, payload []byte) ([]byte, error) {
	return appendFrame(dst, HostAddress, destAddress, messageNumber, referenceNumber, packetTypeID, payload)
}

func appendFrame(dst []byte, sourceAddress, destAddress, messageNumber, referenceNumber uint8, packetTypeID uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return dst, fmt.Errorf("%w: payload too large: %d bytes (max %d)", ErrArgOutOfRange, len(payload), MaxPayloadSize)
	}

	start := len(dst)
	frameLen := HeaderSize + len(payload) + ChecksumSize

	var header [HeaderSize]byte
	header[0] = FirstMagicByte
	header[1] = SecondMagicByte
	binary.LittleEndian.PutUint16(header[offsetLength:], uint16(frameLen))
	header[offsetDestAddress] = destAddress
	header[offsetSourceAddress] = sourceAddress
	header[offsetMessageNumber] = messageNumber
	header[offsetReference] = referenceNumber
	binary.LittleEndian.PutUint16(header[offsetPacketTypeID:], packetTypeID)

	dst = append(dst, header[:]...)
	dst = append(dst, payload...)
	dst = append(dst, CalculateChecksum(dst[start:]))

	return dst, nil
}

// EncodeFrame creates a complete wire-formatted RHSP frame.
func EncodeFrame(destAddress, messageNumber, referenceNumber uint8, packetTypeID uint16, payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, HeaderSize+len(payload)+ChecksumSize), destAddress, messageNumber, referenceNumber, packetTypeID, payload)
}

// Encode encodes the frame to wire format, preserving its source address.
func (f *Frame) Encode() ([]byte, error) {
	buf := make([]byte, 0, f.Length())
	return appendFrame(buf, f.sourceAddress, f.destAddress, f.messageNumber, f.referenceNumber, f.packetTypeID, f.payload)
}

// MustEncodeFrame encodes a frame and panics on error.
// Use EncodeFrame for error handling.
func MustEncodeFrame(destAddress, messageNumber, referenceNumber uint8, packetTypeID uint16, payload []byte) []byte {
	data, err := EncodeFrame(destAddress, messageNumber, referenceNumber, packetTypeID, payload)
	if err != nil {
		panic(fmt.Sprintf("rhsp: encode error: %v", err))
	}
	return data
}
