// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"encoding/binary"
	"io"
)

// DecodeStatus reports the progress of one Poll call
type DecodeStatus int

// Decode status values
const (
	// DecodeIncomplete means no complete frame yet; call Poll again.
	DecodeIncomplete DecodeStatus = iota
	// DecodeFrameReady means a checksum-valid frame is available from Frame.
	DecodeFrameReady
)

// DecoderStats counts framing events seen by a decoder
type DecoderStats struct {
	FramesDecoded  uint64
	ChecksumErrors uint64
	LengthErrors   uint64
	DiscardedBytes uint64
}

// Decoder implements the RHSP incremental frame parser.
//
// The parser state survives across Poll calls, so frames may arrive split
// over any number of transport reads. The decoder never reads past the end
// of the frame it is assembling.
type Decoder struct {
	state       int
	buffer      [MaxFrameSize]byte
	bufferIndex int
	bytesNeeded int
	frame       *Frame
	stats       DecoderStats
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{state: stateAwaitFirstMagicByte}
}

// Reset returns the decoder to the AwaitFirstMagicByte state, discarding
// any partially assembled frame
func (d *Decoder) Reset() {
	d.state = stateAwaitFirstMagicByte
	d.bufferIndex = 0
	d.bytesNeeded = 0
}

// Frame returns the most recently completed frame
func (d *Decoder) Frame() *Frame {
	return d.frame
}

// Stats returns the decoder's framing counters
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Poll consumes bytes from r and advances the state machine. It returns
// DecodeFrameReady as soon as one checksum-valid frame is complete, or the
// transport error from r (the partial frame is dropped). It returns
// DecodeIncomplete when r has no more bytes for now and also after any
// discarded input (noise, a bad length field, a checksum failure), so one
// call never reads more than one candidate frame even on a busy line.
//
// r.Read returning (0, nil) is taken to mean "nothing available yet".
func (d *Decoder) Poll(r io.Reader) (DecodeStatus, error) {
	for {
		switch d.state {
		case stateAwaitFirstMagicByte:
			d.bufferIndex = 0
			n, err := d.readInto(r, 1)
			if err != nil || n == 0 {
				return DecodeIncomplete, err
			}
			if d.buffer[0] != FirstMagicByte {
				d.stats.DiscardedBytes++
				d.bufferIndex = 0
				return DecodeIncomplete, nil
			}
			d.state = stateAwaitSecondMagicByte

		case stateAwaitSecondMagicByte:
			n, err := d.readInto(r, 1)
			if err != nil || n == 0 {
				return DecodeIncomplete, err
			}
			switch d.buffer[1] {
			case SecondMagicByte:
				d.state = stateReadHeader
				d.bytesNeeded = HeaderSize - 2
			case FirstMagicByte:
				// The previous first magic byte was noise; this one may start a frame.
				d.stats.DiscardedBytes++
				d.buffer[0] = FirstMagicByte
				d.bufferIndex = 1
				return DecodeIncomplete, nil
			default:
				d.stats.DiscardedBytes += 2
				d.Reset()
				return DecodeIncomplete, nil
			}

		case stateReadHeader:
			n, err := d.readInto(r, d.bytesNeeded)
			if err != nil || n == 0 {
				return DecodeIncomplete, err
			}
			d.bytesNeeded -= n
			if d.bytesNeeded > 0 {
				continue
			}

			frameLen := int(binary.LittleEndian.Uint16(d.buffer[offsetLength:]))
			if frameLen < HeaderSize+ChecksumSize || frameLen > MaxFrameSize {
				d.stats.LengthErrors++
				d.stats.DiscardedBytes += uint64(d.bufferIndex)
				d.Reset()
				return DecodeIncomplete, nil
			}

			payloadSize := frameLen - HeaderSize - ChecksumSize
			if payloadSize > 0 {
				d.state = stateReadPayload
				d.bytesNeeded = payloadSize
			} else {
				d.state = stateReadCrc
				d.bytesNeeded = ChecksumSize
			}

		case stateReadPayload:
			n, err := d.readInto(r, d.bytesNeeded)
			if err != nil || n == 0 {
				return DecodeIncomplete, err
			}
			d.bytesNeeded -= n
			if d.bytesNeeded == 0 {
				d.state = stateReadCrc
				d.bytesNeeded = ChecksumSize
			}

		case stateReadCrc:
			n, err := d.readInto(r, ChecksumSize)
			if err != nil || n == 0 {
				return DecodeIncomplete, err
			}

			end := d.bufferIndex
			expected := CalculateChecksum(d.buffer[:end-ChecksumSize])
			valid := d.buffer[end-ChecksumSize] == expected
			if valid {
				d.frame = frameFromBytes(d.buffer[:end])
				d.stats.FramesDecoded++
			} else {
				d.stats.ChecksumErrors++
				d.stats.DiscardedBytes += uint64(end)
			}

			// Next call starts a fresh frame whether or not this one matched
			d.Reset()
			if valid {
				return DecodeFrameReady, nil
			}
			return DecodeIncomplete, nil

		default:
			d.Reset()
		}
	}
}

// readInto reads up to want bytes at the current buffer position. A read
// error resets the parser.
func (d *Decoder) readInto(r io.Reader, want int) (int, error) {
	n, err := r.Read(d.buffer[d.bufferIndex : d.bufferIndex+want])
	if err != nil {
		d.Reset()
		return 0, err
	}
	d.bufferIndex += n
	return n, nil
}
