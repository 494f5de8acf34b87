// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records RHSP traffic to a CBOR event stream and reads it
// back for offline inspection.
package capture

import (
	"time"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

// Event is one captured frame or transaction outcome.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies one recorder run (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Kind says which of the fields below are populated.
	Kind Kind `cbor:"3,keyasint"`

	// Direction of a captured frame.
	Direction Direction `cbor:"4,keyasint,omitempty"`

	// Frame holds the complete wire bytes of a captured frame.
	Frame []byte `cbor:"5,keyasint,omitempty"`

	// Address and PacketTypeID identify the command of a transaction event.
	Address      uint8  `cbor:"6,keyasint,omitempty"`
	PacketTypeID uint16 `cbor:"7,keyasint,omitempty"`

	// Elapsed is the transaction time.
	Elapsed time.Duration `cbor:"8,keyasint,omitempty"`

	// Error is the transaction error text, empty on success.
	Error string `cbor:"9,keyasint,omitempty"`
}

// Kind classifies an event
type Kind uint8

const (
	// KindFrame is a frame seen on the link.
	KindFrame Kind = 0
	// KindCommand is a completed transaction.
	KindCommand Kind = 1
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "FRAME"
	case KindCommand:
		return "COMMAND"
	default:
		return "UNKNOWN"
	}
}

// Direction indicates the direction of frame flow.
type Direction uint8

const (
	// DirectionIn is a frame from a hub to the host.
	DirectionIn Direction = 0
	// DirectionOut is a frame from the host to a hub.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// DecodeFrame parses the captured wire bytes of a frame event, keeping the
// capture timestamp.
func (e Event) DecodeFrame() (*rhsp.Frame, error) {
	return rhsp.ParseFrame(e.Frame, e.Timestamp)
}
