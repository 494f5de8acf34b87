// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

// Capture decoding errors
var (
	// ErrMalformedEvent is returned for an event that decodes but cannot
	// have been written by a Recorder.
	ErrMalformedEvent = errors.New("capture: malformed event")
	// ErrTruncated is returned when the file ends inside an event, as it
	// does after a crash mid-write.
	ErrTruncated = errors.New("capture: truncated event")
)

// eventCodec holds the CBOR modes shared by every recorder and reader.
// Events are a flat integer-keyed map, so nesting stays shallow.
type eventCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var codec = mustEventCodec()

func mustEventCodec() eventCodec {
	enc, err := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: encoder mode: %v", err))
	}

	dec, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		MaxNestedLevels: 4,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture: decoder mode: %v", err))
	}

	return eventCodec{enc: enc, dec: dec}
}

// EncodeEvent encodes an Event to CBOR bytes.
func EncodeEvent(event Event) ([]byte, error) {
	return codec.enc.Marshal(event)
}

// DecodeEvent decodes and validates one CBOR-encoded Event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := codec.dec.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	if err := event.validate(); err != nil {
		return Event{}, err
	}
	return event, nil
}

// validate checks the field combinations a Recorder produces
func (e Event) validate() error {
	switch e.Kind {
	case KindFrame:
		if len(e.Frame) == 0 || len(e.Frame) > rhsp.MaxFrameSize {
			return fmt.Errorf("%w: frame event with %d frame bytes", ErrMalformedEvent, len(e.Frame))
		}
		if e.Direction != DirectionIn && e.Direction != DirectionOut {
			return fmt.Errorf("%w: direction %d", ErrMalformedEvent, e.Direction)
		}
	case KindCommand:
		if len(e.Frame) != 0 {
			return fmt.Errorf("%w: command event carries frame bytes", ErrMalformedEvent)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrMalformedEvent, e.Kind)
	}
	return nil
}

func newEncoder(w io.Writer) *cbor.Encoder {
	return codec.enc.NewEncoder(w)
}

func newDecoder(r io.Reader) *cbor.Decoder {
	return codec.dec.NewDecoder(r)
}
