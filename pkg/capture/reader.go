// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects capture events. Zero fields match everything.
type Filter struct {
	SessionID string
	Kind      *Kind

	// Direction only matches frame events.
	Direction *Direction
	// Address only matches command events.
	Address *uint8

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

func (f *Filter) matches(event Event) bool {
	switch {
	case f.SessionID != "" && event.SessionID != f.SessionID:
		return false
	case f.Kind != nil && event.Kind != *f.Kind:
		return false
	case f.Direction != nil && (event.Kind != KindFrame || event.Direction != *f.Direction):
		return false
	case f.Address != nil && (event.Kind != KindCommand || event.Address != *f.Address):
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader streams events from a capture, one at a time, so captures of
// long sessions need not fit in memory.
type Reader struct {
	src     io.ReadCloser
	decoder *cbor.Decoder
	filter  Filter
	index   int
}

// NewReader opens the capture file at path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens the capture file at path and yields only events
// that match filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewStreamReader(f, filter), nil
}

// NewStreamReader reads a capture from src. Close closes src.
func NewStreamReader(src io.ReadCloser, filter Filter) *Reader {
	return &Reader{src: src, decoder: newDecoder(src), filter: filter}
}

// Next returns the next matching event, or io.EOF at a clean end of the
// capture. A capture cut off inside an event ends with ErrTruncated.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.decoder.Decode(&event)
		switch {
		case errors.Is(err, io.EOF):
			return Event{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Event{}, fmt.Errorf("%w: after %d events", ErrTruncated, r.index)
		case err != nil:
			return Event{}, err
		}
		r.index++

		if err := event.validate(); err != nil {
			return Event{}, fmt.Errorf("event %d: %w", r.index, err)
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// ReadAll returns every remaining matching event. On error the events read
// so far are returned with it.
func (r *Reader) ReadAll() ([]Event, error) {
	var events []Event
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

// Close closes the underlying capture.
func (r *Reader) Close() error {
	return r.src.Close()
}
