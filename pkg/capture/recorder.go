// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

// Recorder writes capture events to a file in CBOR format. It is an
// rhsp.Observer and is safe for concurrent use from multiple goroutines.
type Recorder struct {
	sessionID string
	out       io.WriteCloser
	encoder   *cbor.Encoder
	mu        sync.Mutex
	closed    bool
	err       error
}

// NewRecorder creates a Recorder that appends to the file at path. The
// file is created with permissions 0644 if it doesn't exist.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewStreamRecorder(f), nil
}

// NewStreamRecorder creates a Recorder writing to w. Close closes w.
func NewStreamRecorder(w io.WriteCloser) *Recorder {
	return &Recorder{
		sessionID: uuid.NewString(),
		out:       w,
		encoder:   newEncoder(w),
	}
}

// SessionID returns the identifier stamped on every event of this recorder
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Record writes one event. The session ID is filled in when empty.
// Encoding errors are kept for Err and do not disrupt the caller.
func (r *Recorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if event.SessionID == "" {
		event.SessionID = r.sessionID
	}
	if err := r.encoder.Encode(event); err != nil && r.err == nil {
		r.err = err
	}
}

// RecordFrame captures one frame in the given direction
func (r *Recorder) RecordFrame(f *rhsp.Frame, dir Direction) {
	raw, err := f.Encode()
	if err != nil {
		return
	}
	r.Record(Event{
		Timestamp: f.Timestamp(),
		Kind:      KindFrame,
		Direction: dir,
		Frame:     raw,
	})
}

// FrameSent captures an outgoing frame
func (r *Recorder) FrameSent(f *rhsp.Frame) {
	r.RecordFrame(f, DirectionOut)
}

// FrameReceived captures an incoming frame
func (r *Recorder) FrameReceived(f *rhsp.Frame) {
	r.RecordFrame(f, DirectionIn)
}

// CommandCompleted captures a transaction outcome
func (r *Recorder) CommandCompleted(address uint8, packetTypeID uint16, elapsed time.Duration, err error) {
	event := Event{
		Timestamp:    time.Now(),
		Kind:         KindCommand,
		Address:      address,
		PacketTypeID: packetTypeID,
		Elapsed:      elapsed,
	}
	if err != nil {
		event.Error = err.Error()
	}
	r.Record(event)
}

// Err returns the first encoding error, if any
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the capture file.
// It is safe to call Close multiple times.
// After Close is called, subsequent events are silently ignored.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	return r.out.Close()
}

// Compile-time interface satisfaction check.
var _ rhsp.Observer = (*Recorder)(nil)
