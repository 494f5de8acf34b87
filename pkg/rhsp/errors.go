// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"errors"
	"fmt"
)

var (
	ErrNotOpened               = errors.New("rhsp: hub not opened")
	ErrArgOutOfRange           = errors.New("rhsp: argument out of range")
	ErrSerialPort              = errors.New("rhsp: serial port error")
	ErrResponseTimeout         = errors.New("rhsp: response timeout")
	ErrMessageNumberMismatch   = errors.New("rhsp: message number mismatch")
	ErrNackReceived            = errors.New("rhsp: nack received")
	ErrUnexpectedResponse      = errors.New("rhsp: unexpected response")
	ErrCommandNotSupported     = errors.New("rhsp: command not supported")
	ErrNoHubDiscovered         = errors.New("rhsp: no hub discovered")
	ErrMultipleParentsDetected = errors.New("rhsp: multiple parents detected")

	// ErrInvalidFrame is returned by ParseFrame for bytes that are not one
	// complete, checksum-valid frame.
	ErrInvalidFrame = errors.New("rhsp: invalid frame")
)

// NackError is returned when the hub explicitly rejects a command.
type NackError struct {
	Reason NackReason
}

func (e *NackError) Error() string {
	return fmt.Sprintf("rhsp: nack received (reason %d, %s)", uint8(e.Reason), e.Reason)
}

// Is reports NackError as ErrNackReceived.
func (e *NackError) Is(target error) bool {
	return target == ErrNackReceived
}

// SerialPortError wraps a transport I/O failure.
type SerialPortError struct {
	Op  string
	Err error
}

func (e *SerialPortError) Error() string {
	return fmt.Sprintf("rhsp: serial port %s failed: %v", e.Op, e.Err)
}

func (e *SerialPortError) Unwrap() error {
	return e.Err
}

// Is reports SerialPortError as ErrSerialPort.
func (e *SerialPortError) Is(target error) bool {
	return target == ErrSerialPort
}

// NackReasonOf extracts the NACK reason code from err, if it carries one.
func NackReasonOf(err error) (NackReason, bool) {
	var nack *NackError
	if errors.As(err, &nack) {
		return nack.Reason, true
	}
	return 0, false
}
