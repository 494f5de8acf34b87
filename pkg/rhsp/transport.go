// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"io"
	"sync"
	"time"
)

// Transport is the byte link to the hubs.
//
// Read must block for at most a short read slice and return (0, nil) when no
// byte arrived in that slice; the transaction engine re-checks its response
// timeout between reads. Opening and closing the link is the owner's job:
// hub sessions only borrow a transport.
type Transport interface {
	io.Reader
	io.Writer
}

// InputResetter is implemented by transports that can drop their inbound
// OS buffer in one call.
type InputResetter interface {
	ResetInputBuffer() error
}

// Clock supplies monotonic milliseconds for timeout measurement. The value
// may wrap; elapsed time is always computed with wrapping arithmetic.
type Clock interface {
	NowMs() uint32
}

type systemClock struct {
	epoch time.Time
}

// NewSystemClock returns a Clock backed by the runtime monotonic clock
func NewSystemClock() Clock {
	return &systemClock{epoch: time.Now()}
}

func (c *systemClock) NowMs() uint32 {
	return uint32(time.Since(c.epoch).Milliseconds())
}

// maxPurgeBytes bounds one purge so a chattering device cannot stall it forever.
const maxPurgeBytes = 16 * MaxFrameSize

// purgeInput discards stale inbound bytes: the OS buffer is reset when the
// transport supports it, then reads are drained until one returns nothing.
func purgeInput(t Transport) (int, error) {
	if r, ok := t.(InputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return 0, &SerialPortError{Op: "purge", Err: err}
		}
	}

	var scratch [64]byte
	total := 0
	for total < maxPurgeBytes {
		n, err := t.Read(scratch[:])
		if err != nil {
			return total, &SerialPortError{Op: "purge", Err: err}
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// writeAll flushes buf completely. A short write followed by an error is
// fatal; a write that makes no progress without an error is retried.
func writeAll(t Transport, buf []byte) error {
	const maxStalledWrites = 100

	stalled := 0
	for len(buf) > 0 {
		n, err := t.Write(buf)
		if err != nil {
			return &SerialPortError{Op: "write", Err: err}
		}
		if n == 0 {
			stalled++
			if stalled >= maxStalledWrites {
				return &SerialPortError{Op: "write", Err: io.ErrShortWrite}
			}
			continue
		}
		stalled = 0
		buf = buf[n:]
	}
	return nil
}

// Bus serializes access to one physical transport shared by several hub
// sessions (for example a parent hub and its daisy-chained children).
// Transactions and discovery runs lock the bus for their whole duration.
type Bus struct {
	mu        sync.Mutex
	transport Transport
}

// NewBus wraps t for shared use
func NewBus(t Transport) *Bus {
	return &Bus{transport: t}
}

// Lock acquires exclusive use of the transport
func (b *Bus) Lock() {
	b.mu.Lock()
}

// Unlock releases the transport
func (b *Bus) Unlock() {
	b.mu.Unlock()
}

func (b *Bus) Read(p []byte) (int, error) {
	return b.transport.Read(p)
}

func (b *Bus) Write(p []byte) (int, error) {
	return b.transport.Write(p)
}

// ResetInputBuffer forwards to the wrapped transport when it supports it
func (b *Bus) ResetInputBuffer() error {
	if r, ok := b.transport.(InputResetter); ok {
		return r.ResetInputBuffer()
	}
	return nil
}

// Transport returns the wrapped transport
func (b *Bus) Transport() Transport {
	return b.transport
}

// lockTransport locks t if it is shared and returns the matching unlock.
func lockTransport(t Transport) func() {
	if l, ok := t.(sync.Locker); ok {
		l.Lock()
		return l.Unlock
	}
	return func() {}
}
