// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"fmt"
	"sync"
	"time"

	"github.com/loopholelabs/logging/types"
)

// Hub is a session with one addressable hub on a transport.
//
// Operations on one Hub are serialized internally and block until they
// complete or time out. Hubs that share a physical transport must be opened
// on the same Bus so their transactions do not interleave on the wire.
type Hub struct {
	mu sync.Mutex

	transport Transport
	opened    bool
	address   uint8

	messageNumber     uint8
	responseTimeoutMs uint32

	clock    Clock
	log      types.Logger
	observer Observer

	decoder  *Decoder
	txBuffer []byte

	interfaces        map[string]InterfaceRange
	interfaceCapacity int
}

// Option configures a Hub session
type Option func(*Hub)

// WithClock overrides the monotonic clock used for timeouts
func WithClock(c Clock) Option {
	return func(h *Hub) {
		h.clock = c
	}
}

// WithLogger enables structured logging of frames and cache updates
func WithLogger(log types.Logger) Option {
	return func(h *Hub) {
		h.log = log
	}
}

// WithObserver attaches a protocol event observer
func WithObserver(o Observer) Option {
	return func(h *Hub) {
		h.observer = o
	}
}

// WithResponseTimeout sets the initial response timeout. Zero waits forever.
func WithResponseTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.responseTimeoutMs = durationToMs(d)
	}
}

// WithInterfaceCacheCapacity bounds the number of interfaces the session
// remembers. Zero (the default) means unbounded.
func WithInterfaceCacheCapacity(n int) Option {
	return func(h *Hub) {
		if n < 0 {
			n = 0
		}
		h.interfaceCapacity = n
	}
}

// Open starts a session with the hub at address on transport t. The
// transport is borrowed: closing the session leaves it open.
func Open(t Transport, address uint8, opts ...Option) (*Hub, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrArgOutOfRange)
	}
	if address == HostAddress || address == BroadcastAddress {
		return nil, fmt.Errorf("%w: invalid hub address 0x%02X", ErrArgOutOfRange, address)
	}
	return newSession(t, address, DefaultResponseTimeout, opts...), nil
}

func newSession(t Transport, address uint8, timeout time.Duration, opts ...Option) *Hub {
	h := &Hub{
		transport:         t,
		opened:            true,
		address:           address,
		messageNumber:     firstMessageNumber,
		responseTimeoutMs: durationToMs(timeout),
		decoder:           NewDecoder(),
		txBuffer:          make([]byte, 0, MaxFrameSize),
		interfaces:        make(map[string]InterfaceRange),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.clock == nil {
		h.clock = NewSystemClock()
	}
	if h.observer == nil {
		h.observer = NopObserver{}
	}
	return h
}

// Close ends the session and forgets every cached interface, since the
// address may later be reassigned to a different hub.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.opened = false
	h.transport = nil
	h.interfaces = make(map[string]InterfaceRange)
	h.decoder.Reset()
}

// IsOpened reports whether the session is bound to a transport
func (h *Hub) IsOpened() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened
}

// Address returns the destination address of the session
func (h *Hub) Address() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.address
}

// MessageNumber returns the number the next request will carry
func (h *Hub) MessageNumber() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messageNumber
}

// SetResponseTimeout changes the response timeout. Zero waits forever and
// should only be used deliberately.
func (h *Hub) SetResponseTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responseTimeoutMs = durationToMs(d)
}

// ResponseTimeout returns the current response timeout
func (h *Hub) ResponseTimeout() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Duration(h.responseTimeoutMs) * time.Millisecond
}

// DecoderStats returns the framing counters of the session's receiver
func (h *Hub) DecoderStats() DecoderStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.decoder.Stats()
}

// advanceMessageNumber steps 1..255 and skips 0.
func (h *Hub) advanceMessageNumber() {
	h.messageNumber++
	if h.messageNumber == 0 {
		h.messageNumber = firstMessageNumber
	}
}

func durationToMs(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	if ms > int64(^uint32(0)) {
		ms = int64(^uint32(0))
	}
	return uint32(ms)
}
