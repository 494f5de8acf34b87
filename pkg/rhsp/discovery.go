// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"errors"
	"fmt"
	"time"
)

// DiscoveredAddresses is the result of one discovery run. Children are kept
// in the order their responses arrived.
type DiscoveredAddresses struct {
	Parent   uint8
	Children []uint8
}

// NumChildren returns the number of routed child hubs
func (d *DiscoveredAddresses) NumChildren() int {
	return len(d.Children)
}

// Discover enumerates the hubs reachable on t with one broadcast
// transaction.
//
// The run waits DefaultDiscoveryTimeout (or the WithResponseTimeout option)
// for each response; a timeout after at least one response ends the run
// normally. With no parent the result is ErrNoHubDiscovered; with more than
// one it is ErrMultipleParentsDetected, and the addresses seen are still
// returned for diagnostics.
func Discover(t Transport, opts ...Option) (*DiscoveredAddresses, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrArgOutOfRange)
	}

	h := newSession(t, BroadcastAddress, DefaultDiscoveryTimeout, opts...)
	defer h.Close()

	if h.responseTimeoutMs == 0 {
		return nil, fmt.Errorf("%w: discovery needs a finite timeout", ErrArgOutOfRange)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	addrs, err := h.discover()
	h.observer.CommandCompleted(BroadcastAddress, PacketDiscovery, time.Since(start), err)
	return addrs, err
}

func (h *Hub) discover() (*DiscoveredAddresses, error) {
	unlock := lockTransport(h.transport)
	defer unlock()

	if _, err := purgeInput(h.transport); err != nil {
		return nil, err
	}
	if _, err := h.transmit(PacketDiscovery, nil); err != nil {
		return nil, err
	}

	addrs := &DiscoveredAddresses{}
	parents := 0
	responses := 0

	for len(addrs.Children) < MaxDiscoveredChildren {
		frame, err := h.receive()
		if err != nil {
			if errors.Is(err, ErrResponseTimeout) && responses > 0 {
				break
			}
			if errors.Is(err, ErrResponseTimeout) {
				return addrs, ErrNoHubDiscovered
			}
			return nil, err
		}

		if frame.PacketTypeID() != PacketDiscoveryResponse {
			continue
		}
		responses++

		payload := frame.Payload()
		if len(payload) > 0 && payload[0] != 0 {
			addrs.Parent = frame.SourceAddress()
			parents++
			if h.log != nil {
				h.log.Debug().Uint8("address", frame.SourceAddress()).Msg("discovered parent hub")
			}
		} else {
			addrs.Children = append(addrs.Children, frame.SourceAddress())
			if h.log != nil {
				h.log.Debug().Uint8("address", frame.SourceAddress()).Msg("discovered child hub")
			}
		}
	}

	switch {
	case parents == 0:
		return addrs, ErrNoHubDiscovered
	case parents > 1:
		if h.log != nil {
			h.log.Warn().Int("parents", parents).Msg("multiple parent hubs answered discovery")
		}
		return addrs, fmt.Errorf("%w: %d parents answered", ErrMultipleParentsDetected, parents)
	}
	return addrs, nil
}
