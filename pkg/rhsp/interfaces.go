// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Well-known interface names
const (
	DEKAInterfaceName = "DEKA"
)

// InterfaceRange is a block of packet type IDs the firmware allocated to
// one named interface.
type InterfaceRange struct {
	Name           string
	FirstPacketID  uint16
	NumberIDValues uint16
}

// PacketID resolves function number fn within the range
func (r InterfaceRange) PacketID(fn uint16) (uint16, bool) {
	if fn >= r.NumberIDValues {
		return 0, false
	}
	return r.FirstPacketID + fn, true
}

// GetInterfacePacketID resolves (name, fn) to a packet type ID, querying the
// hub the first time a name is seen. Function numbers outside a known range
// fail with ErrCommandNotSupported without touching the transport.
func (h *Hub) GetInterfacePacketID(name string, fn uint16) (uint16, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if id, ok, known := h.lookupInterface(name, fn); known {
		if !ok {
			return 0, fmt.Errorf("%w: %s function %d", ErrCommandNotSupported, name, fn)
		}
		return id, nil
	}

	r, err := h.queryInterface(name)
	if err != nil {
		return 0, err
	}
	h.cacheInterface(r)

	// Resolve against the cache so a full cache reports the same way a miss does
	id, ok, _ := h.lookupInterface(name, fn)
	if !ok {
		return 0, fmt.Errorf("%w: %s function %d", ErrCommandNotSupported, name, fn)
	}
	return id, nil
}

// QueryInterface returns the packet ID range of an interface, from the cache
// when possible.
func (h *Hub) QueryInterface(name string) (InterfaceRange, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.interfaces[name]; ok {
		return r, nil
	}

	r, err := h.queryInterface(name)
	if err != nil {
		return InterfaceRange{}, err
	}
	h.cacheInterface(r)
	return r, nil
}

// CachedInterfaces returns the cached interface ranges sorted by name
func (h *Hub) CachedInterfaces() []InterfaceRange {
	h.mu.Lock()
	defer h.mu.Unlock()

	ranges := make([]InterfaceRange, 0, len(h.interfaces))
	for _, r := range h.interfaces {
		ranges = append(ranges, r)
	}
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].Name < ranges[j].Name
	})
	return ranges
}

// lookupInterface reports the resolved ID, whether fn is in range, and
// whether the name is cached at all.
func (h *Hub) lookupInterface(name string, fn uint16) (uint16, bool, bool) {
	r, known := h.interfaces[name]
	if !known {
		return 0, false, false
	}
	id, ok := r.PacketID(fn)
	return id, ok, true
}

func (h *Hub) queryInterface(name string) (InterfaceRange, error) {
	// The hub expects a NUL-terminated name
	payload := make([]byte, 0, len(name)+1)
	payload = append(payload, name...)
	payload = append(payload, 0)

	data, err := h.sendReadCommand(PacketQueryInterface, payload)
	if err != nil {
		return InterfaceRange{}, err
	}
	if len(data) < 4 {
		return InterfaceRange{}, fmt.Errorf("%w: query interface response of %d bytes", ErrUnexpectedResponse, len(data))
	}

	return InterfaceRange{
		Name:           name,
		FirstPacketID:  binary.LittleEndian.Uint16(data[0:2]),
		NumberIDValues: binary.LittleEndian.Uint16(data[2:4]),
	}, nil
}

// cacheInterface stores r unless the name is already known or the cache is full
func (h *Hub) cacheInterface(r InterfaceRange) {
	if _, exists := h.interfaces[r.Name]; exists {
		return
	}
	if h.interfaceCapacity > 0 && len(h.interfaces) >= h.interfaceCapacity {
		if h.log != nil {
			h.log.Warn().Str("interface", r.Name).Int("capacity", h.interfaceCapacity).Msg("interface cache full")
		}
		return
	}

	h.interfaces[r.Name] = r
	if h.log != nil {
		h.log.Debug().
			Str("interface", r.Name).
			Uint32("first_packet_id", uint32(r.FirstPacketID)).
			Uint32("count", uint32(r.NumberIDValues)).
			Msg("interface cached")
	}
}
