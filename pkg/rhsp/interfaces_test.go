// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// interfaceDirectory answers query-interface requests from a fixed table and
// NACKs unknown names the way firmware does
func interfaceDirectory(t *testing.T, table map[string][2]uint16) responder {
	return func(req *Frame) [][]byte {
		if req.PacketTypeID() != PacketQueryInterface {
			return [][]byte{hubFrame(t, req.DestAddress(), HostAddress, 0, req.MessageNumber(), PacketAck, []byte{0})}
		}

		name := string(bytes.TrimSuffix(req.Payload(), []byte{0}))
		r, ok := table[name]
		if !ok {
			return [][]byte{hubFrame(t, req.DestAddress(), HostAddress, 0, req.MessageNumber(), PacketNack, []byte{byte(NackPacketTypeIDUnknown)})}
		}

		payload := make([]byte, 4)
		binary.LittleEndian.PutUint16(payload[0:], r[0])
		binary.LittleEndian.PutUint16(payload[2:], r[1])
		return [][]byte{hubFrame(t, req.DestAddress(), HostAddress, 0, req.MessageNumber(), PacketQueryInterface|ResponseBit, payload)}
	}
}

func TestInterfaceRange_PacketID(t *testing.T) {
	r := InterfaceRange{Name: DEKAInterfaceName, FirstPacketID: 0x1000, NumberIDValues: 3}

	tests := []struct {
		fn     uint16
		wantID uint16
		wantOK bool
	}{
		{0, 0x1000, true},
		{2, 0x1002, true},
		{3, 0, false},
		{0xFFFF, 0, false},
	}

	for _, tt := range tests {
		id, ok := r.PacketID(tt.fn)
		if ok != tt.wantOK || id != tt.wantID {
			t.Errorf("PacketID(%d) = (0x%04X, %v), expected (0x%04X, %v)", tt.fn, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestGetInterfacePacketID_CachesAfterFirstQuery(t *testing.T) {
	ft := newFakeTransport(interfaceDirectory(t, map[string][2]uint16{
		DEKAInterfaceName: {0x1000, 48},
	}))
	h := openTestHub(t, ft)

	id, err := h.GetInterfacePacketID(DEKAInterfaceName, 5)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1005), id)

	again, err := h.GetInterfacePacketID(DEKAInterfaceName, 5)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	require.Equal(t, 1, ft.requestCount(), "second resolution must come from the cache")
	req := ft.request(0)
	assert.Equal(t, PacketQueryInterface, req.PacketTypeID())
	assert.Equal(t, []byte("DEKA\x00"), req.Payload())
}

func TestGetInterfacePacketID_OutOfRangeSkipsQuery(t *testing.T) {
	ft := newFakeTransport(interfaceDirectory(t, map[string][2]uint16{
		DEKAInterfaceName: {0x1000, 48},
	}))
	h := openTestHub(t, ft)

	_, err := h.GetInterfacePacketID(DEKAInterfaceName, 0)
	require.NoError(t, err)

	_, err = h.GetInterfacePacketID(DEKAInterfaceName, 48)
	assert.ErrorIs(t, err, ErrCommandNotSupported)
	assert.Equal(t, 1, ft.requestCount())
}

func TestGetInterfacePacketID_OutOfRangeOnFirstQuery(t *testing.T) {
	ft := newFakeTransport(interfaceDirectory(t, map[string][2]uint16{
		DEKAInterfaceName: {0x1000, 2},
	}))
	h := openTestHub(t, ft)

	_, err := h.GetInterfacePacketID(DEKAInterfaceName, 2)
	assert.ErrorIs(t, err, ErrCommandNotSupported)

	// The range is still learned
	ranges := h.CachedInterfaces()
	require.Len(t, ranges, 1)
	assert.Equal(t, uint16(2), ranges[0].NumberIDValues)
}

func TestGetInterfacePacketID_UnknownInterface(t *testing.T) {
	ft := newFakeTransport(interfaceDirectory(t, map[string][2]uint16{}))
	h := openTestHub(t, ft)

	_, err := h.GetInterfacePacketID("Nope", 0)
	assert.ErrorIs(t, err, ErrNackReceived)
	assert.Empty(t, h.CachedInterfaces())
}

func TestGetInterfacePacketID_ShortResponse(t *testing.T) {
	ft := newFakeTransport(replyWith(t, PacketQueryInterface|ResponseBit, []byte{0x00, 0x10, 0x30}))
	h := openTestHub(t, ft)

	_, err := h.GetInterfacePacketID(DEKAInterfaceName, 0)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
	assert.Empty(t, h.CachedInterfaces())
}

func TestInterfaceCache_Capacity(t *testing.T) {
	ft := newFakeTransport(interfaceDirectory(t, map[string][2]uint16{
		"A": {0x1000, 4},
		"B": {0x2000, 4},
	}))
	h := openTestHub(t, ft, WithInterfaceCacheCapacity(1))

	id, err := h.GetInterfacePacketID("A", 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1001), id)

	// A full cache cannot learn B, so B never resolves
	_, err = h.GetInterfacePacketID("B", 1)
	assert.ErrorIs(t, err, ErrCommandNotSupported)

	// A is unaffected and still served from the cache
	id, err = h.GetInterfacePacketID("A", 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1002), id)
	assert.Equal(t, 2, ft.requestCount())
}

func TestInterfaceCache_ClearedOnClose(t *testing.T) {
	ft := newFakeTransport(interfaceDirectory(t, map[string][2]uint16{
		DEKAInterfaceName: {0x1000, 48},
	}))
	h := openTestHub(t, ft)

	_, err := h.QueryInterface(DEKAInterfaceName)
	require.NoError(t, err)
	require.Len(t, h.CachedInterfaces(), 1)

	h.Close()
	assert.Empty(t, h.CachedInterfaces())
}

func TestCachedInterfaces_Sorted(t *testing.T) {
	ft := newFakeTransport(interfaceDirectory(t, map[string][2]uint16{
		"Zeta":  {0x3000, 1},
		"Alpha": {0x1000, 1},
		"Mid":   {0x2000, 1},
	}))
	h := openTestHub(t, ft)

	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		_, err := h.QueryInterface(name)
		require.NoError(t, err)
	}

	ranges := h.CachedInterfaces()
	require.Len(t, ranges, 3)
	assert.Equal(t, "Alpha", ranges[0].Name)
	assert.Equal(t, "Mid", ranges[1].Name)
	assert.Equal(t, "Zeta", ranges[2].Name)
}
