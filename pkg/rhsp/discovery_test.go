// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discoveryReply struct {
	src     uint8
	arrival byte
}

// discoveryHubs answers a discovery broadcast with one response per hub,
// in order, and stays silent otherwise
func discoveryHubs(t *testing.T, replies ...discoveryReply) responder {
	return func(req *Frame) [][]byte {
		if req.PacketTypeID() != PacketDiscovery {
			return nil
		}
		var out [][]byte
		for _, r := range replies {
			out = append(out, hubFrame(t, r.src, HostAddress, 0, req.MessageNumber(), PacketDiscoveryResponse, []byte{r.arrival}))
		}
		return out
	}
}

func discoverWithFakeClock(ft *fakeTransport, opts ...Option) (*DiscoveredAddresses, error) {
	opts = append([]Option{WithClock(newFakeClock(0, 1))}, opts...)
	return Discover(ft, opts...)
}

func TestDiscover_ParentAndChildren(t *testing.T) {
	ft := newFakeTransport(discoveryHubs(t,
		discoveryReply{src: 2, arrival: 1},
		discoveryReply{src: 3, arrival: 0},
		discoveryReply{src: 4, arrival: 0},
	))

	addrs, err := discoverWithFakeClock(ft)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), addrs.Parent)
	assert.Equal(t, []uint8{3, 4}, addrs.Children)
	assert.Equal(t, 2, addrs.NumChildren())

	require.Equal(t, 1, ft.requestCount())
	req := ft.request(0)
	assert.True(t, req.IsBroadcast())
	assert.Equal(t, PacketDiscovery, req.PacketTypeID())
	assert.Empty(t, req.Payload())
	assert.Equal(t, 1, ft.resets, "discovery purges input before broadcasting")
}

func TestDiscover_ChildrenKeepArrivalOrder(t *testing.T) {
	ft := newFakeTransport(discoveryHubs(t,
		discoveryReply{src: 9, arrival: 0},
		discoveryReply{src: 2, arrival: 1},
		discoveryReply{src: 5, arrival: 0},
		discoveryReply{src: 7, arrival: 0},
	))

	addrs, err := discoverWithFakeClock(ft)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), addrs.Parent)
	assert.Equal(t, []uint8{9, 5, 7}, addrs.Children)
}

func TestDiscover_MultipleParents(t *testing.T) {
	ft := newFakeTransport(discoveryHubs(t,
		discoveryReply{src: 2, arrival: 1},
		discoveryReply{src: 3, arrival: 1},
	))

	addrs, err := discoverWithFakeClock(ft)
	require.ErrorIs(t, err, ErrMultipleParentsDetected)
	require.NotNil(t, addrs)
	assert.Empty(t, addrs.Children)
}

func TestDiscover_NoHub(t *testing.T) {
	ft := newFakeTransport(discoveryHubs(t))

	_, err := discoverWithFakeClock(ft)
	assert.ErrorIs(t, err, ErrNoHubDiscovered)
}

func TestDiscover_ChildrenWithoutParent(t *testing.T) {
	ft := newFakeTransport(discoveryHubs(t,
		discoveryReply{src: 3, arrival: 0},
	))

	addrs, err := discoverWithFakeClock(ft)
	require.ErrorIs(t, err, ErrNoHubDiscovered)
	assert.Equal(t, []uint8{3}, addrs.Children)
}

func TestDiscover_IgnoresUnrelatedTraffic(t *testing.T) {
	respond := func(req *Frame) [][]byte {
		return [][]byte{
			hubFrame(t, 6, HostAddress, 0, 0, PacketKeepAlive|ResponseBit, []byte{0x01}),
			hubFrame(t, 2, HostAddress, 0, req.MessageNumber(), PacketDiscoveryResponse, []byte{1}),
			hubFrame(t, 6, HostAddress, 0, 0, PacketAck, []byte{0x00}),
		}
	}
	ft := newFakeTransport(respond)

	addrs, err := discoverWithFakeClock(ft)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), addrs.Parent)
	assert.Empty(t, addrs.Children)
}

func TestDiscover_StopsAtChildCapacity(t *testing.T) {
	replies := []discoveryReply{{src: 1, arrival: 1}}
	for i := 0; i < MaxDiscoveredChildren+5; i++ {
		replies = append(replies, discoveryReply{src: uint8(i%250 + 2), arrival: 0})
	}
	ft := newFakeTransport(discoveryHubs(t, replies...))

	addrs, err := discoverWithFakeClock(ft)
	require.NoError(t, err)
	assert.Equal(t, MaxDiscoveredChildren, addrs.NumChildren())
}

func TestDiscover_RejectsZeroTimeout(t *testing.T) {
	ft := newFakeTransport(discoveryHubs(t, discoveryReply{src: 2, arrival: 1}))

	_, err := discoverWithFakeClock(ft, WithResponseTimeout(0))
	assert.ErrorIs(t, err, ErrArgOutOfRange)
	assert.Equal(t, 0, ft.requestCount())
}

func TestDiscover_BusyLine(t *testing.T) {
	for _, pattern := range [][]byte{{0x00}, badChecksumFrame(t)} {
		noise := newNoiseTransport(pattern)

		var addrs *DiscoveredAddresses
		err := finishesWithin(t, 2*time.Second, func() error {
			var err error
			addrs, err = Discover(noise, WithClock(newFakeClock(0, 1)), WithResponseTimeout(50*time.Millisecond))
			return err
		})
		require.ErrorIs(t, err, ErrNoHubDiscovered)
		require.NotNil(t, addrs)
		assert.Zero(t, addrs.Parent)
		assert.Empty(t, addrs.Children)
	}
}

func TestDiscover_TransportError(t *testing.T) {
	linkDown := errors.New("link down")
	ft := newFakeTransport(nil)
	ft.writeErr = linkDown

	addrs, err := discoverWithFakeClock(ft)
	assert.Nil(t, addrs)
	assert.ErrorIs(t, err, ErrSerialPort)
	assert.ErrorIs(t, err, linkDown)
}

func TestDiscover_ReportsToObserver(t *testing.T) {
	obs := &recordingObserver{}
	ft := newFakeTransport(discoveryHubs(t, discoveryReply{src: 2, arrival: 1}))

	_, err := discoverWithFakeClock(ft, WithObserver(obs), WithResponseTimeout(20*time.Millisecond))
	require.NoError(t, err)

	require.Len(t, obs.sent, 1)
	assert.Equal(t, PacketDiscovery, obs.sent[0].PacketTypeID())
	require.Len(t, obs.received, 1)
	require.Len(t, obs.results, 1)
	assert.NoError(t, obs.results[0])
}

func TestDiscover_SharedBus(t *testing.T) {
	ft := newFakeTransport(discoveryHubs(t, discoveryReply{src: 2, arrival: 1}))
	bus := NewBus(ft)

	addrs, err := Discover(bus, WithClock(newFakeClock(0, 1)))
	require.NoError(t, err)

	h, err := Open(bus, addrs.Parent, WithClock(newFakeClock(0, 1)))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), h.Address())
}
