// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

func TestRecorder_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.cbor")

	rec, err := NewRecorder(path)
	require.NoError(t, err)

	sent := rhsp.NewFrame(2, 1, 0, rhsp.PacketSetModuleLEDColor, []byte{1, 2, 3})
	rec.FrameSent(sent)
	rec.CommandCompleted(2, rhsp.PacketSetModuleLEDColor, 3*time.Millisecond, errors.New("rhsp: response timeout"))
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Err())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	events, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, 2)

	frameEvent := events[0]
	assert.Equal(t, KindFrame, frameEvent.Kind)
	assert.Equal(t, DirectionOut, frameEvent.Direction)
	assert.Equal(t, rec.SessionID(), frameEvent.SessionID)

	f, err := frameEvent.DecodeFrame()
	require.NoError(t, err)
	assert.Equal(t, rhsp.PacketSetModuleLEDColor, f.PacketTypeID())
	assert.Equal(t, []byte{1, 2, 3}, f.Payload())
	assert.True(t, f.Timestamp().Equal(sent.Timestamp()))

	cmd := events[1]
	assert.Equal(t, KindCommand, cmd.Kind)
	assert.Equal(t, uint8(2), cmd.Address)
	assert.Equal(t, rhsp.PacketSetModuleLEDColor, cmd.PacketTypeID)
	assert.Equal(t, 3*time.Millisecond, cmd.Elapsed)
	assert.Equal(t, "rhsp: response timeout", cmd.Error)
}

func TestRecorder_AppendsAcrossSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.cbor")

	var sessions []string
	for i := 0; i < 2; i++ {
		rec, err := NewRecorder(path)
		require.NoError(t, err)
		rec.FrameReceived(rhsp.NewFrame(0, 0, 1, rhsp.PacketAck, []byte{0}))
		sessions = append(sessions, rec.SessionID())
		require.NoError(t, rec.Close())
	}
	require.NotEqual(t, sessions[0], sessions[1])

	r, err := NewFilteredReader(path, Filter{SessionID: sessions[1]})
	require.NoError(t, err)
	defer r.Close()

	event, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, sessions[1], event.SessionID)
	assert.Equal(t, DirectionIn, event.Direction)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	rec, err := NewRecorder(filepath.Join(t.TempDir(), "capture.cbor"))
	require.NoError(t, err)

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	// Events after close are dropped without error
	rec.FrameSent(rhsp.NewFrame(2, 1, 0, rhsp.PacketKeepAlive, nil))
	assert.NoError(t, rec.Err())
}

func TestRecorder_ConcurrentUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.cbor")
	rec, err := NewRecorder(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				rec.FrameSent(rhsp.NewFrame(2, uint8(i+1), 0, rhsp.PacketKeepAlive, nil))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, rec.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	events, err := r.ReadAll()
	require.NoError(t, err)
	assert.Len(t, events, 100)
}

func TestFilter_Matches(t *testing.T) {
	now := time.Now()
	in := DirectionIn
	cmdKind := KindCommand
	addr := uint8(3)
	later := now.Add(time.Second)

	frameIn := Event{Timestamp: now, Kind: KindFrame, Direction: DirectionIn}
	frameOut := Event{Timestamp: now, Kind: KindFrame, Direction: DirectionOut}
	cmd3 := Event{Timestamp: now, Kind: KindCommand, Address: 3}

	tests := []struct {
		name   string
		filter Filter
		event  Event
		want   bool
	}{
		{"empty matches", Filter{}, frameOut, true},
		{"direction in", Filter{Direction: &in}, frameIn, true},
		{"direction out rejected", Filter{Direction: &in}, frameOut, false},
		{"direction ignores commands", Filter{Direction: &in}, cmd3, false},
		{"kind", Filter{Kind: &cmdKind}, cmd3, true},
		{"address", Filter{Address: &addr}, cmd3, true},
		{"address ignores frames", Filter{Address: &addr}, frameIn, false},
		{"before start", Filter{TimeStart: &later}, frameIn, false},
		{"before end", Filter{TimeEnd: &later}, frameIn, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.matches(tt.event))
		})
	}
}

func TestReader_TruncatedCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.cbor")
	rec, err := NewRecorder(path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		rec.FrameSent(rhsp.NewFrame(2, uint8(i+1), 0, rhsp.PacketKeepAlive, nil))
	}
	require.NoError(t, rec.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-4))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	events, err := r.ReadAll()
	require.ErrorIs(t, err, ErrTruncated)
	assert.Len(t, events, 2)
}

func TestDecodeEvent_Validation(t *testing.T) {
	frame := rhsp.MustEncodeFrame(2, 1, 0, rhsp.PacketKeepAlive, nil)

	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"frame", Event{Kind: KindFrame, Direction: DirectionOut, Frame: frame}, false},
		{"command", Event{Kind: KindCommand, Address: 2, PacketTypeID: rhsp.PacketKeepAlive}, false},
		{"frame without bytes", Event{Kind: KindFrame}, true},
		{"oversized frame", Event{Kind: KindFrame, Frame: make([]byte, rhsp.MaxFrameSize+1)}, true},
		{"bad direction", Event{Kind: KindFrame, Direction: 7, Frame: frame}, true},
		{"command with bytes", Event{Kind: KindCommand, Frame: frame}, true},
		{"unknown kind", Event{Kind: 9}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event.Timestamp = time.Now()
			data, err := EncodeEvent(tt.event)
			require.NoError(t, err)

			got, err := DecodeEvent(data)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.event.Kind, got.Kind)
			assert.Equal(t, tt.event.Frame, got.Frame)
		})
	}
}

func TestStreamReader_StopsAtMalformedEvent(t *testing.T) {
	var buf bytes.Buffer
	good, err := EncodeEvent(Event{Timestamp: time.Now(), Kind: KindCommand, Address: 2})
	require.NoError(t, err)
	bad, err := EncodeEvent(Event{Timestamp: time.Now(), Kind: 5})
	require.NoError(t, err)
	buf.Write(good)
	buf.Write(bad)

	r := NewStreamReader(io.NopCloser(&buf), Filter{})
	defer r.Close()

	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.ErrorIs(t, err, ErrMalformedEvent)
	assert.Contains(t, err.Error(), "event 2")
}

func TestKindAndDirectionStrings(t *testing.T) {
	assert.Equal(t, "FRAME", KindFrame.String())
	assert.Equal(t, "COMMAND", KindCommand.String())
	assert.Equal(t, "IN", DirectionIn.String())
	assert.Equal(t, "OUT", DirectionOut.String())
	assert.Equal(t, "UNKNOWN", Direction(9).String())
}
