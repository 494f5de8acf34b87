// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

// fakeClock advances by step milliseconds every time it is read
type fakeClock struct {
	now  atomic.Uint32
	step uint32
}

func newFakeClock(start, step uint32) *fakeClock {
	c := &fakeClock{step: step}
	c.now.Store(start)
	return c
}

func (c *fakeClock) NowMs() uint32 {
	return c.now.Add(c.step) - c.step
}

// responder returns the raw bytes the simulated hub sends back for a request
type responder func(req *Frame) [][]byte

// fakeTransport simulates the hub end of a link. Every write is decoded as a
// request and the responder's answer is queued for the host to read.
type fakeTransport struct {
	mu sync.Mutex

	rx       []byte
	requests []*Frame
	respond  responder

	chunk    int // max bytes per Read, 0 for no limit
	resets   int
	readErr  error
	writeErr error
}

func newFakeTransport(r responder) *fakeTransport {
	return &fakeTransport{respond: r}
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readErr != nil {
		return 0, f.readErr
	}
	n := len(p)
	if f.chunk > 0 && n > f.chunk {
		n = f.chunk
	}
	n = copy(p[:n], f.rx)
	f.rx = f.rx[n:]
	return n, nil
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		return 0, f.writeErr
	}

	d := NewDecoder()
	if status, err := d.Poll(bytes.NewReader(p)); err == nil && status == DecodeFrameReady {
		req := d.Frame()
		f.requests = append(f.requests, req)
		if f.respond != nil {
			for _, raw := range f.respond(req) {
				f.rx = append(f.rx, raw...)
			}
		}
	}
	return len(p), nil
}

func (f *fakeTransport) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

// inject queues bytes as if they had arrived unsolicited
func (f *fakeTransport) inject(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx = append(f.rx, b...)
}

func (f *fakeTransport) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTransport) request(i int) *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

// hubFrame encodes a frame as a hub at src would send it
func hubFrame(t testing.TB, src, dest, msg, ref uint8, id uint16, payload []byte) []byte {
	t.Helper()
	raw, err := appendFrame(nil, src, dest, msg, ref, id, payload)
	if err != nil {
		t.Fatalf("encoding hub frame: %v", err)
	}
	return raw
}

// replyWith answers every request with one frame of the given type and payload
func replyWith(t testing.TB, id uint16, payload []byte) responder {
	return func(req *Frame) [][]byte {
		return [][]byte{hubFrame(t, req.DestAddress(), HostAddress, 0, req.MessageNumber(), id, payload)}
	}
}

// ack answers every request with an ACK
func ack(t testing.TB) responder {
	return replyWith(t, PacketAck, []byte{0x00})
}

// echoRead answers read requests with a response ID and the given payload
func echoRead(t testing.TB, payload []byte) responder {
	return func(req *Frame) [][]byte {
		return [][]byte{hubFrame(t, req.DestAddress(), HostAddress, 0, req.MessageNumber(), req.PacketTypeID()|ResponseBit, payload)}
	}
}

// openTestHub opens a session at address 2 with a fast fake clock
func openTestHub(t testing.TB, ft *fakeTransport, opts ...Option) *Hub {
	t.Helper()
	opts = append([]Option{WithClock(newFakeClock(0, 1))}, opts...)
	h, err := Open(ft, 2, opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return h
}

// recordingObserver captures every observer callback
type recordingObserver struct {
	mu       sync.Mutex
	sent     []*Frame
	received []*Frame
	results  []error
	elapsed  []time.Duration
}

func (o *recordingObserver) FrameSent(f *Frame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, f)
}

func (o *recordingObserver) FrameReceived(f *Frame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.received = append(o.received, f)
}

func (o *recordingObserver) CommandCompleted(_ uint8, _ uint16, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, err)
	o.elapsed = append(o.elapsed, elapsed)
}

// noiseTransport never goes quiet: every Read fills the whole buffer from
// pattern, repeating it forever. Writes are accepted and dropped.
type noiseTransport struct {
	mu      sync.Mutex
	pattern []byte
	pos     int
	read    uint64
}

func newNoiseTransport(pattern []byte) *noiseTransport {
	return &noiseTransport{pattern: pattern}
}

func (n *noiseTransport) Read(p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := range p {
		p[i] = n.pattern[n.pos]
		n.pos = (n.pos + 1) % len(n.pattern)
	}
	n.read += uint64(len(p))
	return len(p), nil
}

func (n *noiseTransport) Write(p []byte) (int, error) {
	return len(p), nil
}

func (n *noiseTransport) bytesRead() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.read
}

// badChecksumFrame returns a well-formed frame whose checksum is wrong
func badChecksumFrame(t testing.TB) []byte {
	raw := hubFrame(t, 0x02, HostAddress, 7, 7, PacketAck, []byte{0x00})
	raw[len(raw)-1]++
	return raw
}

// finishesWithin runs fn and fails the test if it has not returned by limit
func finishesWithin(t *testing.T, limit time.Duration, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-time.After(limit):
		t.Fatalf("still running after %v", limit)
		return nil
	}
}
