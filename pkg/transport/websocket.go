// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConfig describes a serial-over-WebSocket bridge endpoint
type WebSocketConfig struct {
	URL                string
	Username           string
	Password           string
	InsecureSkipVerify bool
	ReadSlice          time.Duration
	HandshakeTimeout   time.Duration
}

// WebSocket carries the RHSP byte stream in binary WebSocket messages.
//
// gorilla/websocket connections cannot be read with a deadline without
// breaking them, so a reader goroutine owns ReadMessage and Read waits on
// its channel for at most one read slice.
type WebSocket struct {
	conn      *websocket.Conn
	readSlice time.Duration

	messages chan []byte
	done     chan struct{}

	errMu   sync.Mutex
	readErr error

	buf []byte

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialWebSocket opens a WebSocket connection with optional HTTP Basic auth
func DialWebSocket(ctx context.Context, cfg WebSocketConfig) (*WebSocket, error) {
	// Parse and validate URL
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshake,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		headers.Set("Authorization", "Basic "+basicAuth(cfg.Username, cfg.Password))
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocket(conn, cfg.ReadSlice), nil
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

func newWebSocket(conn *websocket.Conn, readSlice time.Duration) *WebSocket {
	if readSlice <= 0 {
		readSlice = DefaultReadSlice
	}
	w := &WebSocket{
		conn:      conn,
		readSlice: readSlice,
		messages:  make(chan []byte, 64),
		done:      make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocket) readLoop() {
	defer close(w.messages)

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.errMu.Lock()
			w.readErr = err
			w.errMu.Unlock()
			return
		}

		// Only binary messages carry protocol bytes
		if messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.messages <- data:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocket) Read(p []byte) (int, error) {
	// If we have buffered data, return it first
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}

	timer := time.NewTimer(w.readSlice)
	defer timer.Stop()

	select {
	case data, ok := <-w.messages:
		if !ok {
			return 0, w.closedErr()
		}
		n := copy(p, data)
		w.buf = data[n:]
		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

func (w *WebSocket) closedErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.readErr != nil {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, w.readErr)
	}
	return ErrConnectionClosed
}

func (w *WebSocket) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ResetInputBuffer drops every message received but not yet read
func (w *WebSocket) ResetInputBuffer() error {
	w.buf = nil
	for {
		select {
		case _, ok := <-w.messages:
			if !ok {
				return w.closedErr()
			}
		default:
			return nil
		}
	}
}

func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}
