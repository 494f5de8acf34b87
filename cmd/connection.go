// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/rhsp-go/rhsp/pkg/capture"
	"github.com/rhsp-go/rhsp/pkg/metrics"
	"github.com/rhsp-go/rhsp/pkg/rhsp"
	"github.com/rhsp-go/rhsp/pkg/transport"
)

// Connection is a byte link to the hubs that the owner must close
type Connection interface {
	rhsp.Transport
	io.Closer
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("RHSP_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket connection based on settings
func OpenConnection() (Connection, string, error) {
	if cfg.WebSocket.URL != "" {
		password := ""
		if cfg.WebSocket.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		conn, err := transport.DialWebSocket(ctx, cfg.WebSocketTransport(password))
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cfg.WebSocket.URL), nil
	}

	if cfg.Serial.Port != "" {
		conn, err := transport.OpenSerial(cfg.SerialTransport())
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud), nil
	}

	return nil, "", errors.New("either --port or --url must be specified")
}

// linkSession owns an open connection and the observers attached to every
// hub session opened on it.
type linkSession struct {
	conn     Connection
	bus      *rhsp.Bus
	info     string
	stats    *rhsp.Statistics
	recorder *capture.Recorder
	server   *http.Server
	observer rhsp.Observer
}

// openLinkSession connects and wires the capture file, metrics endpoint
// and statistics requested by the settings.
func openLinkSession() (*linkSession, error) {
	conn, info, err := OpenConnection()
	if err != nil {
		return nil, err
	}

	s := &linkSession{
		conn:  conn,
		bus:   rhsp.NewBus(conn),
		info:  info,
		stats: rhsp.NewStatistics(),
	}
	observers := []rhsp.Observer{s.stats}

	if cfg.Capture.Path != "" {
		s.recorder, err = capture.NewRecorder(cfg.Capture.Path)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to open capture file: %w", err)
		}
		log.Info().Str("path", cfg.Capture.Path).Str("session", s.recorder.SessionID()).Msg("capturing frames")
		observers = append(observers, s.recorder)
	}

	if cfg.Metrics.Listen != "" {
		reg := metrics.NewRegistry()
		observers = append(observers, metrics.New(reg, nil))

		s.server = metrics.NewServer(cfg.Metrics.Listen, reg)
		go func() {
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.Metrics.Listen).Msg("metrics server stopped")
			}
		}()
	}

	s.observer = rhsp.MultiObserver(observers...)
	return s, nil
}

func (s *linkSession) options(timeout time.Duration) []rhsp.Option {
	return []rhsp.Option{
		rhsp.WithLogger(log),
		rhsp.WithObserver(s.observer),
		rhsp.WithResponseTimeout(timeout),
		rhsp.WithInterfaceCacheCapacity(cfg.Hub.InterfaceCacheCapacity),
	}
}

// openHub opens a session with the module at address on the shared bus
func (s *linkSession) openHub(address uint8) (*rhsp.Hub, error) {
	return rhsp.Open(s.bus, address, s.options(time.Duration(cfg.Hub.ResponseTimeout))...)
}

// discover runs one discovery broadcast on the shared bus
func (s *linkSession) discover() (*rhsp.DiscoveredAddresses, error) {
	return rhsp.Discover(s.bus, s.options(time.Duration(cfg.Hub.DiscoveryTimeout))...)
}

func (s *linkSession) Close() {
	if s.server != nil {
		s.server.Close()
	}
	if s.recorder != nil {
		if err := s.recorder.Err(); err != nil {
			log.Warn().Err(err).Msg("capture file incomplete")
		}
		s.recorder.Close()
	}
	s.conn.Close()
}

// withHub opens the configured hub for a one-shot command and closes
// everything afterwards.
func withHub(fn func(h *rhsp.Hub) error) error {
	s, err := openLinkSession()
	if err != nil {
		return err
	}
	defer s.Close()

	h, err := s.openHub(cfg.Hub.Address)
	if err != nil {
		return err
	}
	defer h.Close()

	log.Debug().Str("connection", s.info).Uint8("address", cfg.Hub.Address).Msg("hub session opened")
	return fn(h)
}
