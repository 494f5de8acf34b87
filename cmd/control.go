// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

var pollInterval time.Duration

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for monitoring and controlling hubs",
	Long: `Control REV hubs via an interactive terminal UI.

The TUI discovers the hubs on the bus first, then keeps every hub alive and
polls its module status at the poll interval.

Features:
  - Hub discovery (parent and children)
  - Keep-alive and module status polling
  - LED colour and fail-safe control
  - Statistics tracking
  - Event logging
  - Automatic reconnection on connection loss

Tab switches between the hub list and the control panel. Arrow keys navigate
the hub list. 'd' reruns discovery, 'c' clears the selected hub's latched
status bits.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().DurationVar(&pollInterval, "poll", 2*time.Second, "Keep-alive and status poll interval")
}

// connectionManager handles connection lifecycle, hub sessions and reconnection
type connectionManager struct {
	mu      sync.Mutex
	session *linkSession
	hubs    map[uint8]*rhsp.Hub
	done    chan struct{}
}

func newConnectionManager(s *linkSession) *connectionManager {
	return &connectionManager{
		session: s,
		hubs:    make(map[uint8]*rhsp.Hub),
		done:    make(chan struct{}),
	}
}

func (cm *connectionManager) getHub(address uint8) *rhsp.Hub {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.hubs[address]
}

// closeHubsLocked drops every hub session; callers hold cm.mu
func (cm *connectionManager) closeHubsLocked() {
	for addr, h := range cm.hubs {
		h.Close()
		delete(cm.hubs, addr)
	}
}

// discover reruns discovery and opens a session for every hub found
func (cm *connectionManager) discover() (*rhsp.DiscoveredAddresses, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.closeHubsLocked()
	if cm.session == nil {
		return nil, errors.New("no connection")
	}

	addrs, err := cm.session.discover()
	if addrs == nil {
		return nil, err
	}

	// Children are usable even when the parent is ambiguous
	targets := append([]uint8{}, addrs.Children...)
	if addrs.Parent != 0 {
		targets = append([]uint8{addrs.Parent}, targets...)
	}
	for _, addr := range targets {
		h, openErr := cm.session.openHub(addr)
		if openErr != nil {
			return addrs, openErr
		}
		cm.hubs[addr] = h
	}
	return addrs, err
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() (*linkSession, bool) {
	cm.mu.Lock()
	cm.closeHubsLocked()
	if cm.session != nil {
		cm.session.Close()
		cm.session = nil
	}
	cm.mu.Unlock()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return nil, false
		case <-time.After(backoff):
		}

		s, err := openLinkSession()
		if err == nil {
			cm.mu.Lock()
			cm.session = s
			cm.mu.Unlock()
			return s, true
		}
		log.Debug().Err(err).Str("backoff", backoff.String()).Msg("reconnect failed")

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (cm *connectionManager) close() {
	close(cm.done)

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.closeHubsLocked()
	if cm.session != nil {
		cm.session.Close()
		cm.session = nil
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	if pollInterval <= 0 {
		return fmt.Errorf("--poll must be positive")
	}

	s, err := openLinkSession()
	if err != nil {
		return err
	}

	cm := newConnectionManager(s)
	m := initialControlModel(cm, s.info, s.stats)

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	_, err = p.Run()
	cm.close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

//////////////////////////////////////////////////////////////
// Hub operations (run as tea.Cmd off the UI goroutine)
//////////////////////////////////////////////////////////////

func discoverHubsCmd(cm *connectionManager) tea.Cmd {
	return func() tea.Msg {
		addrs, err := cm.discover()
		return discoveryCompleteMsg{addrs: addrs, err: err}
	}
}

func pollHubsCmd(cm *connectionManager, addresses []uint8, clear bool) tea.Cmd {
	return func() tea.Msg {
		msg := pollResultMsg{results: make([]pollResult, 0, len(addresses))}
		for _, addr := range addresses {
			h := cm.getHub(addr)
			if h == nil {
				continue
			}
			res := pollResult{address: addr}
			if _, err := h.KeepAlive(); err != nil {
				res.err = err
			} else {
				res.status, res.err = h.GetModuleStatus(clear)
			}
			msg.results = append(msg.results, res)

			ds := h.DecoderStats()
			msg.decoder.FramesDecoded += ds.FramesDecoded
			msg.decoder.ChecksumErrors += ds.ChecksumErrors
			msg.decoder.LengthErrors += ds.LengthErrors
			msg.decoder.DiscardedBytes += ds.DiscardedBytes
		}
		return msg
	}
}

func hubWriteCmd(cm *connectionManager, what string, address uint8, fn func(*rhsp.Hub) (rhsp.WriteStatus, error)) tea.Cmd {
	return func() tea.Msg {
		h := cm.getHub(address)
		if h == nil {
			return commandResultMsg{what: what, address: address, err: rhsp.ErrNotOpened}
		}
		status, err := fn(h)
		return commandResultMsg{what: what, address: address, status: status, err: err}
	}
}

func reconnectCmd(cm *connectionManager) tea.Cmd {
	return func() tea.Msg {
		s, ok := cm.reconnect()
		if !ok {
			return nil
		}
		return reconnectedMsg{connInfo: s.info, stats: s.stats}
	}
}

// isLinkFailure reports whether err means the transport itself is gone
func isLinkFailure(err error) bool {
	return errors.Is(err, rhsp.ErrSerialPort)
}
