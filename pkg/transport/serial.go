// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the byte links a hub session runs over: a
// local serial port and a WebSocket bridge to a remote serial port.
//
// Both satisfy rhsp.Transport: Read blocks for at most one read slice and
// returns (0, nil) when nothing arrived, so the transaction engine can keep
// measuring its own response timeout.
package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultReadSlice is how long one Read waits for data
const DefaultReadSlice = 10 * time.Millisecond

// ErrUnsupportedFlowControl is returned for any flow control other than "none"
var ErrUnsupportedFlowControl = errors.New("transport: unsupported flow control")

// SerialConfig describes how to open a serial port
type SerialConfig struct {
	Port        string
	BaudRate    int
	DataBits    int
	Parity      string // none, odd, even, mark, space
	StopBits    string // 1, 1.5, 2
	FlowControl string // none
	ReadSlice   time.Duration
}

// DefaultSerialConfig returns the settings REV hubs use out of the box
func DefaultSerialConfig(port string) SerialConfig {
	return SerialConfig{
		Port:        port,
		BaudRate:    460800,
		DataBits:    8,
		Parity:      "none",
		StopBits:    "1",
		FlowControl: "none",
		ReadSlice:   DefaultReadSlice,
	}
}

// SerialPort wraps a serial port
type SerialPort struct {
	port serial.Port
	name string
}

// OpenSerial opens and configures a serial port
func OpenSerial(cfg SerialConfig) (*SerialPort, error) {
	mode, err := serialMode(cfg)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	slice := cfg.ReadSlice
	if slice <= 0 {
		slice = DefaultReadSlice
	}
	if err := port.SetReadTimeout(slice); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Port, err)
	}

	return &SerialPort{port: port, name: cfg.Port}, nil
}

// serialMode translates a SerialConfig into the driver's mode
func serialMode(cfg SerialConfig) (*serial.Mode, error) {
	if cfg.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", cfg.BaudRate)
	}

	dataBits := cfg.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	if dataBits < 5 || dataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %d", dataBits)
	}

	parity, err := ParseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stopBits, err := ParseStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}
	if err := CheckFlowControl(cfg.FlowControl); err != nil {
		return nil, err
	}

	return &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: dataBits,
		Parity:   parity,
		StopBits: stopBits,
	}, nil
}

// ParseParity maps a parity name to the driver constant. Empty means none.
func ParseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(s) {
	case "", "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "mark", "m":
		return serial.MarkParity, nil
	case "space", "s":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("invalid parity %q", s)
	}
}

// ParseStopBits maps "1", "1.5" or "2" to the driver constant. Empty means 1.
func ParseStopBits(s string) (serial.StopBits, error) {
	switch s {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("invalid stop bits %q", s)
	}
}

// CheckFlowControl accepts only "none" (or empty); the serial driver has no
// hardware handshake setting.
func CheckFlowControl(s string) error {
	switch strings.ToLower(s) {
	case "", "none":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFlowControl, s)
	}
}

func (s *SerialPort) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialPort) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// ResetInputBuffer discards bytes the OS has buffered but not delivered
func (s *SerialPort) ResetInputBuffer() error {
	return s.port.ResetInputBuffer()
}

func (s *SerialPort) Close() error {
	return s.port.Close()
}

// Name returns the port path
func (s *SerialPort) Name() string {
	return s.name
}

// PortInfo describes one serial port found on the system
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts enumerates serial ports, with USB details where the OS has them
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		ports := make([]PortInfo, 0, len(details))
		for _, d := range details {
			ports = append(ports, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
		return ports, nil
	}

	// Fall back to plain names when detailed enumeration is unavailable
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(names))
	for _, name := range names {
		ports = append(ports, PortInfo{Name: name})
	}
	return ports, nil
}
