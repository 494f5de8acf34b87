// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the rhsp CLI configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/loopholelabs/logging/types"
	"gopkg.in/yaml.v3"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
	"github.com/rhsp-go/rhsp/pkg/transport"
)

// Duration is a time.Duration written as a Go duration string ("250ms")
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

type SerialConfig struct {
	Port        string   `yaml:"port"`
	Baud        int      `yaml:"baud"`
	DataBits    int      `yaml:"data_bits"`
	Parity      string   `yaml:"parity"`
	StopBits    string   `yaml:"stop_bits"`
	FlowControl string   `yaml:"flow_control"`
	ReadSlice   Duration `yaml:"read_slice"`
}

type WebSocketConfig struct {
	URL                string `yaml:"url"`
	Username           string `yaml:"username"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type HubConfig struct {
	Address                uint8    `yaml:"address"`
	ResponseTimeout        Duration `yaml:"response_timeout"`
	DiscoveryTimeout       Duration `yaml:"discovery_timeout"`
	InterfaceCacheCapacity int      `yaml:"interface_cache_capacity"`
}

type CaptureConfig struct {
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Hub       HubConfig       `yaml:"hub"`
	Capture   CaptureConfig   `yaml:"capture"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// LoadError describes a configuration file that could not be used
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Baud:        460800,
			DataBits:    8,
			Parity:      "none",
			StopBits:    "1",
			FlowControl: "none",
			ReadSlice:   Duration(transport.DefaultReadSlice),
		},
		Hub: HubConfig{
			Address:          2,
			ResponseTimeout:  Duration(rhsp.DefaultResponseTimeout),
			DiscoveryTimeout: Duration(rhsp.DefaultDiscoveryTimeout),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Parse decodes YAML on top of the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Message: "invalid configuration", Cause: err}
	}
	return cfg, nil
}

// Load reads the file at path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a session
func (c *Config) Validate() error {
	if c.Hub.Address == 0 || c.Hub.Address == rhsp.BroadcastAddress {
		return fmt.Errorf("hub.address %d out of range 1..254", c.Hub.Address)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		return fmt.Errorf("serial.data_bits must be 5..8, got %d", c.Serial.DataBits)
	}
	if _, err := transport.ParseParity(c.Serial.Parity); err != nil {
		return fmt.Errorf("serial.parity: %w", err)
	}
	if _, err := transport.ParseStopBits(c.Serial.StopBits); err != nil {
		return fmt.Errorf("serial.stop_bits: %w", err)
	}
	if err := transport.CheckFlowControl(c.Serial.FlowControl); err != nil {
		return fmt.Errorf("serial.flow_control: %w", err)
	}
	if c.Serial.ReadSlice < 0 {
		return fmt.Errorf("serial.read_slice must not be negative")
	}
	if c.Hub.ResponseTimeout < 0 {
		return fmt.Errorf("hub.response_timeout must not be negative")
	}
	if c.Hub.DiscoveryTimeout <= 0 {
		return fmt.Errorf("hub.discovery_timeout must be positive")
	}
	if c.Hub.InterfaceCacheCapacity < 0 {
		return fmt.Errorf("hub.interface_cache_capacity must not be negative")
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// SerialTransport converts the serial section for transport.OpenSerial
func (c *Config) SerialTransport() transport.SerialConfig {
	return transport.SerialConfig{
		Port:        c.Serial.Port,
		BaudRate:    c.Serial.Baud,
		DataBits:    c.Serial.DataBits,
		Parity:      c.Serial.Parity,
		StopBits:    c.Serial.StopBits,
		FlowControl: c.Serial.FlowControl,
		ReadSlice:   time.Duration(c.Serial.ReadSlice),
	}
}

// WebSocketTransport converts the websocket section for transport.DialWebSocket
func (c *Config) WebSocketTransport(password string) transport.WebSocketConfig {
	return transport.WebSocketConfig{
		URL:                c.WebSocket.URL,
		Username:           c.WebSocket.Username,
		Password:           password,
		InsecureSkipVerify: c.WebSocket.InsecureSkipVerify,
		ReadSlice:          time.Duration(c.Serial.ReadSlice),
	}
}

// ParseLogLevel maps a level name to a logger level
func ParseLogLevel(s string) (types.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return types.TraceLevel, nil
	case "debug":
		return types.DebugLevel, nil
	case "", "info":
		return types.InfoLevel, nil
	case "warn", "warning":
		return types.WarnLevel, nil
	case "error":
		return types.ErrorLevel, nil
	default:
		return types.InfoLevel, fmt.Errorf("log.level: unknown level %q", s)
	}
}
