// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopholelabs/logging/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 460800, cfg.Serial.Baud)
	assert.Equal(t, 8, cfg.Serial.DataBits)
	assert.Equal(t, "none", cfg.Serial.Parity)
	assert.Equal(t, "1", cfg.Serial.StopBits)
	assert.Equal(t, Duration(10*time.Millisecond), cfg.Serial.ReadSlice)
	assert.Equal(t, uint8(2), cfg.Hub.Address)
	assert.Equal(t, Duration(time.Second), cfg.Hub.ResponseTimeout)
	assert.Equal(t, Duration(500*time.Millisecond), cfg.Hub.DiscoveryTimeout)
	assert.Equal(t, 0, cfg.Hub.InterfaceCacheCapacity)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestParse_OverridesDefaults(t *testing.T) {
	data := []byte(`
serial:
  port: /dev/ttyUSB0
  baud: 115200
  read_slice: 5ms
websocket:
  url: ws://bridge.local/serial
  username: admin
hub:
  address: 7
  response_timeout: 250ms
  interface_cache_capacity: 16
capture:
  path: session.cbor
metrics:
  listen: ":9100"
log:
  level: debug
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, "none", cfg.Serial.Parity, "unset fields keep defaults")
	assert.Equal(t, Duration(5*time.Millisecond), cfg.Serial.ReadSlice)
	assert.Equal(t, "ws://bridge.local/serial", cfg.WebSocket.URL)
	assert.Equal(t, uint8(7), cfg.Hub.Address)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.Hub.ResponseTimeout)
	assert.Equal(t, Duration(500*time.Millisecond), cfg.Hub.DiscoveryTimeout)
	assert.Equal(t, 16, cfg.Hub.InterfaceCacheCapacity)
	assert.Equal(t, "session.cbor", cfg.Capture.Path)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)

	sc := cfg.SerialTransport()
	assert.Equal(t, 115200, sc.BaudRate)
	assert.Equal(t, 5*time.Millisecond, sc.ReadSlice)

	wc := cfg.WebSocketTransport("secret")
	assert.Equal(t, "admin", wc.Username)
	assert.Equal(t, "secret", wc.Password)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"address zero", "hub:\n  address: 0\n"},
		{"broadcast address", "hub:\n  address: 255\n"},
		{"zero baud", "serial:\n  baud: 0\n"},
		{"negative baud", "serial:\n  baud: -9600\n"},
		{"data bits", "serial:\n  data_bits: 9\n"},
		{"parity", "serial:\n  parity: sideways\n"},
		{"stop bits", "serial:\n  stop_bits: \"3\"\n"},
		{"flow control", "serial:\n  flow_control: rtscts\n"},
		{"zero discovery timeout", "hub:\n  discovery_timeout: 0s\n"},
		{"bad duration", "hub:\n  response_timeout: soon\n"},
		{"cache capacity", "hub:\n  interface_cache_capacity: -1\n"},
		{"log level", "log:\n  level: loud\n"},
		{"not yaml", "serial: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var le *LoadError
			assert.True(t, errors.As(err, &le))
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("file name in error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("hub:\n  address: 0\n"), 0644))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), path)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rhsp.yaml")
		require.NoError(t, os.WriteFile(path, []byte("hub:\n  address: 3\n"), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, uint8(3), cfg.Hub.Address)
	})
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Default())
	require.NoError(t, err)

	cfg, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want types.Level
	}{
		{"trace", types.TraceLevel},
		{"DEBUG", types.DebugLevel},
		{"", types.InfoLevel},
		{"info", types.InfoLevel},
		{"warn", types.WarnLevel},
		{"warning", types.WarnLevel},
		{"error", types.ErrorLevel},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}
