// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports RHSP link and transaction counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

// Command result labels
const (
	ResultOK           = "ok"
	ResultTimeout      = "timeout"
	ResultNack         = "nack"
	ResultMismatch     = "mismatch"
	ResultUnexpected   = "unexpected"
	ResultSerial       = "serial"
	ResultNotSupported = "not_supported"
	ResultNoHub        = "no_hub"
	ResultMultipleHubs = "multiple_parents"
	ResultInvalid      = "invalid_argument"
	ResultOther        = "other"
)

type MetricsConfig struct {
	Namespace string
	Subsystem string
}

func DefaultConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace: "rhsp",
		Subsystem: "link",
	}
}

// Metrics is an rhsp.Observer that maintains Prometheus collectors
type Metrics struct {
	reg    prometheus.Registerer
	config *MetricsConfig

	framesSent     *prometheus.CounterVec
	framesRecv     *prometheus.CounterVec
	bytesSent      *prometheus.CounterVec
	bytesRecv      *prometheus.CounterVec
	commands       *prometheus.CounterVec
	commandLatency *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer, config *MetricsConfig) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	met := &Metrics{
		config: config,
		reg:    reg,

		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem, Name: "frames_sent_total", Help: "Frames sent"}, []string{"address"}),
		framesRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem, Name: "frames_received_total", Help: "Frames received"}, []string{"address"}),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem, Name: "bytes_sent_total", Help: "Frame bytes sent"}, []string{"address"}),
		bytesRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem, Name: "bytes_received_total", Help: "Frame bytes received"}, []string{"address"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem, Name: "commands_total", Help: "Completed commands by result"}, []string{"address", "packet_type", "result"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem, Name: "command_duration_seconds", Help: "Command round trip time",
			Buckets: []float64{.0005, .001, .002, .005, .01, .02, .05, .1, .25, .5, 1}}, []string{"address"}),
	}

	reg.MustRegister(met.framesSent, met.framesRecv, met.bytesSent, met.bytesRecv, met.commands, met.commandLatency)
	return met
}

// FrameSent counts an outgoing frame against its destination
func (m *Metrics) FrameSent(f *rhsp.Frame) {
	addr := addressLabel(f.DestAddress())
	m.framesSent.WithLabelValues(addr).Inc()
	m.bytesSent.WithLabelValues(addr).Add(float64(f.Length()))
}

// FrameReceived counts an incoming frame against its source
func (m *Metrics) FrameReceived(f *rhsp.Frame) {
	addr := addressLabel(f.SourceAddress())
	m.framesRecv.WithLabelValues(addr).Inc()
	m.bytesRecv.WithLabelValues(addr).Add(float64(f.Length()))
}

// CommandCompleted records the outcome and latency of one command
func (m *Metrics) CommandCompleted(address uint8, packetTypeID uint16, elapsed time.Duration, err error) {
	addr := addressLabel(address)
	m.commands.WithLabelValues(addr, rhsp.FormatPacketType(packetTypeID), Result(err)).Inc()
	m.commandLatency.WithLabelValues(addr).Observe(elapsed.Seconds())
}

// Result maps a command error to its result label
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, rhsp.ErrResponseTimeout):
		return ResultTimeout
	case errors.Is(err, rhsp.ErrNackReceived):
		return ResultNack
	case errors.Is(err, rhsp.ErrMessageNumberMismatch):
		return ResultMismatch
	case errors.Is(err, rhsp.ErrUnexpectedResponse):
		return ResultUnexpected
	case errors.Is(err, rhsp.ErrSerialPort):
		return ResultSerial
	case errors.Is(err, rhsp.ErrCommandNotSupported):
		return ResultNotSupported
	case errors.Is(err, rhsp.ErrNoHubDiscovered):
		return ResultNoHub
	case errors.Is(err, rhsp.ErrMultipleParentsDetected):
		return ResultMultipleHubs
	case errors.Is(err, rhsp.ErrArgOutOfRange), errors.Is(err, rhsp.ErrNotOpened):
		return ResultInvalid
	default:
		return ResultOther
	}
}

func addressLabel(address uint8) string {
	return fmt.Sprintf("0x%02X", address)
}

// NewRegistry returns a registry with the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	// Add the default go metrics
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(
		reg,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics to support exemplars.
			EnableOpenMetrics: true,
			// Pass custom registry
			Registry: reg,
		},
	)
}

// NewServer returns an HTTP server exposing reg on /metrics at addr
func NewServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

var _ rhsp.Observer = (*Metrics)(nil)
