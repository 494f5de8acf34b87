// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks link and transaction counters and their rates. It is an
// Observer, so it can be attached to a session directly; decoder counters
// are folded in with SetDecoderStats.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Link counters
	FramesSent     uint64
	FramesReceived uint64
	ChecksumErrors uint64
	LengthErrors   uint64
	DiscardedBytes uint64

	// Transaction counters
	Commands          uint64
	CommandErrors     uint64
	Timeouts          uint64
	Nacks             uint64
	Mismatches        uint64
	UnexpectedReplies uint64
	TotalLatency      time.Duration

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// FrameSent counts an outgoing frame
func (s *Statistics) FrameSent(*Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FramesSent++
	s.LastUpdateTime = time.Now()
}

// FrameReceived counts an incoming frame
func (s *Statistics) FrameReceived(*Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FramesReceived++
	s.LastUpdateTime = time.Now()
}

// CommandCompleted classifies one transaction outcome
func (s *Statistics) CommandCompleted(_ uint8, _ uint16, elapsed time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Commands++
	s.TotalLatency += elapsed
	s.LastUpdateTime = time.Now()

	if err == nil {
		return
	}
	s.CommandErrors++

	switch {
	case errors.Is(err, ErrResponseTimeout):
		s.Timeouts++
	case errors.Is(err, ErrNackReceived):
		s.Nacks++
	case errors.Is(err, ErrMessageNumberMismatch):
		s.Mismatches++
	case errors.Is(err, ErrUnexpectedResponse):
		s.UnexpectedReplies++
	}
}

// SetDecoderStats replaces the framing counters with a decoder snapshot
func (s *Statistics) SetDecoderStats(d DecoderStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ChecksumErrors = d.ChecksumErrors
	s.LengthErrors = d.LengthErrors
	s.DiscardedBytes = d.DiscardedBytes
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.FramesSent+s.FramesReceived) / elapsed
		errorCount := s.ChecksumErrors + s.LengthErrors + s.CommandErrors
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// AverageLatency returns the mean transaction time
func (s *Statistics) AverageLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Commands == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Commands)
}

// Summary is a point-in-time copy of the headline counters
type Summary struct {
	FramesSent     uint64
	FramesReceived uint64
	FramingErrors  uint64
	Commands       uint64
	CommandErrors  uint64
	AverageLatency time.Duration
	FrameRate      float64
	ErrorRate      float64
}

// Summary recalculates rates and returns a copy safe to use without the lock
func (s *Statistics) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calculateRates()
	sum := Summary{
		FramesSent:     s.FramesSent,
		FramesReceived: s.FramesReceived,
		FramingErrors:  s.ChecksumErrors + s.LengthErrors,
		Commands:       s.Commands,
		CommandErrors:  s.CommandErrors,
		FrameRate:      s.FrameRate,
		ErrorRate:      s.ErrorRate,
	}
	if s.Commands > 0 {
		sum.AverageLatency = s.TotalLatency / time.Duration(s.Commands)
	}
	return sum
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calculateRates()

	var errorPercent float64
	if s.Commands > 0 {
		errorPercent = float64(s.CommandErrors) * 100.0 / float64(s.Commands)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Sent:     %8d\n", s.FramesSent)
	result += fmt.Sprintf("Frames Received: %8d\n", s.FramesReceived)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", s.ChecksumErrors)
	}
	if s.LengthErrors > 0 {
		result += fmt.Sprintf("Length Errors:   %8d\n", s.LengthErrors)
	}
	if s.DiscardedBytes > 0 {
		result += fmt.Sprintf("Discarded Bytes: %8d\n", s.DiscardedBytes)
	}

	if s.Commands > 0 {
		result += fmt.Sprintf("Commands:        %8d\n", s.Commands)
		result += fmt.Sprintf("Command Errors:  %8d (%.1f%%)\n", s.CommandErrors, errorPercent)
		if s.Timeouts > 0 {
			result += fmt.Sprintf("  Timeouts:         %5d\n", s.Timeouts)
		}
		if s.Nacks > 0 {
			result += fmt.Sprintf("  NACKs:            %5d\n", s.Nacks)
		}
		if s.Mismatches > 0 {
			result += fmt.Sprintf("  Msg# Mismatches:  %5d\n", s.Mismatches)
		}
		if s.UnexpectedReplies > 0 {
			result += fmt.Sprintf("  Unexpected:       %5d\n", s.UnexpectedReplies)
		}
		result += fmt.Sprintf("Avg Latency:     %8s\n", (s.TotalLatency / time.Duration(s.Commands)).Round(time.Microsecond))
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.FramesSent = 0
	s.FramesReceived = 0
	s.ChecksumErrors = 0
	s.LengthErrors = 0
	s.DiscardedBytes = 0
	s.Commands = 0
	s.CommandErrors = 0
	s.Timeouts = 0
	s.Nacks = 0
	s.Mismatches = 0
	s.UnexpectedReplies = 0
	s.TotalLatency = 0
	s.FrameRate = 0
	s.ErrorRate = 0
}

var _ Observer = (*Statistics)(nil)
