// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round-trip time to a hub with KEEP_ALIVE",
	Long: `Send KEEP_ALIVE to the hub and wait for each ACK.

Each transaction is timed from the first byte written to the matching ACK.
Replies that arrive after the response timeout count as lost.

This is useful for verifying:
  - The hub at --address is powered and reachable
  - A WebSocket bridge forwards traffic in both directions
  - The response timeout suits the link latency

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

// pingSummary accumulates the outcome of a ping run
type pingSummary struct {
	sent     int
	received int
	min      time.Duration
	max      time.Duration
	total    time.Duration
}

func (p *pingSummary) add(rtt time.Duration, err error) {
	p.sent++
	if err != nil {
		return
	}
	p.received++
	p.total += rtt
	if p.min == 0 || rtt < p.min {
		p.min = rtt
	}
	if rtt > p.max {
		p.max = rtt
	}
}

func (p *pingSummary) loss() float64 {
	if p.sent == 0 {
		return 0
	}
	return float64(p.sent-p.received) / float64(p.sent) * 100
}

func (p *pingSummary) String() string {
	s := fmt.Sprintf("%d pings sent, %d responses received, %.0f%% packet loss", p.sent, p.received, p.loss())
	if p.received > 0 {
		avg := p.total / time.Duration(p.received)
		s += fmt.Sprintf("\nrtt min/avg/max = %v/%v/%v",
			p.min.Round(time.Microsecond), avg.Round(time.Microsecond), p.max.Round(time.Microsecond))
	}
	return s
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount <= 0 {
		return fmt.Errorf("--count must be positive")
	}

	s, err := openLinkSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	h, err := s.openHub(cfg.Hub.Address)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		s.Close()
		os.Exit(2)
	}
	defer h.Close()

	fmt.Printf("rhsp - Ping\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Hub: 0x%02X, timeout %s\n\n", cfg.Hub.Address, h.ResponseTimeout())

	var summary pingSummary
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		status, err := h.KeepAlive()
		rtt := time.Since(start)
		summary.add(rtt, err)

		switch {
		case err != nil:
			fmt.Printf("FAILED: %v\n", describeCommandError("KEEP_ALIVE", err))
		case status == rhsp.WriteAttentionRequired:
			fmt.Printf("ACK (attention required), rtt=%v\n", rtt.Round(time.Microsecond))
		default:
			fmt.Printf("ACK, rtt=%v\n", rtt.Round(time.Microsecond))
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Println(summary.String())

	if summary.received < summary.sent {
		h.Close()
		s.Close()
		os.Exit(1)
	}
	return nil
}
