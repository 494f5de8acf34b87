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

var packetTestTimeout int

var packetTestCmd = &cobra.Command{
	Use:   "packet-test",
	Short: "Test connection by waiting for a valid RHSP frame",
	Long: `Wait for a valid RHSP frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
frame without sending anything. It ignores invalid bytes and waits for a
complete frame that passes its checksum.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing connectivity to a bus that already carries traffic, or to
a WebSocket serial bridge.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "wait", 10, "Seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	s, err := openLinkSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	fmt.Printf("rhsp - Packet Test\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid RHSP frame...\n\n")

	stop := make(chan struct{})
	frames := make(chan frameMsg, 1)
	errChan := make(chan error, 1)

	go func() {
		err := pollFrames(s, stop, func(f *rhsp.Frame, stats rhsp.DecoderStats) {
			if f == nil {
				return
			}
			select {
			case frames <- frameMsg{frame: f, stats: stats}:
			default:
			}
		})
		if err != nil {
			errChan <- err
		}
	}()
	defer close(stop)

	select {
	case msg := <-frames:
		f := msg.frame
		if msg.stats.DiscardedBytes > 0 {
			fmt.Printf("(skipped %d invalid bytes before sync)\n", msg.stats.DiscardedBytes)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%04X)\n", rhsp.FormatPacketType(f.PacketTypeID()), f.PacketTypeID())
		fmt.Printf("  Source: 0x%02X  Dest: 0x%02X\n", f.SourceAddress(), f.DestAddress())
		fmt.Printf("  Length: %d bytes\n", f.Length())
		fmt.Printf("  Checksum: 0x%02X\n", f.Checksum())
		return nil

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		s.Close()
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		s.Close()
		os.Exit(1)
	}

	return nil
}
