// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhsp-go/rhsp/internal/config"
	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

var discoverWindow time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover the hubs on the bus",
	Long: `Broadcast a DISCOVERY request and collect the responses.

Every hub on the bus answers with its address. Exactly one of them reports
itself as the parent (the hub wired to this host); the others are children
reached through it. Responses are collected until the discovery window
passes with no further replies.

Examples:
  rhsp discover --port /dev/ttyUSB0
  rhsp discover --url ws://bridge.local/rhsp --window 1s

Exit codes:
  0 - Discovery successful (exactly one parent)
  1 - Discovery failed (no parent or more than one parent)
  2 - Connection error`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().DurationVar(&discoverWindow, "window", rhsp.DefaultDiscoveryTimeout, "Time to wait for each further response")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("window") {
		cfg.Hub.DiscoveryTimeout = config.Duration(discoverWindow)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	s, err := openLinkSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	fmt.Printf("rhsp - Hub Discovery\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Window: %s\n\n", time.Duration(cfg.Hub.DiscoveryTimeout))

	addrs, err := s.discover()
	if addrs != nil {
		printDiscovered(addrs)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, rhsp.ErrNoHubDiscovered):
		fmt.Printf("No parent hub discovered. Check connection and hub power.\n")
		s.Close()
		os.Exit(1)
	case errors.Is(err, rhsp.ErrMultipleParentsDetected):
		fmt.Printf("More than one hub claims to be the parent: %v\n", err)
		s.Close()
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Discovery error: %v\n", err)
		s.Close()
		os.Exit(2)
	}
	return nil
}

func printDiscovered(addrs *rhsp.DiscoveredAddresses) {
	fmt.Printf("--- Discovery summary ---\n")
	if addrs.Parent != 0 {
		fmt.Printf("Parent:   0x%02X (%d)\n", addrs.Parent, addrs.Parent)
	}
	fmt.Printf("Children: %d\n", addrs.NumChildren())
	for _, child := range addrs.Children {
		fmt.Printf("  0x%02X (%d)\n", child, child)
	}
}
