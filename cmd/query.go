// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

var queryCmd = &cobra.Command{
	Use:   "query <interface> [function]",
	Short: "Resolve an interface's packet ID range",
	Long: `Ask the hub for the packet ID range of a named interface.

With a function number, the packet ID for that function is printed instead.
Function numbers beyond the interface's range are reported as not supported
without querying the hub again.

Examples:
  rhsp query DEKA --port /dev/ttyUSB0
  rhsp query DEKA 12 --port /dev/ttyUSB0`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	name := args[0]

	var function uint16
	if len(args) == 2 {
		fn, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			return fmt.Errorf("invalid function number %q: %w", args[1], err)
		}
		function = uint16(fn)
	}

	return withHub(func(h *rhsp.Hub) error {
		if len(args) == 2 {
			id, err := h.GetInterfacePacketID(name, function)
			if err != nil {
				return fmt.Errorf("%s function %d: %w", name, function, err)
			}
			fmt.Printf("%s[%d] = 0x%04X\n", name, function, id)
			return nil
		}

		r, err := h.QueryInterface(name)
		if err != nil {
			return fmt.Errorf("query %s: %w", name, err)
		}
		printInterfaceRange(r)
		return nil
	})
}

func printInterfaceRange(r rhsp.InterfaceRange) {
	fmt.Printf("Interface:      %s\n", r.Name)
	fmt.Printf("First packet:   0x%04X\n", r.FirstPacketID)
	fmt.Printf("Packet count:   %d\n", r.NumberIDValues)
	if r.NumberIDValues > 0 {
		last, _ := r.PacketID(r.NumberIDValues - 1)
		fmt.Printf("Last packet:    0x%04X\n", last)
	}
}
