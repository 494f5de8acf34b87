// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

var statusClear bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read the module status word",
	Long: `Read the module status and motor alert bits from the hub.

With --clear the hub resets its latched status bits after reporting them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHub(func(h *rhsp.Hub) error {
			status, err := h.GetModuleStatus(statusClear)
			if err != nil {
				return describeCommandError("status", err)
			}
			fmt.Printf("Module 0x%02X: %s\n", h.Address(), rhsp.FormatModuleStatus(status))
			return nil
		})
	},
}

var keepAliveCmd = &cobra.Command{
	Use:   "keepalive",
	Short: "Send a keep-alive to the hub",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWriteCommand("keepalive", (*rhsp.Hub).KeepAlive)
	},
}

var failSafeCmd = &cobra.Command{
	Use:   "failsafe",
	Short: "Put the hub's outputs into their fail-safe state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWriteCommand("failsafe", (*rhsp.Hub).FailSafe)
	},
}

var ledCmd = &cobra.Command{
	Use:   "led [r g b]",
	Short: "Read or set the module LED colour",
	Long: `Without arguments the current LED colour is read back. With three
component values (0-255, decimal or 0x hex) the colour is set.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 3 {
			return fmt.Errorf("expected no arguments or r g b, got %d", len(args))
		}
		return nil
	},
	RunE: runLED,
}

var setAddressCmd = &cobra.Command{
	Use:   "set-address <address>",
	Short: "Assign a new module address to the hub",
	Long: `Change the hub's module address. The session follows the hub to its
new address, so later commands in the same run reach it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseByte(args[0])
		if err != nil {
			return err
		}
		return withHub(func(h *rhsp.Hub) error {
			old := h.Address()
			status, err := h.SetNewModuleAddress(addr)
			if err != nil {
				return describeCommandError("set-address", err)
			}
			fmt.Printf("Module 0x%02X -> 0x%02X: %s\n", old, h.Address(), status)
			return nil
		})
	},
}

var logLevelCmd = &cobra.Command{
	Use:   "log-level <group> <verbosity>",
	Short: "Set the hub firmware's debug log verbosity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := parseByte(args[0])
		if err != nil {
			return err
		}
		verbosity, err := parseByte(args[1])
		if err != nil {
			return err
		}
		return runWriteCommand("log-level", func(h *rhsp.Hub) (rhsp.WriteStatus, error) {
			return h.SetDebugLogLevel(group, verbosity)
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, keepAliveCmd, failSafeCmd, ledCmd, setAddressCmd, logLevelCmd)
	statusCmd.Flags().BoolVar(&statusClear, "clear", false, "Clear latched status bits")
}

func runWriteCommand(what string, fn func(*rhsp.Hub) (rhsp.WriteStatus, error)) error {
	return withHub(func(h *rhsp.Hub) error {
		status, err := fn(h)
		if err != nil {
			return describeCommandError(what, err)
		}
		fmt.Printf("%s: %s\n", what, status)
		return nil
	})
}

func runLED(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return withHub(func(h *rhsp.Hub) error {
			r, g, b, err := h.GetModuleLEDColor()
			if err != nil {
				return describeCommandError("led", err)
			}
			fmt.Printf("LED: #%02X%02X%02X (r=%d g=%d b=%d)\n", r, g, b, r, g, b)
			return nil
		})
	}

	rgb, err := parseRGB(args)
	if err != nil {
		return err
	}
	return runWriteCommand("led", func(h *rhsp.Hub) (rhsp.WriteStatus, error) {
		return h.SetModuleLEDColor(rgb[0], rgb[1], rgb[2])
	})
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: must be 0-255", s)
	}
	return uint8(v), nil
}

func parseRGB(parts []string) ([3]uint8, error) {
	var rgb [3]uint8
	if len(parts) != 3 {
		return rgb, fmt.Errorf("expected 3 colour components, got %d", len(parts))
	}
	for i, p := range parts {
		v, err := parseByte(p)
		if err != nil {
			return rgb, err
		}
		rgb[i] = v
	}
	return rgb, nil
}
