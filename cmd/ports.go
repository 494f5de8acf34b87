// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhsp-go/rhsp/pkg/transport"
)

var portsCmd = &cobra.Command{
	Use:               "ports",
	Short:             "List serial ports",
	Args:              cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range ports {
			if p.IsUSB {
				fmt.Printf("%-20s USB %s:%s %s %s\n", p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
			} else {
				fmt.Printf("%s\n", p.Name)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
