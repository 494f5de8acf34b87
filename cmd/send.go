// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

var sendRead bool

var sendCmd = &cobra.Command{
	Use:   "send <packet-id> [hex-payload]",
	Short: "Send a raw command to the hub",
	Long: `Send one command frame and wait for the hub's reply.

Without --read the command is a write command: the hub is expected to ACK
(or NACK) it. With --read the hub is expected to answer with the response
packet for the given ID, and its payload is printed.

The payload is given as hex; spaces and colons are ignored.

Examples:
  rhsp send 0x7F04 --port /dev/ttyUSB0
  rhsp send 0x7F0A "ff 00 00" --port /dev/ttyUSB0
  rhsp send 0x7F0B --read --port /dev/ttyUSB0`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVarP(&sendRead, "read", "r", false, "Treat as a read command and print the response payload")
}

func runSend(cmd *cobra.Command, args []string) error {
	id, err := parsePacketID(args[0])
	if err != nil {
		return err
	}

	var payload []byte
	if len(args) == 2 {
		payload, err = parseHexPayload(args[1])
		if err != nil {
			return err
		}
	}

	return withHub(func(h *rhsp.Hub) error {
		if sendRead {
			resp, err := h.SendReadCommand(id, payload)
			if err != nil {
				return describeCommandError(rhsp.FormatPacketType(id), err)
			}
			fmt.Printf("%s: %d byte response\n", rhsp.FormatPacketType(id), len(resp))
			if len(resp) > 0 {
				fmt.Print(rhsp.FormatHexDump(resp))
			}
			return nil
		}

		status, err := h.SendWriteCommand(id, payload)
		if err != nil {
			return describeCommandError(rhsp.FormatPacketType(id), err)
		}
		fmt.Printf("%s: %s\n", rhsp.FormatPacketType(id), status)
		return nil
	})
}

// parsePacketID accepts decimal or 0x-prefixed hex
func parsePacketID(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid packet ID %q: %w", s, err)
	}
	return uint16(v), nil
}

// parseHexPayload decodes hex bytes, ignoring spaces, colons and a 0x prefix
func parseHexPayload(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(s)

	payload, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	if len(payload) > rhsp.MaxPayloadSize {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", len(payload), rhsp.MaxPayloadSize)
	}
	return payload, nil
}

// describeCommandError adds the NACK reason name when the hub refused a command
func describeCommandError(what string, err error) error {
	if reason, ok := rhsp.NackReasonOf(err); ok {
		return fmt.Errorf("%s: NACK %d (%s)", what, uint8(reason), reason)
	}
	return fmt.Errorf("%s: %w", what, err)
}
