// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhsp-go/rhsp/pkg/capture"
	"github.com/rhsp-go/rhsp/pkg/rhsp"
)

var (
	replaySession  string
	replayDir      string
	replayCommands bool
	replaySince    time.Duration
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Print the frames stored in a capture file",
	Long: `Read a capture file written with --capture and print its events.

Frames are shown the same way as the monitor command shows them, prefixed
with their direction. With --commands, transaction outcomes recorded by the
hub session are shown too.

Examples:
  rhsp replay session.cbor
  rhsp replay session.cbor --direction in --session 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replaySession, "session", "", "Only show events from this session ID")
	replayCmd.Flags().StringVar(&replayDir, "direction", "", "Only show frames in this direction (in, out)")
	replayCmd.Flags().BoolVar(&replayCommands, "commands", false, "Include command outcomes")
	replayCmd.Flags().DurationVar(&replaySince, "since", 0, "Only show events newer than this age")
}

func replayFilter() (capture.Filter, error) {
	filter := capture.Filter{SessionID: replaySession}

	switch replayDir {
	case "":
	case "in":
		dir := capture.DirectionIn
		filter.Direction = &dir
	case "out":
		dir := capture.DirectionOut
		filter.Direction = &dir
	default:
		return filter, fmt.Errorf("invalid direction %q (use in or out)", replayDir)
	}

	if !replayCommands && filter.Direction == nil {
		kind := capture.KindFrame
		filter.Kind = &kind
	}

	if replaySince > 0 {
		start := time.Now().Add(-replaySince)
		filter.TimeStart = &start
	}
	return filter, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	filter, err := replayFilter()
	if err != nil {
		return err
	}

	r, err := capture.NewFilteredReader(args[0], filter)
	if err != nil {
		return err
	}
	defer r.Close()

	count := 0
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("capture file %s: event %d: %w", args[0], count+1, err)
		}
		count++
		fmt.Print(formatEvent(event))
	}

	fmt.Printf("\n%d event(s)\n", count)
	return nil
}

func formatEvent(event capture.Event) string {
	switch event.Kind {
	case capture.KindCommand:
		outcome := "OK"
		if event.Error != "" {
			outcome = event.Error
		}
		return fmt.Sprintf("[%s] COMMAND %s to 0x%02X in %s: %s\n",
			event.Timestamp.Format("15:04:05.000"), rhsp.FormatPacketType(event.PacketTypeID),
			event.Address, event.Elapsed.Round(time.Microsecond), outcome)

	default:
		f, err := event.DecodeFrame()
		if err != nil {
			return fmt.Sprintf("[%s] %s corrupt frame: %v\n", event.Timestamp.Format("15:04:05.000"), event.Direction, err)
		}
		return fmt.Sprintf("%-3s %s", event.Direction, rhsp.FormatFrame(f))
	}
}
