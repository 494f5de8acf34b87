// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rhsp-go/rhsp/pkg/rhsp"
	"github.com/rhsp-go/rhsp/pkg/transport"
)

var (
	statsInterval int
	monitorTUI    bool
	monitorQuiet  bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Passively decode and display frames on the link",
	Long: `Continuously decode and display RHSP frames as they arrive, without
sending anything.

Each frame is shown with timestamp, packet type, addresses, message and
reference numbers and decoded payload. Framing problems (checksum failures,
bad length fields, resync noise) are counted and summarised at the
statistics interval.

Supports both serial and WebSocket connections. With --capture, every
decoded frame is appended to the capture file.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Use terminal UI")
	monitorCmd.Flags().BoolVarP(&monitorQuiet, "quiet", "q", false, "Only print statistics (text mode)")
}

// frameMsg carries one decoded frame, or the decoder counters after a
// framing fault, into the TUI
type frameMsg struct {
	frame *rhsp.Frame
	stats rhsp.DecoderStats
}

type linkClosedMsg struct{}

func runMonitor(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive")
	}

	s, err := openLinkSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if monitorTUI {
		return runMonitorTUI(s)
	}
	return runMonitorText(s)
}

// pollFrames decodes frames from the link until stop is closed or the link
// fails permanently. Every frame goes to the session observers before fn.
func pollFrames(s *linkSession, stop <-chan struct{}, fn func(*rhsp.Frame, rhsp.DecoderStats)) error {
	decoder := rhsp.NewDecoder()
	var lastFaults uint64

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		status, err := decoder.Poll(s.conn)
		if err != nil {
			if errors.Is(err, transport.ErrConnectionClosed) {
				return err
			}
			log.Warn().Err(err).Msg("read error")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		stats := decoder.Stats()
		if status == rhsp.DecodeFrameReady {
			f := decoder.Frame()
			s.observer.FrameReceived(f)
			fn(f, stats)
			continue
		}

		// Report framing faults as they happen, not only with the next frame
		if faults := stats.ChecksumErrors + stats.LengthErrors; faults != lastFaults {
			lastFaults = faults
			fn(nil, stats)
		}
	}
}

func runMonitorText(s *linkSession) error {
	fmt.Printf("rhsp - Link Monitor\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	synchronized := false
	var lastStats rhsp.DecoderStats

	done := make(chan error, 1)
	frames := make(chan frameMsg, 64)
	go func() {
		done <- pollFrames(s, stop, func(f *rhsp.Frame, stats rhsp.DecoderStats) {
			select {
			case frames <- frameMsg{frame: f, stats: stats}:
			case <-stop:
			}
		})
	}()

	for {
		select {
		case msg := <-frames:
			s.stats.SetDecoderStats(msg.stats)
			if msg.frame == nil {
				if synchronized {
					printFramingFaults(lastStats, msg.stats)
				}
				lastStats = msg.stats
				continue
			}
			if !synchronized {
				synchronized = true
				if msg.stats.DiscardedBytes > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", msg.stats.DiscardedBytes)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}
			lastStats = msg.stats
			if !monitorQuiet {
				fmt.Print(rhsp.FormatFrame(msg.frame))
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(s.stats.String())
			fmt.Println()

		case err := <-done:
			if errors.Is(err, transport.ErrConnectionClosed) {
				fmt.Printf("Connection closed\n")
				return nil
			}
			return err

		case <-sig:
			close(stop)
			<-done
			fmt.Println()
			fmt.Print(s.stats.String())
			return nil
		}
	}
}

func printFramingFaults(prev, cur rhsp.DecoderStats) {
	if n := cur.ChecksumErrors - prev.ChecksumErrors; n > 0 {
		fmt.Printf("[ERROR] %d frame(s) failed checksum\n", n)
	}
	if n := cur.LengthErrors - prev.LengthErrors; n > 0 {
		fmt.Printf("[ERROR] %d frame(s) with invalid length field\n", n)
	}
}

func runMonitorTUI(s *linkSession) error {
	m := initialMonitorModel(s.info, s.stats)
	p := tea.NewProgram(m)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := pollFrames(s, stop, func(f *rhsp.Frame, stats rhsp.DecoderStats) {
			p.Send(frameMsg{frame: f, stats: stats})
		})
		if err != nil {
			p.Send(linkClosedMsg{})
		}
	}()

	_, err := p.Run()
	close(stop)
	<-done
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
