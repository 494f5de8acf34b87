// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import "time"

// Observer receives protocol events from a hub session or a discovery run.
// Implementations are called synchronously on the transaction path and
// should return quickly.
type Observer interface {
	FrameSent(f *Frame)
	FrameReceived(f *Frame)
	CommandCompleted(address uint8, packetTypeID uint16, elapsed time.Duration, err error)
}

// NopObserver discards all events
type NopObserver struct{}

func (NopObserver) FrameSent(*Frame)                                     {}
func (NopObserver) FrameReceived(*Frame)                                 {}
func (NopObserver) CommandCompleted(uint8, uint16, time.Duration, error) {}

type multiObserver []Observer

// MultiObserver fans events out to every non-nil observer
func MultiObserver(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) FrameSent(f *Frame) {
	for _, o := range m {
		o.FrameSent(f)
	}
}

func (m multiObserver) FrameReceived(f *Frame) {
	for _, o := range m {
		o.FrameReceived(f)
	}
}

func (m multiObserver) CommandCompleted(address uint8, packetTypeID uint16, elapsed time.Duration, err error) {
	for _, o := range m {
		o.CommandCompleted(address, packetTypeID, elapsed, err)
	}
}

var (
	_ Observer = NopObserver{}
	_ Observer = multiObserver(nil)
)
