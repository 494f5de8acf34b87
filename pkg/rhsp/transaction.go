// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import (
	"fmt"
	"time"
)

// SendWriteCommand sends a command that the hub answers with ACK or NACK.
//
// On success the status tells whether the hub flagged that it needs
// attention (the caller should then poll the module status). Failures are
// ErrNotOpened, ErrArgOutOfRange, ErrSerialPort, ErrResponseTimeout,
// ErrMessageNumberMismatch, ErrNackReceived (as *NackError) or
// ErrUnexpectedResponse. Nothing is retried.
func (h *Hub) SendWriteCommand(packetTypeID uint16, payload []byte) (WriteStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendWriteCommand(packetTypeID, payload)
}

// SendReadCommand sends a command that the hub answers with data. The
// response payload is returned; the error taxonomy matches SendWriteCommand.
func (h *Hub) SendReadCommand(packetTypeID uint16, payload []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendReadCommand(packetTypeID, payload)
}

func (h *Hub) sendWriteCommand(packetTypeID uint16, payload []byte) (WriteStatus, error) {
	start := time.Now()

	status := WriteOK
	frame, err := h.sendCommand(packetTypeID, payload)
	if err == nil {
		status, err = validateWriteCommand(frame)
	}

	h.observer.CommandCompleted(h.address, packetTypeID, time.Since(start), err)
	return status, err
}

func (h *Hub) sendReadCommand(packetTypeID uint16, payload []byte) ([]byte, error) {
	start := time.Now()

	var data []byte
	frame, err := h.sendCommand(packetTypeID, payload)
	if err == nil {
		data, err = validateReadCommand(packetTypeID, frame)
	}

	h.observer.CommandCompleted(h.address, packetTypeID, time.Since(start), err)
	return data, err
}

// sendCommand runs one request/response exchange and returns the response
// frame once it is known to answer this request.
func (h *Hub) sendCommand(packetTypeID uint16, payload []byte) (*Frame, error) {
	if !h.opened || h.transport == nil {
		return nil, ErrNotOpened
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload too large: %d bytes (max %d)", ErrArgOutOfRange, len(payload), MaxPayloadSize)
	}

	unlock := lockTransport(h.transport)
	defer unlock()

	purged, err := purgeInput(h.transport)
	if err != nil {
		return nil, err
	}
	if purged > 0 && h.log != nil {
		h.log.Debug().Uint8("address", h.address).Int("bytes", purged).Msg("purged stale input")
	}

	sent, err := h.transmit(packetTypeID, payload)
	if err != nil {
		return nil, err
	}

	frame, err := h.receive()
	if err != nil {
		return nil, err
	}

	// The hub echoes the request's message number as the response's reference number
	if frame.ReferenceNumber() != sent {
		return nil, fmt.Errorf("%w: sent message %d, response references %d", ErrMessageNumberMismatch, sent, frame.ReferenceNumber())
	}

	return frame, nil
}

// transmit encodes and writes one request. The message number advances
// only after the write succeeded, whether or not a response follows.
func (h *Hub) transmit(packetTypeID uint16, payload []byte) (uint8, error) {
	messageNumber := h.messageNumber

	buf, err := AppendFrame(h.txBuffer[:0], h.address, messageNumber, 0, packetTypeID, payload)
	if err != nil {
		return 0, err
	}
	h.txBuffer = buf

	if err := writeAll(h.transport, buf); err != nil {
		return 0, err
	}
	h.advanceMessageNumber()

	if h.log != nil {
		h.log.Trace().
			Uint8("dest", h.address).
			Uint8("msg", messageNumber).
			Uint32("packet_type", uint32(packetTypeID)).
			Int("payload_length", len(payload)).
			Msg("frame sent")
	}
	h.observer.FrameSent(NewFrame(h.address, messageNumber, 0, packetTypeID, append([]byte(nil), payload...)))

	return messageNumber, nil
}

// receive polls the decoder until one frame is ready, the transport fails,
// or the response timeout elapses.
func (h *Hub) receive() (*Frame, error) {
	h.decoder.Reset()
	start := h.clock.NowMs()

	for {
		status, err := h.decoder.Poll(h.transport)
		if err != nil {
			return nil, &SerialPortError{Op: "read", Err: err}
		}

		if status == DecodeFrameReady {
			frame := h.decoder.Frame()
			if h.log != nil {
				h.log.Trace().
					Uint8("src", frame.SourceAddress()).
					Uint8("dest", frame.DestAddress()).
					Uint8("msg", frame.MessageNumber()).
					Uint8("ref", frame.ReferenceNumber()).
					Uint32("packet_type", uint32(frame.PacketTypeID())).
					Int("payload_length", len(frame.Payload())).
					Msg("frame received")
			}
			h.observer.FrameReceived(frame)
			return frame, nil
		}

		// Wrapping subtraction keeps this correct across clock rollover
		if h.responseTimeoutMs != 0 && h.clock.NowMs()-start >= h.responseTimeoutMs {
			return nil, ErrResponseTimeout
		}
	}
}

// validateWriteCommand classifies an ACK/NACK style response
func validateWriteCommand(f *Frame) (WriteStatus, error) {
	payload := f.Payload()

	switch f.PacketTypeID() {
	case PacketAck:
		if len(payload) > 0 && payload[0] != 0 {
			return WriteAttentionRequired, nil
		}
		return WriteOK, nil

	case PacketNack:
		return WriteOK, nackFromPayload(payload)

	default:
		return WriteOK, fmt.Errorf("%w: packet type 0x%04X to a write command", ErrUnexpectedResponse, f.PacketTypeID())
	}
}

// validateReadCommand classifies a data style response to sentID
func validateReadCommand(sentID uint16, f *Frame) ([]byte, error) {
	switch {
	case f.IsResponseTo(sentID):
		return f.Payload(), nil

	case f.PacketTypeID() == PacketNack:
		return nil, nackFromPayload(f.Payload())

	default:
		return nil, fmt.Errorf("%w: packet type 0x%04X to read command 0x%04X", ErrUnexpectedResponse, f.PacketTypeID(), sentID)
	}
}

func nackFromPayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: NACK without reason code", ErrUnexpectedResponse)
	}
	return &NackError{Reason: NackReason(payload[0])}
}
