// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rhsp

import "fmt"

// Module status bits reported by GetModuleStatus
const (
	StatusKeepAliveTimeout   uint8 = 0x01
	StatusDeviceReset        uint8 = 0x02
	StatusFailSafe           uint8 = 0x04
	StatusControllerOverTemp uint8 = 0x08
	StatusBatteryLow         uint8 = 0x10
	StatusHIBFault           uint8 = 0x20
)

// MaxDebugVerbosity is the highest verbosity SetDebugLogLevel accepts
const MaxDebugVerbosity = 3

// ModuleStatus is the response to GetModuleStatus
type ModuleStatus struct {
	StatusWord  uint8
	MotorAlerts uint8
}

// Has reports whether every bit in mask is set in the status word
func (s ModuleStatus) Has(mask uint8) bool {
	return s.StatusWord&mask == mask
}

// GetModuleStatus reads the status word and motor alerts, optionally
// clearing the latched bits.
func (h *Hub) GetModuleStatus(clear bool) (ModuleStatus, error) {
	var flag byte
	if clear {
		flag = 1
	}

	data, err := h.SendReadCommand(PacketGetModuleStatus, []byte{flag})
	if err != nil {
		return ModuleStatus{}, err
	}
	if len(data) < 2 {
		return ModuleStatus{}, fmt.Errorf("%w: module status response of %d bytes", ErrUnexpectedResponse, len(data))
	}
	return ModuleStatus{StatusWord: data[0], MotorAlerts: data[1]}, nil
}

// KeepAlive resets the hub's keep-alive watchdog
func (h *Hub) KeepAlive() (WriteStatus, error) {
	return h.SendWriteCommand(PacketKeepAlive, nil)
}

// FailSafe puts the hub's outputs into their safe state
func (h *Hub) FailSafe() (WriteStatus, error) {
	return h.SendWriteCommand(PacketFailSafe, nil)
}

// SetNewModuleAddress assigns the hub a new address. On success the session
// follows the hub to its new address and the interface cache is dropped.
func (h *Hub) SetNewModuleAddress(address uint8) (WriteStatus, error) {
	if address == HostAddress || address == BroadcastAddress {
		return WriteOK, fmt.Errorf("%w: invalid hub address 0x%02X", ErrArgOutOfRange, address)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	status, err := h.sendWriteCommand(PacketSetNewModuleAddress, []byte{address})
	if err != nil {
		return status, err
	}

	if h.log != nil {
		h.log.Info().Uint8("old_address", h.address).Uint8("new_address", address).Msg("hub address changed")
	}
	h.address = address
	h.interfaces = make(map[string]InterfaceRange)
	return status, nil
}

// SetModuleLEDColor sets the hub's status LED
func (h *Hub) SetModuleLEDColor(r, g, b uint8) (WriteStatus, error) {
	return h.SendWriteCommand(PacketSetModuleLEDColor, []byte{r, g, b})
}

// GetModuleLEDColor reads back the hub's status LED colour
func (h *Hub) GetModuleLEDColor() (r, g, b uint8, err error) {
	data, err := h.SendReadCommand(PacketGetModuleLEDColor, nil)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(data) < 3 {
		return 0, 0, 0, fmt.Errorf("%w: LED colour response of %d bytes", ErrUnexpectedResponse, len(data))
	}
	return data[0], data[1], data[2], nil
}

// SetDebugLogLevel sets the firmware's debug verbosity for one log group
func (h *Hub) SetDebugLogLevel(group, verbosity uint8) (WriteStatus, error) {
	if verbosity > MaxDebugVerbosity {
		return WriteOK, fmt.Errorf("%w: verbosity %d (max %d)", ErrArgOutOfRange, verbosity, MaxDebugVerbosity)
	}
	return h.SendWriteCommand(PacketDebugLogLevel, []byte{group, verbosity})
}
