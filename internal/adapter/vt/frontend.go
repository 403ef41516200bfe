package vt

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	vtActivate   = 0x5606
	vtWaitActive = 0x5607
)

// Frontend is a ConsoleFrontend implementation that switches the visible
// virtual terminal via VT_ACTIVATE/VT_WAITACTIVE. Each guest slot is
// assigned a VT number starting at base+slotID; the synthetic host slot
// (0) maps onto base itself.
type Frontend struct {
	ttyPath string
	f       *os.File
	base    int
}

// NewFrontend targets the console device at ttyPath, assigning guest slots
// VT numbers starting at base.
func NewFrontend(ttyPath string, base int) *Frontend {
	return &Frontend{ttyPath: ttyPath, base: base}
}

func (fe *Frontend) Init() error {
	f, err := os.OpenFile(fe.ttyPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", fe.ttyPath, err)
	}
	fe.f = f
	return nil
}

// PrepSwitch is a no-op for VT switching: there is nothing to prepare
// before VT_ACTIVATE beyond what ConsoleBackend.Lock already does.
func (fe *Frontend) PrepSwitch(leavingHost bool) error { return nil }

// DomainSwitch activates the VT assigned to slotID and blocks until the
// kernel confirms the switch completed. Idempotent: activating the
// already-active VT is a no-op at the kernel level.
func (fe *Frontend) DomainSwitch(domainID, processID, slotID int) error {
	vt := fe.base + slotID
	if err := unix.IoctlSetInt(int(fe.f.Fd()), vtActivate, vt); err != nil {
		return fmt.Errorf("activate vt %d: %w", vt, err)
	}
	if err := unix.IoctlSetInt(int(fe.f.Fd()), vtWaitActive, vt); err != nil {
		return fmt.Errorf("wait for vt %d: %w", vt, err)
	}
	return nil
}

func (fe *Frontend) Cleanup() error {
	if fe.f == nil {
		return nil
	}
	return fe.f.Close()
}
