// Package vt implements adapter.ConsoleBackend against a Linux virtual
// terminal, using the KDSETLED/KDGETLED and KDSKBMODE/KDGKBMODE ioctls.
// Built thin per spec.md §1's scoping of backends as external
// collaborators — qips's core logic never depends on anything here beyond
// the adapter.ConsoleBackend interface.
package vt

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/xfeldman/qips/internal/event"
)

const (
	kdGetLed  = 0x4B31
	kdSetLed  = 0x4B32
	kdGkbMode = 0x4B44
	kdSkbMode = 0x4B45
	kRaw      = 0x02
)

// Backend is a ConsoleBackend implementation over a VT device's ioctls.
type Backend struct {
	ttyPath   string
	f         *os.File
	savedMode int
}

// New targets ttyPath (typically "/dev/tty0" or a specific VT device)
// without yet taking control of it — Init does that.
func New(ttyPath string) *Backend {
	return &Backend{ttyPath: ttyPath}
}

func (b *Backend) Init() error {
	f, err := os.OpenFile(b.ttyPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", b.ttyPath, err)
	}
	b.f = f
	return nil
}

// Lock suppresses host input processing by switching the VT's keyboard
// mode to raw, so held keys are not interpreted by the host console while
// a guest has focus.
func (b *Backend) Lock() error {
	mode, err := unix.IoctlGetInt(int(b.f.Fd()), kdGkbMode)
	if err != nil {
		return fmt.Errorf("get kbd mode: %w", err)
	}
	b.savedMode = mode
	if err := unix.IoctlSetInt(int(b.f.Fd()), kdSkbMode, kRaw); err != nil {
		return fmt.Errorf("set kbd mode raw: %w", err)
	}
	return nil
}

// Release restores the host console's keyboard mode saved by Lock.
func (b *Backend) Release() error {
	if err := unix.IoctlSetInt(int(b.f.Fd()), kdSkbMode, b.savedMode); err != nil {
		return fmt.Errorf("restore kbd mode: %w", err)
	}
	return nil
}

// GetLeds reads the VT's current LED state via KDGETLED and maps it onto
// event.LedSet.
func (b *Backend) GetLeds() (event.LedSet, error) {
	raw, err := unix.IoctlGetInt(int(b.f.Fd()), kdGetLed)
	if err != nil {
		return 0, fmt.Errorf("get leds: %w", err)
	}
	return ledsFromRaw(uint8(raw)), nil
}

// SetLeds writes set to the VT via KDSETLED.
func (b *Backend) SetLeds(set event.LedSet) error {
	if err := unix.IoctlSetInt(int(b.f.Fd()), kdSetLed, int(rawFromLeds(set))); err != nil {
		return fmt.Errorf("set leds: %w", err)
	}
	return nil
}

// Cleanup releases the underlying file descriptor.
func (b *Backend) Cleanup() error {
	if b.f == nil {
		return nil
	}
	return b.f.Close()
}

func ledsFromRaw(raw uint8) event.LedSet {
	var set event.LedSet
	if raw&0x04 != 0 {
		set |= event.LedCaps
	}
	if raw&0x02 != 0 {
		set |= event.LedNum
	}
	if raw&0x01 != 0 {
		set |= event.LedScroll
	}
	return set
}

func rawFromLeds(set event.LedSet) uint8 {
	var raw uint8
	if set&event.LedCaps != 0 {
		raw |= 0x04
	}
	if set&event.LedNum != 0 {
		raw |= 0x02
	}
	if set&event.LedScroll != 0 {
		raw |= 0x01
	}
	return raw
}
