// Package event defines the canonical input event types the core consumes
// from an InputBackend, and the key-down tracking and hotkey chord detector
// that sit between raw key events and focus-ring dispatch.
package event

import "time"

// KeyState is the press/release/repeat state carried by a Key event.
type KeyState int

const (
	Pressed KeyState = iota
	Released
	Repeat
)

// ButtonSet is a bitset over the three mouse buttons.
type ButtonSet uint8

const (
	ButtonLeft ButtonSet = 1 << iota
	ButtonMiddle
	ButtonRight
)

// Event is the discriminated union of input events the core dispatches.
type Event interface {
	// Timestamp returns the monotonically increasing source time of the event.
	Timestamp() time.Time
	isEvent()
}

// Key is a single keyboard scancode transition.
type Key struct {
	Scancode uint16
	State    KeyState
	At       time.Time
}

func (k Key) Timestamp() time.Time { return k.At }
func (Key) isEvent()               {}

// RelMotion is a relative mouse motion report.
type RelMotion struct {
	DX, DY, DZ int32
	Buttons    ButtonSet
	At         time.Time
}

func (m RelMotion) Timestamp() time.Time { return m.At }
func (RelMotion) isEvent()               {}

// AbsMotion is an absolute mouse position report.
type AbsMotion struct {
	X, Y, Z int32
	Buttons ButtonSet
	At      time.Time
}

func (m AbsMotion) Timestamp() time.Time { return m.At }
func (AbsMotion) isEvent()               {}

// LedSet is a bitset over the three keyboard LEDs.
type LedSet uint8

const (
	LedCaps LedSet = 1 << iota
	LedNum
	LedScroll
)

// LedHint is an input-backend-originated hint about LED state; reserved by
// spec.md §3 for future use, carried here for completeness.
type LedHint struct {
	Set LedSet
	At  time.Time
}

func (h LedHint) Timestamp() time.Time { return h.At }
func (LedHint) isEvent()               {}
