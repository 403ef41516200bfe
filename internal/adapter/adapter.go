// Package adapter declares the three capability sets the core depends on
// per spec.md §4.6, shaped the way the teacher's vmm.VMM/vmm.ControlChannel
// interfaces are: a handful of methods, no generics, accepted once at
// construction and held as a single field.
package adapter

import "github.com/xfeldman/qips/internal/event"

// ConsoleBackend owns the physical console's input grab and LED state.
// lock must suppress host input processing; release restores it.
type ConsoleBackend interface {
	Init() error
	Lock() error
	Release() error
	GetLeds() (event.LedSet, error)
	SetLeds(set event.LedSet) error
	Cleanup() error
}

// ConsoleFrontend owns which guest's display is forward-facing on the
// physical screen. DomainSwitch must be idempotent for repeated identical
// targets (spec.md §4.6).
type ConsoleFrontend interface {
	Init() error
	PrepSwitch(leavingHost bool) error
	DomainSwitch(domainID, processID, slotID int) error
	Cleanup() error
}

// InputBackend is the source of raw input events. It pushes events into
// the pipeline via the Sink it is constructed with, rather than being
// polled — spec.md §4.6 describes it as pushing through on_key/on_rel_mouse
// entry points, which in Go terms is the backend holding a Sink reference.
type InputBackend interface {
	Init() error
	Cleanup() error
}

// Sink is the push-side entry points an InputBackend drives. event.Pipeline
// implements this.
type Sink interface {
	OnKey(scancode uint16, state event.KeyState, ts int64)
	OnRelMotion(dx, dy, dz int32, buttons event.ButtonSet, ts int64)
	OnAbsMotion(x, y, z int32, buttons event.ButtonSet, ts int64)
}
