package adapter

import "github.com/xfeldman/qips/internal/event"

// NoopBackend satisfies ConsoleBackend without touching any device, for
// running qipsd off-target (tests, non-Linux hosts, ConsoleBackend="none").
type NoopBackend struct{ leds event.LedSet }

func (*NoopBackend) Init() error    { return nil }
func (*NoopBackend) Lock() error    { return nil }
func (*NoopBackend) Release() error { return nil }
func (b *NoopBackend) GetLeds() (event.LedSet, error) { return b.leds, nil }
func (b *NoopBackend) SetLeds(set event.LedSet) error { b.leds = set; return nil }
func (*NoopBackend) Cleanup() error { return nil }

// NoopFrontend satisfies ConsoleFrontend without touching any device.
type NoopFrontend struct{}

func (NoopFrontend) Init() error                                     { return nil }
func (NoopFrontend) PrepSwitch(leavingHost bool) error                { return nil }
func (NoopFrontend) DomainSwitch(domainID, processID, slotID int) error { return nil }
func (NoopFrontend) Cleanup() error                                  { return nil }

// NoopInput satisfies InputBackend without reading any device.
type NoopInput struct{}

func (NoopInput) Init() error    { return nil }
func (NoopInput) Cleanup() error { return nil }
