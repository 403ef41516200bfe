package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfeldman/qips/internal/config"
	"github.com/xfeldman/qips/internal/event"
)

type fakeBackend struct{ released, locked, cleaned bool }

func (f *fakeBackend) Init() error                         { return nil }
func (f *fakeBackend) Lock() error                         { f.locked = true; return nil }
func (f *fakeBackend) Release() error                      { f.released = true; return nil }
func (f *fakeBackend) GetLeds() (event.LedSet, error)       { return 0, nil }
func (f *fakeBackend) SetLeds(set event.LedSet) error       { return nil }
func (f *fakeBackend) Cleanup() error                       { f.cleaned = true; return nil }

type fakeFrontend struct{ cleaned bool }

func (f *fakeFrontend) Init() error                                     { return nil }
func (f *fakeFrontend) PrepSwitch(leavingHost bool) error               { return nil }
func (f *fakeFrontend) DomainSwitch(domainID, processID, slotID int) error { return nil }
func (f *fakeFrontend) Cleanup() error                                  { f.cleaned = true; return nil }

type fakeInput struct{ cleaned bool }

func (f *fakeInput) Init() error    { return nil }
func (f *fakeInput) Cleanup() error { f.cleaned = true; return nil }

func TestStartSeedsHostAndStartsDiscovery(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SocketDir = t.TempDir()

	backend := &fakeBackend{}
	frontend := &fakeFrontend{}
	input := &fakeInput{}
	m := New(cfg, backend, frontend, input, nil)

	require.Equal(t, 0, m.Registry.Focused().SlotID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))

	assert.Len(t, m.Registry.Snapshot(), 1)
}

func TestHostEndpointAcksKbdReset(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SocketDir = t.TempDir()
	m := New(cfg, &fakeBackend{}, &fakeFrontend{}, &fakeInput{}, nil)

	host := m.Registry.Focused()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := host.Call(ctx, "send-kbd-reset", nil)
	assert.NoError(t, err)
}

func TestTeardownReleasesConsoleAndCleansAdapters(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SocketDir = t.TempDir()

	backend := &fakeBackend{}
	frontend := &fakeFrontend{}
	input := &fakeInput{}
	m := New(cfg, backend, frontend, input, nil)

	m.Teardown()

	assert.True(t, backend.released)
	assert.True(t, backend.cleaned)
	assert.True(t, frontend.cleaned)
	assert.True(t, input.cleaned)
}
