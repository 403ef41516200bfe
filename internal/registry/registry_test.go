package registry

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfeldman/qips/internal/client"
	"github.com/xfeldman/qips/internal/event"
	"github.com/xfeldman/qips/internal/protocol"
)

// fakeBackend and fakeFrontend record calls instead of touching real
// hardware, the same role the teacher's test doubles play for vmm.VMM in
// router/daemon tests.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string
	leds  event.LedSet
}

func (f *fakeBackend) Init() error { return nil }
func (f *fakeBackend) Lock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "lock")
	return nil
}
func (f *fakeBackend) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "release")
	return nil
}
func (f *fakeBackend) GetLeds() (event.LedSet, error) { return f.leds, nil }
func (f *fakeBackend) SetLeds(set event.LedSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leds = set
	f.calls = append(f.calls, "set_leds")
	return nil
}
func (f *fakeBackend) Cleanup() error { return nil }

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeFrontend struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeFrontend) Init() error { return nil }
func (f *fakeFrontend) PrepSwitch(leavingHost bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if leavingHost {
		f.calls = append(f.calls, "prep_switch(leaving)")
	} else {
		f.calls = append(f.calls, "prep_switch")
	}
	return nil
}
func (f *fakeFrontend) DomainSwitch(domainID, processID, slotID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "domain_switch")
	return nil
}
func (f *fakeFrontend) Cleanup() error { return nil }

func (f *fakeFrontend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// newTestClientPair constructs a client.Endpoint wired to one end of a
// net.Pipe, auto-answering any send-kbd-reset the regulator issues so
// switchFocusLocked's step 2 never blocks in tests.
func newTestClientPair(t *testing.T, slotID int, idCounter *int64) *client.Endpoint {
	t.Helper()
	local, remote := net.Pipe()
	ep := client.New(slotID, "", local, idCounter)
	t.Cleanup(func() { ep.Close(nil) })

	go func() {
		dec := protocol.NewDecoder(remote)
		enc := protocol.NewEncoder(remote)
		for {
			f, err := dec.Decode()
			if err != nil {
				return
			}
			enc.Encode(protocol.Frame{ID: f.ID, Return: []byte(`{}`)})
		}
	}()
	return ep
}

func newTestRegistry(t *testing.T) (*Registry, *fakeBackend, *fakeFrontend, *int64) {
	t.Helper()
	var idCounter int64
	host := newTestClientPair(t, 0, &idCounter)
	backend := &fakeBackend{}
	frontend := &fakeFrontend{}
	reg := New(host, backend, frontend, nil)
	return reg, backend, frontend, &idCounter
}

func TestAttachInsertsInSlotOrder(t *testing.T) {
	reg, _, _, idCounter := newTestRegistry(t)

	reg.Attach(newTestClientPair(t, 5, idCounter))
	reg.Attach(newTestClientPair(t, 2, idCounter))

	snap := reg.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []int{0, 2, 5}, []int{snap[0].SlotID, snap[1].SlotID, snap[2].SlotID})
}

func TestAttachCollisionDetachesStale(t *testing.T) {
	reg, _, _, idCounter := newTestRegistry(t)

	stale := newTestClientPair(t, 3, idCounter)
	reg.Attach(stale)
	fresh := newTestClientPair(t, 3, idCounter)
	reg.Attach(fresh)

	require.Eventually(t, func() bool { return !stale.IsActive() }, time.Second, 5*time.Millisecond)

	snap := reg.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, 0, snap[0].SlotID)
	assert.Same(t, stale, snap[1])
	assert.Same(t, fresh, snap[2])
}

func TestAdvanceFocusWrapsAtTail(t *testing.T) {
	reg, backend, frontend, idCounter := newTestRegistry(t)
	reg.Attach(newTestClientPair(t, 2, idCounter))
	reg.Attach(newTestClientPair(t, 5, idCounter))

	require.Equal(t, 0, reg.Focused().SlotID)

	reg.AdvanceFocus(event.Next)
	assert.Equal(t, 2, reg.Focused().SlotID)

	reg.AdvanceFocus(event.Next)
	assert.Equal(t, 5, reg.Focused().SlotID)

	// Wrap back to the host.
	reg.AdvanceFocus(event.Next)
	assert.Equal(t, 0, reg.Focused().SlotID)

	assert.Contains(t, backend.Calls(), "lock")
	assert.Contains(t, frontend.Calls(), "domain_switch")
}

func TestAdvanceFocusPreviousWrapsAtHead(t *testing.T) {
	reg, _, _, idCounter := newTestRegistry(t)
	reg.Attach(newTestClientPair(t, 2, idCounter))

	reg.AdvanceFocus(event.Previous)
	assert.Equal(t, 2, reg.Focused().SlotID)
}

func TestDetachFocusedTearsDownToHost(t *testing.T) {
	reg, backend, _, idCounter := newTestRegistry(t)
	guest := newTestClientPair(t, 7, idCounter)
	reg.Attach(guest)
	reg.AdvanceFocus(event.Next)
	require.Equal(t, 7, reg.Focused().SlotID)

	reg.Detach(guest)

	assert.Equal(t, 0, reg.Focused().SlotID)
	assert.NotContains(t, reg.Snapshot(), guest)
	assert.Contains(t, backend.Calls(), "release")
}

func TestDetachNeverRemovesHost(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t)
	host := reg.Focused()

	reg.Detach(host)

	assert.Len(t, reg.Snapshot(), 1)
	assert.Equal(t, 0, reg.Focused().SlotID)
}
