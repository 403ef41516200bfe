// Package registry implements the client registry and focus ring: an
// ordered collection of endpoints keyed by slot, a focus cursor, and the
// atomic focus-transition protocol of spec.md §4.4 (C4 in spec.md §2).
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xfeldman/qips/internal/adapter"
	"github.com/xfeldman/qips/internal/client"
	"github.com/xfeldman/qips/internal/event"
	"github.com/xfeldman/qips/internal/metrics"
	"github.com/xfeldman/qips/internal/protocol"
	"github.com/xfeldman/qips/internal/telemetry"
)

// Registry is the ordered set of attached endpoints plus the focus cursor.
// Every add/remove/focus-read/focus-mutate holds mu across the whole
// operation, the same way the teacher's router.Router and daemon.Manager
// hold their single mutex across a multi-step mutation rather than
// releasing and re-acquiring mid-sequence.
type Registry struct {
	log *slog.Logger

	backend  adapter.ConsoleBackend
	frontend adapter.ConsoleFrontend

	mu      sync.Mutex
	clients []*client.Endpoint // ascending by SlotID (a slot collision leaves stale and fresh adjacent), host (slot 0) always present
	focused *client.Endpoint

	onFocus func(slotID int)

	// kbdResetTimeout bounds step 2's send-kbd-reset wait during a focus
	// transition (SPEC_FULL.md §4's opt-in override of Config.RegulatorTimeout).
	// Zero means wait indefinitely, per spec.md §5.
	kbdResetTimeout time.Duration
}

// SetKbdResetTimeout overrides how long switchFocusLocked's step 2 waits
// for the departing guest's send-kbd-reset to complete. Zero (the default)
// waits indefinitely, matching spec.md §5's "no per-message timeout in the
// core."
func (r *Registry) SetKbdResetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kbdResetTimeout = d
}

// OnFocus registers fn to be called at the end of every focus transition,
// while the registry mutex is still held, so fn must not call back into
// the Registry. Used by internal/adapter/uiwatch to push
// live-state updates to a connected debug client; nil by default.
func (r *Registry) OnFocus(fn func(slotID int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFocus = fn
}

// New constructs a Registry with host (slot 0) already present and focused.
// host is the privileged client endpoint — a synthetic endpoint with no
// backing socket (spec.md §6 "Slot 0 is synthetic... has no socket"),
// constructed by the caller's lifecycle package and handed in here.
func New(host *client.Endpoint, backend adapter.ConsoleBackend, frontend adapter.ConsoleFrontend, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log,
		backend:  backend,
		frontend: frontend,
		clients:  []*client.Endpoint{host},
		focused:  host,
	}
}

// Focused returns the currently focused endpoint.
func (r *Registry) Focused() *client.Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.focused
}

// Snapshot returns a copy of the ordered client slice, for teardown
// (lifecycle.Manager.Teardown) and tests, without exposing the live slice
// to mutation.
func (r *Registry) Snapshot() []*client.Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*client.Endpoint, len(r.clients))
	copy(out, r.clients)
	return out
}

// WireHostLeds binds the synthetic slot-0 host endpoint's led-changed
// callback. New already seats host in the ordered set and as the initial
// focus target, so this exists only for the callback wiring Attach
// otherwise does for every discovered endpoint.
func (r *Registry) WireHostLeds(host *client.Endpoint) {
	host.SetOnLedsChanged(r.applyLedsIfFocused)
}

// Attach inserts ep into the ordered sequence, per spec.md §4.4's insertion
// rule: before the first member whose SlotID is greater. A SlotID
// collision is a race artifact (an attach racing a not-yet-completed
// detach); SPEC_FULL.md's resolved Open Question has the registry detach
// the stale incumbent eagerly rather than leaving it for later
// reconciliation.
func (r *Registry) Attach(ep *client.Endpoint) {
	ep.SetOnLedsChanged(r.applyLedsIfFocused)

	r.mu.Lock()
	idx, collision := r.insertionPoint(ep.SlotID)
	var stale *client.Endpoint
	if collision {
		stale = r.clients[idx]
		r.log.Warn("slot id collision on attach, detaching stale endpoint",
			"slot", ep.SlotID)
		idx++ // insert the new endpoint after the stale one, per spec.md §4.4
	}
	tail := append([]*client.Endpoint{}, r.clients[idx:]...)
	r.clients = append(append(r.clients[:idx:idx], ep), tail...)
	r.mu.Unlock()

	if stale != nil {
		stale.Close(nil)
	}
}

// applyLedsIfFocused is wired as ep's onLedsChanged callback: an
// unsolicited LED event (or a response carrying LED bits) only reaches the
// physical backend while its endpoint is the one currently focused
// (spec.md §8 S4).
func (r *Registry) applyLedsIfFocused(ep *client.Endpoint, set client.LedSet) {
	r.mu.Lock()
	focused := r.focused == ep
	r.mu.Unlock()
	if !focused {
		return
	}
	if err := r.backend.SetLeds(set); err != nil {
		r.log.Warn("set_leds failed on live led update", "slot", ep.SlotID, "err", err)
	}
}

// insertionPoint must be called with r.mu held. It returns the index to
// insert at, and whether that index is an exact SlotID collision.
func (r *Registry) insertionPoint(slotID int) (idx int, collision bool) {
	for i, c := range r.clients {
		if c.SlotID == slotID {
			return i, true
		}
		if c.SlotID > slotID {
			return i, false
		}
	}
	return len(r.clients), false
}

// Detach removes ep from the sequence. If ep was focused, a teardown focus
// transition to the host (slot 0) runs first, per spec.md §4.4's removal
// rule. Slot 0 itself is never removed. The teardown transition and the
// unlink happen under one lock acquisition, matching the serialization
// invariant of spec.md §5 ("core holds the registry mutex across the
// entire transition protocol").
func (r *Registry) Detach(ep *client.Endpoint) {
	if ep.SlotID == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.focused == ep {
		r.switchFocusLocked(ep, r.clients[0], true)
	}
	for i, c := range r.clients {
		if c == ep {
			r.clients = append(r.clients[:i], r.clients[i+1:]...)
			break
		}
	}
}

// AdvanceFocus implements event.FocusRing, moving focus to the successor
// (Next) or predecessor (Previous) of the currently focused endpoint in
// the ordered sequence, wrapping per spec.md §4.4. Target resolution and
// the transition itself happen under one lock acquisition.
func (r *Registry) AdvanceFocus(dir event.Direction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.focused
	idx := r.indexOfLocked(old)
	var next *client.Endpoint
	switch dir {
	case event.Next:
		if idx == len(r.clients)-1 {
			next = r.clients[0]
		} else {
			next = r.clients[idx+1]
		}
	case event.Previous:
		if idx == 0 {
			next = r.clients[len(r.clients)-1]
		} else {
			next = r.clients[idx-1]
		}
	}

	r.switchFocusLocked(old, next, false)
}

// indexOfLocked must be called with r.mu held.
func (r *Registry) indexOfLocked(ep *client.Endpoint) int {
	for i, c := range r.clients {
		if c == ep {
			return i
		}
	}
	return 0
}

// DispatchToFocused implements event.FocusRing, forwarding ev to whichever
// endpoint is currently focused as the appropriate protocol command.
func (r *Registry) DispatchToFocused(ev event.Event) {
	ep := r.Focused()
	switch e := ev.(type) {
	case event.Key:
		ep.Enqueue(protocol.CmdSendKeycode, protocol.SendKeycodeArgs{
			Keycode:  int(e.Scancode),
			Released: e.State == event.Released,
		})
	case event.RelMotion:
		ep.Enqueue(protocol.CmdSendMouseRel, protocol.SendMouseRelArgs{
			DX: int(e.DX), DY: int(e.DY), DZ: int(e.DZ),
			Buttons: buttonsToWire(e.Buttons),
		})
	case event.AbsMotion:
		ep.Enqueue(protocol.CmdSendMouseAbs, protocol.SendMouseAbsArgs{
			X: int(e.X), Y: int(e.Y), Z: int(e.Z),
			Buttons: buttonsToWire(e.Buttons),
		})
	}
}

func buttonsToWire(b event.ButtonSet) protocol.MouseButtons {
	return protocol.MouseButtons{
		Left:   b&event.ButtonLeft != 0,
		Middle: b&event.ButtonMiddle != 0,
		Right:  b&event.ButtonRight != 0,
	}
}

// switchFocusLocked runs the seven-step focus transition protocol of
// spec.md §4.4. Callers must hold r.mu for the duration — transitions are
// serialized per spec.md §5's ordering guarantees ("core holds the
// registry mutex across the entire transition protocol"). A nil next
// aborts the transition with a warning (step 1).
func (r *Registry) switchFocusLocked(old, next *client.Endpoint, teardown bool) {
	if next == nil {
		r.log.Warn("focus transition aborted: new target is nil")
		return
	}
	defer metrics.FocusTransitionTotal.Inc()

	_, span := telemetry.StartFocusTransition(context.Background(), old.SlotID, next.SlotID, teardown)
	defer span.End()

	// Step 2: release any still-held keys on the departing guest.
	if !teardown {
		ctx := context.Background()
		if r.kbdResetTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.kbdResetTimeout)
			defer cancel()
		}
		if err := old.SendKbdReset(ctx); err != nil {
			r.log.Warn("kbd-reset failed during focus transition", "slot", old.SlotID, "err", err)
		}
	}

	// Step 3: prepare the frontend, and if leaving the host, lock the
	// console so input does not reach the host mid-transition.
	leavingHost := old.DomainID() == 0
	if err := r.frontend.PrepSwitch(leavingHost); err != nil {
		r.log.Warn("prep_switch failed", "err", err)
	}
	if leavingHost {
		if err := r.backend.Lock(); err != nil {
			r.log.Warn("console lock failed", "err", err)
		}
	}

	// Step 4: atomically swap the focus pointer.
	r.focused = next

	// Step 5: bring the new endpoint's display forward.
	if err := r.frontend.DomainSwitch(next.DomainID(), next.ProcessID(), next.SlotID); err != nil {
		r.log.Warn("domain_switch failed", "slot", next.SlotID, "err", err)
	}

	// Step 6: arriving at the host releases the console (mirror of step 3's lock).
	if next.DomainID() == 0 {
		if err := r.backend.Release(); err != nil {
			r.log.Warn("console release failed", "err", err)
		}
	}

	// Step 7: apply the new endpoint's cached LED state.
	if err := r.backend.SetLeds(next.LedState()); err != nil {
		r.log.Warn("set_leds failed", "slot", next.SlotID, "err", err)
	}

	if r.onFocus != nil {
		r.onFocus(next.SlotID)
	}
}
