package client

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/xfeldman/qips/internal/event"
	"github.com/xfeldman/qips/internal/metrics"
	"github.com/xfeldman/qips/internal/protocol"
)

// readerLoop is the per-endpoint inbound task. For every decoded frame: a
// response is matched against the outbound-queue head by id (spec.md §9's
// resolved Open Question — id-keyed, not blind head-matching); an event is
// dispatched to the appropriate state-cache updater; anything else is
// logged and dropped (spec.md §4.3, §7).
func (e *Endpoint) readerLoop() {
	dec := protocol.NewDecoder(e.conn)
	for {
		frame, err := dec.Decode()
		if err != nil {
			var malformed *protocol.MalformedFrameError
			if errors.As(err, &malformed) {
				// Protocol violation: log and drop, keep reading (spec.md §7).
				metrics.ProtocolViolationTotal.Inc()
				e.log.Warn("dropping malformed frame", "slot", e.SlotID)
				continue
			}
			if errors.Is(err, io.EOF) {
				e.log.Info("endpoint reader EOF", "slot", e.SlotID)
			} else {
				e.log.Warn("endpoint reader error", "slot", e.SlotID, "err", err)
			}
			e.Close(err)
			return
		}

		switch frame.Classify() {
		case protocol.KindResponse:
			e.handleResponse(frame)
		case protocol.KindEvent:
			e.handleEvent(frame)
		default:
			e.log.Warn("dropping unclassified frame", "slot", e.SlotID, "frame", frame)
		}

		e.mu.Lock()
		e.recvCount++
		e.mu.Unlock()
	}
}

// handleResponse matches a response frame to the outbound-queue head. An id
// mismatch is a protocol violation (spec.md §7, invariant M3): the frame is
// dropped rather than misattributed, and the mismatch is logged and
// counted in metrics.ProtocolViolationTotal. Violations never close the
// endpoint, however often they repeat.
func (e *Endpoint) handleResponse(frame protocol.Frame) {
	pm := e.headMessage()
	if pm == nil {
		e.log.Warn("response with no pending message", "slot", e.SlotID, "id", frame.ID)
		return
	}
	if pm.ID != frame.ID {
		metrics.ProtocolViolationTotal.Inc()
		e.log.Warn("protocol violation: response id does not match head",
			"slot", e.SlotID, "got", frame.ID, "want", pm.ID)
		return
	}
	pm.Resolve(frame.Return)
	e.applyResponse(frame)
}

// applyResponse updates cached state from a response body, per spec.md
// §4.3's "state updates driven by responses/events" table.
func (e *Endpoint) applyResponse(frame protocol.Frame) {
	var probe struct {
		Domain   *int  `json:"domain"`
		Pid      *int  `json:"pid"`
		Absolute *bool `json:"absolute"`
		Caps     *bool `json:"caps"`
		Num      *bool `json:"num"`
		Scroll   *bool `json:"scroll"`
	}
	if err := json.Unmarshal(frame.Return, &probe); err != nil {
		return
	}

	e.mu.Lock()
	if probe.Domain != nil {
		e.domainID = *probe.Domain
	}
	if probe.Pid != nil {
		e.processID = *probe.Pid
	}
	if probe.Absolute != nil {
		e.mouseAbs = *probe.Absolute
	}
	ledsChanged := false
	if probe.Caps != nil || probe.Num != nil || probe.Scroll != nil {
		e.applyLedBits(probe.Caps, probe.Num, probe.Scroll)
		ledsChanged = true
	}
	domainID, processID, leds := e.domainID, e.processID, e.ledState
	onDomainKnown, onLedsChanged := e.onDomainKnown, e.onLedsChanged
	e.mu.Unlock()

	if (probe.Domain != nil || probe.Pid != nil) && onDomainKnown != nil {
		onDomainKnown(e, domainID, processID)
	}
	if ledsChanged && onLedsChanged != nil {
		onLedsChanged(e, leds)
	}
}

// applyLedBits must be called with e.mu held.
func (e *Endpoint) applyLedBits(caps, num, scroll *bool) {
	set := func(bit event.LedSet, on *bool) {
		if on == nil {
			return
		}
		if *on {
			e.ledState |= bit
		} else {
			e.ledState &^= bit
		}
	}
	set(event.LedCaps, caps)
	set(event.LedNum, num)
	set(event.LedScroll, scroll)
}

// handleEvent dispatches an asynchronous event frame, per spec.md §4.1's
// input contract.
func (e *Endpoint) handleEvent(frame protocol.Frame) {
	switch frame.Event {
	case protocol.EventKbdLedsUpdate:
		var data protocol.KbdLedsReturn
		if err := frame.DecodeData(&data); err != nil {
			e.log.Warn("malformed KBD_LEDS_UPDATE", "slot", e.SlotID, "err", err)
			return
		}
		e.mu.Lock()
		caps, num, scroll := data.Caps, data.Num, data.Scroll
		e.applyLedBits(&caps, &num, &scroll)
		leds := e.ledState
		onLedsChanged := e.onLedsChanged
		e.mu.Unlock()
		if onLedsChanged != nil {
			onLedsChanged(e, leds)
		}
	case protocol.EventMouseModeUpdate:
		var data protocol.MouseStatusReturn
		if err := frame.DecodeData(&data); err != nil {
			e.log.Warn("malformed MOUSE_MODE_UPDATE", "slot", e.SlotID, "err", err)
			return
		}
		e.mu.Lock()
		e.mouseAbs = data.Absolute
		e.mu.Unlock()
	case protocol.EventDisplayModeUpdate:
		// Reserved by spec.md §4.1; no behavior defined yet.
	default:
		e.log.Debug("unhandled event", "slot", e.SlotID, "event", frame.Event)
	}
}
