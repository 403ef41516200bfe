package client

import (
	"github.com/xfeldman/qips/internal/protocol"
)

// Handshake enqueues the four requests spec.md §4.3 step 6 sends on every
// newly attached endpoint, in order: capability handshake, xen-status,
// process-info, kbd-leds. It does not wait for responses — the cache
// fields populate asynchronously as the reader observes each return
// (spec.md §4.3's "state updates driven by responses/events").
func (e *Endpoint) Handshake() error {
	for _, cmd := range []string{
		protocol.CmdCapabilities,
		protocol.CmdQueryXenStatus,
		protocol.CmdQueryProcessPid,
		protocol.CmdQueryKbdLeds,
	} {
		if _, err := e.Enqueue(cmd, nil); err != nil {
			return err
		}
	}
	return nil
}
