package client

import (
	"context"
	"strconv"
	"time"

	"github.com/xfeldman/qips/internal/metrics"
	"github.com/xfeldman/qips/internal/protocol"
)

// regulatorLoop is the per-endpoint task that serializes outbound writes:
// it pops the head of the outbound queue WITHOUT removing it (spec.md §3
// invariant E4), writes the request body, and waits for the reader goroutine
// to Resolve or Fail that same message before popping the next one. At most
// one write is in flight per socket at a time (spec.md §5, testable
// property 1 in spec.md §8).
func (e *Endpoint) regulatorLoop() {
	for {
		pm := e.waitForHead()
		if pm == nil {
			return // endpoint closed, queue drained
		}

		pm.SentAt = time.Now()
		if err := e.writeFrame(pm.Body); err != nil {
			e.Close(err)
			return
		}

		e.mu.Lock()
		e.sentCount++
		e.mu.Unlock()

		if _, err := pm.Wait(); err != nil {
			// Reader already called Close on our behalf in the error path
			// that produced this Fail; nothing further to do here.
			return
		}

		e.popHead()
	}
}

// waitForHead blocks until the outbound queue is non-empty or the endpoint
// is closed, then returns (without removing) the head message.
func (e *Endpoint) waitForHead() *PendingMessage {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	for len(e.queue) == 0 {
		if !e.IsActive() {
			return nil
		}
		e.queueCnd.Wait()
	}
	return e.queue[0]
}

// popHead removes the current head of the outbound queue after its
// response has been matched.
func (e *Endpoint) popHead() {
	e.queueMu.Lock()
	if len(e.queue) > 0 {
		e.queue = e.queue[1:]
	}
	depth := len(e.queue)
	e.queueMu.Unlock()

	metrics.RegulatorInflight.WithLabelValues(strconv.Itoa(e.SlotID)).Set(float64(depth))
}

// headMessage returns the current outbound-queue head PendingMessage, or
// nil if empty.
func (e *Endpoint) headMessage() *PendingMessage {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if len(e.queue) == 0 {
		return nil
	}
	return e.queue[0]
}

func (e *Endpoint) writeFrame(body []byte) error {
	body = append(append([]byte(nil), body...), '\r', '\n')
	_, err := e.conn.Write(body)
	return err
}

// SendKbdReset is a convenience wrapping the registry's focus transition
// protocol (spec.md §4.4 step 2): enqueue send-kbd-reset and wait for it,
// honoring ctx cancellation so a stalled departing guest cannot hang a
// focus switch indefinitely.
func (e *Endpoint) SendKbdReset(ctx context.Context) error {
	_, err := e.Call(ctx, protocol.CmdSendKbdReset, nil)
	return err
}
