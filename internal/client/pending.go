package client

import (
	"encoding/json"
	"sync"
	"time"
)

// PendingMessage is an outbound request awaiting its correlated response,
// per spec.md §3. It is set-once: Resolve is called by the reader goroutine
// that observes the matching response id, or Fail is called if the
// endpoint goes inactive while the message is still outstanding. resolveOnce
// guards against both racing, mirroring the teacher's stopOnce pattern in
// daemon/manager.go's Process.stop.
type PendingMessage struct {
	ID   int64
	Body json.RawMessage // the full request frame, including id — immutable once enqueued

	EnqueuedAt  time.Time
	SentAt      time.Time
	RespondedAt time.Time

	resolveOnce sync.Once
	done        chan struct{}
	resp        json.RawMessage
	err         error
}

// NewPendingMessage creates a message ready to be pushed onto an endpoint's
// outbound queue.
func NewPendingMessage(id int64, body json.RawMessage) *PendingMessage {
	return &PendingMessage{
		ID:         id,
		Body:       body,
		EnqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
}

// Resolve attaches the response payload and wakes the waiter. A second call
// (racing with Fail) is a no-op.
func (p *PendingMessage) Resolve(resp json.RawMessage) {
	p.resolveOnce.Do(func() {
		p.resp = resp
		p.RespondedAt = time.Now()
		close(p.done)
	})
}

// Fail wakes the waiter with an error instead of a response, used when the
// endpoint goes inactive (read/write error, detach) while this message is
// still outstanding. A second call (racing with Resolve) is a no-op.
func (p *PendingMessage) Fail(err error) {
	p.resolveOnce.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Wait blocks until Resolve or Fail is called, then returns the response
// (or the error).
func (p *PendingMessage) Wait() (json.RawMessage, error) {
	<-p.done
	return p.resp, p.err
}
