// Package client implements the per-guest control-channel endpoint: the
// outbound regulator, the inbound reader, and the cached state spec.md §3
// assigns to ClientEndpoint (C3 in spec.md §2).
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/xfeldman/qips/internal/event"
	"github.com/xfeldman/qips/internal/metrics"
	"github.com/xfeldman/qips/internal/protocol"
)

// LedSet mirrors event.LedSet for the endpoint's cached keyboard-LED state.
type LedSet = event.LedSet

// Endpoint owns one guest's control-channel connection: its outbound queue,
// regulator goroutine, inbound reader goroutine, and cached per-client
// state (domain id, pid, LED state, mouse mode).
type Endpoint struct {
	SlotID     int
	SocketPath string

	log *slog.Logger

	mu        sync.Mutex
	conn      net.Conn
	active    bool
	domainID  int
	processID int
	ledState  LedSet
	mouseAbs  bool
	recvCount uint64
	sentCount uint64

	queueMu  sync.Mutex
	queueCnd *sync.Cond
	queue    []*PendingMessage

	nextID *int64 // shared process-wide id counter, per spec.md M1

	onLedsChanged func(ep *Endpoint, set LedSet)
	onDomainKnown func(ep *Endpoint, domainID, processID int)
	onInactive    func(ep *Endpoint, err error)

	stop chan struct{}
}

// Option configures an Endpoint at construction.
type Option func(*Endpoint)

// WithLogger overrides the endpoint's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Endpoint) { e.log = l }
}

// WithOnLedsChanged registers a callback invoked whenever the endpoint
// learns a new LED state, so the registry can apply it to the console
// backend when (and only when) this endpoint is focused.
func WithOnLedsChanged(fn func(ep *Endpoint, set LedSet)) Option {
	return func(e *Endpoint) { e.onLedsChanged = fn }
}

// SetOnLedsChanged rewires the led-changed callback after construction, for
// callers (the registry) that only learn which endpoint they're attaching
// after client.Dial has already returned it.
func (e *Endpoint) SetOnLedsChanged(fn func(ep *Endpoint, set LedSet)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onLedsChanged = fn
}

// WithOnDomainKnown registers a callback invoked once domain/process ids
// are learned during attach handshake.
func WithOnDomainKnown(fn func(ep *Endpoint, domainID, processID int)) Option {
	return func(e *Endpoint) { e.onDomainKnown = fn }
}

// WithOnInactive registers a callback invoked exactly once when the
// endpoint transitions to inactive (fatal I/O error, EOF, or explicit
// teardown).
func WithOnInactive(fn func(ep *Endpoint, err error)) Option {
	return func(e *Endpoint) { e.onInactive = fn }
}

// New constructs an Endpoint bound to an already-dialed connection and
// starts its regulator and reader goroutines. idCounter is a process-wide
// shared *int64 so PendingMessage ids strictly increase across every
// endpoint (invariant M1 in spec.md §3).
func New(slotID int, socketPath string, conn net.Conn, idCounter *int64, opts ...Option) *Endpoint {
	e := &Endpoint{
		SlotID:     slotID,
		SocketPath: socketPath,
		conn:       conn,
		active:     true,
		log:        slog.Default(),
		nextID:     idCounter,
		stop:       make(chan struct{}),
	}
	e.queueCnd = sync.NewCond(&e.queueMu)
	for _, opt := range opts {
		opt(e)
	}

	go e.regulatorLoop()
	go e.readerLoop()

	return e
}

// IsActive reports whether the endpoint's stream is still usable.
func (e *Endpoint) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// DomainID returns the cached guest domain id (0 for the privileged host client).
func (e *Endpoint) DomainID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.domainID
}

// ProcessID returns the cached guest process id.
func (e *Endpoint) ProcessID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processID
}

// LedState returns the cached keyboard LED state.
func (e *Endpoint) LedState() LedSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledState
}

// MouseAbsolute returns the cached mouse addressing mode (true if absolute).
func (e *Endpoint) MouseAbsolute() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mouseAbs
}

// Counters returns the recv/sent message counts.
func (e *Endpoint) Counters() (recv, sent uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recvCount, e.sentCount
}

// allocID returns the next process-wide strictly-increasing PendingMessage id.
func (e *Endpoint) allocID() int64 {
	return atomic.AddInt64(e.nextID, 1)
}

// Enqueue builds a request frame for execute/args, appends it to the
// outbound queue, and returns the PendingMessage the caller can Wait on.
// Enqueue never blocks on the network — only on the queue's own mutex.
func (e *Endpoint) Enqueue(execute string, args interface{}) (*PendingMessage, error) {
	id := e.allocID()
	frame, err := protocol.NewRequest(id, execute, args)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal request %s: %w", execute, err)
	}

	pm := NewPendingMessage(id, body)

	e.queueMu.Lock()
	e.queue = append(e.queue, pm)
	depth := len(e.queue)
	e.queueCnd.Signal()
	e.queueMu.Unlock()

	metrics.RegulatorInflight.WithLabelValues(strconv.Itoa(e.SlotID)).Set(float64(depth))

	return pm, nil
}

// Call enqueues a request and waits for its response, honoring ctx
// cancellation. Spec.md §5 notes the core itself applies no per-message
// timeout; ctx is the caller's opt-in mechanism (SPEC_FULL.md §4's
// "configurable per-message timeout").
func (e *Endpoint) Call(ctx context.Context, execute string, args interface{}) (json.RawMessage, error) {
	pm, err := e.Enqueue(execute, args)
	if err != nil {
		return nil, err
	}

	type result struct {
		resp json.RawMessage
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := pm.Wait()
		ch <- result{resp, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.resp, r.err
	}
}

// Close marks the endpoint inactive, closes the socket, and wakes every
// waiting sender with an error — spec.md §4.3's detach contract.
func (e *Endpoint) Close(cause error) {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	conn := e.conn
	e.mu.Unlock()

	close(e.stop)
	if conn != nil {
		conn.Close()
	}

	e.queueMu.Lock()
	pending := e.queue
	e.queue = nil
	e.queueCnd.Broadcast()
	e.queueMu.Unlock()

	for _, pm := range pending {
		pm.Fail(fmt.Errorf("endpoint slot %d detached: %w", e.SlotID, cause))
	}

	if e.onInactive != nil {
		e.onInactive(e, cause)
	}
}
