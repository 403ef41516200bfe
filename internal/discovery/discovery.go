// Package discovery implements the filesystem-watch-driven lifecycle of
// spec.md §4.5 (C5 in spec.md §2): an initial directory scan plus an
// fsnotify watch that attaches and detaches clients as slot sockets
// appear and disappear.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/xfeldman/qips/internal/client"
	"github.com/xfeldman/qips/internal/metrics"
)

// Registry is the subset of registry.Registry discovery needs: attaching a
// freshly dialed endpoint and detaching one whose reader observed EOF.
// Declared here, not imported from internal/registry, for the same reason
// event.FocusRing lives in internal/event — keeps discovery's dependency
// graph a leaf pointing only at client and fsnotify.
type Registry interface {
	Attach(ep *client.Endpoint)
	Detach(ep *client.Endpoint)
}

// Watcher owns the socket directory scan and the fsnotify watch for its
// lifetime, attaching one client.Endpoint per discovered slot socket.
type Watcher struct {
	dir       string
	reg       Registry
	idCounter *int64
	log       *slog.Logger

	onAttach func(ep *client.Endpoint)
}

// Option configures a Watcher at construction.
type Option func(*Watcher)

// WithLogger overrides the watcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// WithOnAttach registers a callback invoked after a discovered endpoint
// has been dialed, handshaken, and attached to the registry. The
// registry's own led-changed callback is bound by Registry.Attach, so this
// hook is only for anything additional; the lifecycle package does not set
// it.
func WithOnAttach(fn func(ep *client.Endpoint)) Option {
	return func(w *Watcher) { w.onAttach = fn }
}

// New constructs a Watcher over dir, attaching discovered endpoints to reg.
// idCounter is the process-wide shared PendingMessage id counter (spec.md
// invariant M1), passed through to every dialed client.Endpoint.
func New(dir string, reg Registry, idCounter *int64, opts ...Option) *Watcher {
	w := &Watcher{
		dir:       dir,
		reg:       reg,
		idCounter: idCounter,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run performs the initial scan and then services the fsnotify watch until
// ctx is canceled, per spec.md §4.5: scan and watch both run, the watch
// for the process lifetime.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			// A watch read error is not fatal to the process — spec.md §4.5
			// treats a delete as requiring no action and gives no fatal
			// path for the watch channel itself; log and keep servicing.
			w.log.Warn("discovery watch error", "err", err)
		}
	}
}

// scan is the initial os.ReadDir pass of spec.md §4.5. Each candidate is
// handed to attach concurrently, matching attach's own connect-retry
// budget running independently per candidate.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("initial socket directory scan failed", "dir", w.dir, "err", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		slotID, ok := parseSlotName(entry.Name())
		if !ok {
			continue
		}
		go w.attach(ctx, slotID, filepath.Join(w.dir, entry.Name()))
	}
}

// handleEvent dispatches one fsnotify event per spec.md §4.5: create
// spawns an attach task, delete requires no action (the affected
// endpoint's reader self-detaches on EOF).
func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	slotID, ok := parseSlotName(name)
	if !ok {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return
		}
		go w.attach(ctx, slotID, ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// No action required; the endpoint's reader observes EOF and
		// self-detaches (spec.md §4.5).
	}
}

// attach dials the socket, runs the handshake, and adds the resulting
// endpoint to the registry, wiring its inactivity callback to detach
// itself on fatal I/O error or EOF.
func (w *Watcher) attach(ctx context.Context, slotID int, socketPath string) {
	ep, err := client.Dial(ctx, slotID, socketPath, w.idCounter,
		client.WithLogger(w.log),
		client.WithOnInactive(func(e *client.Endpoint, cause error) {
			reason := "eof"
			if cause != nil && !errors.Is(cause, io.EOF) {
				reason = "error"
			}
			metrics.DetachTotal.WithLabelValues(reason).Inc()
			w.reg.Detach(e)
		}),
	)
	if err != nil {
		w.log.Warn("attach failed", "slot", slotID, "path", socketPath, "err", err)
		return
	}

	if err := ep.Handshake(); err != nil {
		w.log.Warn("handshake failed", "slot", slotID, "err", err)
		ep.Close(err)
		return
	}

	metrics.AttachTotal.Inc()
	w.reg.Attach(ep)
	if w.onAttach != nil {
		w.onAttach(ep)
	}
}

// parseSlotName reports whether name matches the slot-<N> prefix spec.md
// §6 defines, returning the parsed slot id.
func parseSlotName(name string) (int, bool) {
	if !strings.HasPrefix(name, "slot-") {
		return 0, false
	}
	slotID, err := client.ParseSlotID(name)
	if err != nil {
		return 0, false
	}
	return slotID, true
}
