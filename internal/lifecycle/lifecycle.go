// Package lifecycle orchestrates qipsd's startup ordering, privileged
// host-client seeding, and teardown (C7 in spec.md §2), grounded on
// cmd/aegisd/main.go's ordered startup/shutdown sequence and its
// signal.Notify(syscall.SIGTERM, syscall.SIGINT) pattern.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/xfeldman/qips/internal/adapter"
	"github.com/xfeldman/qips/internal/client"
	"github.com/xfeldman/qips/internal/config"
	"github.com/xfeldman/qips/internal/discovery"
	"github.com/xfeldman/qips/internal/event"
	"github.com/xfeldman/qips/internal/registry"
)

// Manager owns the daemon's top-level startup and teardown sequence.
type Manager struct {
	cfg *config.Config
	log *slog.Logger

	backend  adapter.ConsoleBackend
	frontend adapter.ConsoleFrontend
	input    adapter.InputBackend

	idCounter int64

	Registry *registry.Registry
	Pipeline *event.Pipeline
	watcher  *discovery.Watcher
}

// New constructs a Manager. The host (slot 0) endpoint is synthetic — it
// has no backing socket (spec.md §6) — so it is built here directly
// rather than via client.Dial.
func New(cfg *config.Config, backend adapter.ConsoleBackend, frontend adapter.ConsoleFrontend, input adapter.InputBackend, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		cfg:      cfg,
		log:      log,
		backend:  backend,
		frontend: frontend,
		input:    input,
	}

	host := client.New(0, "", newHostConn(), &m.idCounter, client.WithLogger(log))
	m.Registry = registry.New(host, backend, frontend, log)
	m.Registry.WireHostLeds(host)
	m.Registry.SetKbdResetTimeout(cfg.RegulatorTimeout)
	m.Pipeline = event.NewPipeline(m.Registry)
	m.watcher = discovery.New(cfg.SocketDir, m.Registry, &m.idCounter, discovery.WithLogger(log))

	return m
}

// SetInputBackend wires the input backend after construction, for callers
// that need m.Pipeline (built inside New) to construct their backend — the
// evdev backend takes the pipeline as its Sink. Must be called before Start.
func (m *Manager) SetInputBackend(input adapter.InputBackend) {
	m.input = input
}

// Start runs the startup sequence of SPEC_FULL.md §3.7: seed slot-0 (done
// in New) → init adapters → start discovery → return, leaving discovery's
// watch running in the background until ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.backend.Init(); err != nil {
		return fmt.Errorf("init console backend: %w", err)
	}
	if err := m.frontend.Init(); err != nil {
		return fmt.Errorf("init console frontend: %w", err)
	}
	if err := m.input.Init(); err != nil {
		return fmt.Errorf("init input backend: %w", err)
	}

	go func() {
		if err := m.watcher.Run(ctx); err != nil {
			m.log.Error("discovery watcher stopped", "err", err)
		}
	}()

	m.log.Info("qipsd ready", "socket_dir", m.cfg.SocketDir)
	return nil
}

// Teardown releases the console, closes every attached endpoint's socket,
// and cleans up all three adapters, per spec.md §5's termination contract:
// "(a) releases the console, (b) closes all sockets, (c) calls cleanup()
// on all adapters."
func (m *Manager) Teardown() {
	if err := m.backend.Release(); err != nil {
		m.log.Warn("console release during teardown failed", "err", err)
	}

	for _, ep := range m.Registry.Snapshot() {
		if ep.SlotID != 0 {
			ep.Close(nil)
		}
	}

	for name, cleanup := range map[string]func() error{
		"console backend":  m.backend.Cleanup,
		"console frontend": m.frontend.Cleanup,
		"input backend":    m.input.Cleanup,
	} {
		if err := cleanup(); err != nil {
			m.log.Warn("adapter cleanup failed", "adapter", name, "err", err)
		}
	}
}

// RunUntilSignal blocks until SIGTERM or SIGINT, then runs Teardown,
// mirroring cmd/aegisd/main.go's shutdown sequence.
func (m *Manager) RunUntilSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		m.log.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	m.Teardown()
}
