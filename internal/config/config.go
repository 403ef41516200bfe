// Package config holds qipsd's runtime configuration, following the
// teacher's internal/config/config.go pattern: a plain struct, a
// DefaultConfig constructor, and an EnsureDirs helper called once at
// startup.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds qipsd runtime configuration.
type Config struct {
	// SocketDir is the directory scanned and watched for slot-<N> sockets
	// (spec.md §6, default "/var/run/qips").
	SocketDir string

	// RegulatorTimeout bounds how long a focus transition waits for the
	// departing endpoint's send-kbd-reset response; other requests are not
	// bounded by it. Zero (the default) means wait indefinitely, matching
	// spec.md §5's "no per-message timeout in the core" — SPEC_FULL.md §4
	// makes this an opt-in override.
	RegulatorTimeout time.Duration

	// MetricsAddr, if non-empty, serves Prometheus metrics at /metrics.
	MetricsAddr string

	// OTelEndpoint, if non-empty, exports traces via OTLP gRPC to this
	// address. Empty means a no-op tracer.
	OTelEndpoint string

	// UIWatchAddr, if non-empty, serves the debug websocket live-state
	// broadcast at this address.
	UIWatchAddr string

	// ConsoleBackend and InputBackend select the concrete adapter
	// implementation ("vt"/"none" and "evdev"/"none" respectively).
	ConsoleBackend string
	InputBackend   string

	// Debug gates slog.LevelDebug, the level of the debug records spec.md
	// §2 assigns to C9.
	Debug bool

	// Color controls whether the tint log handler emits ANSI color.
	Color bool
}

// DefaultConfig returns qipsd's default configuration.
func DefaultConfig() *Config {
	return &Config{
		SocketDir:      "/var/run/qips",
		ConsoleBackend: "vt",
		InputBackend:   "evdev",
		Color:          true,
	}
}

// EnsureDirs creates SocketDir if it does not already exist. The directory
// is expected to be created by whatever supervises the guest harnesses in
// production, but qipsd tolerates creating it itself for local testing.
func (c *Config) EnsureDirs() error {
	return os.MkdirAll(c.SocketDir, 0755)
}

// SlotSocketPath returns the well-known path for a given slot id.
func (c *Config) SlotSocketPath(slotID int) string {
	return filepath.Join(c.SocketDir, "slot-"+strconv.Itoa(slotID))
}
