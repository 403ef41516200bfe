// Package logging builds the daemon's shared slog.Logger. It generalizes
// the colorized handler cmd/aegis-ui confines to the UI binary into the
// daemon's own logger, per SPEC_FULL.md §1.
package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// New builds a tint-backed slog.Logger writing to stderr. debug raises the
// level to slog.LevelDebug, enabling Debug-level records such as
// internal/client's "unhandled event" log (spec.md §2's C9 "debug
// macros"); internal/protocol and internal/event do not log.
func New(debug, color bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		NoColor:    !color,
		TimeFormat: "15:04:05.000",
	})
	return slog.New(h)
}
