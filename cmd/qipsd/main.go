// qipsd is the host-side input proxy and focus switcher daemon: it watches
// a directory of guest control sockets, dials each one as it appears,
// and routes host input to whichever guest currently holds focus.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/xfeldman/qips/internal/adapter"
	"github.com/xfeldman/qips/internal/adapter/evdev"
	"github.com/xfeldman/qips/internal/adapter/uiwatch"
	"github.com/xfeldman/qips/internal/adapter/vt"
	"github.com/xfeldman/qips/internal/config"
	"github.com/xfeldman/qips/internal/lifecycle"
	"github.com/xfeldman/qips/internal/logging"
	"github.com/xfeldman/qips/internal/metrics"
	"github.com/xfeldman/qips/internal/telemetry"
	"github.com/xfeldman/qips/internal/version"
)

func main() {
	cfg := config.DefaultConfig()

	flag.StringVar(&cfg.SocketDir, "socket-dir", cfg.SocketDir, "directory scanned and watched for slot-<N> sockets")
	flag.DurationVar(&cfg.RegulatorTimeout, "regulator-timeout", cfg.RegulatorTimeout, "per-message wait bound during focus transitions (0 waits indefinitely)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on (empty disables)")
	flag.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP gRPC endpoint for tracing (empty disables)")
	flag.StringVar(&cfg.UIWatchAddr, "uiwatch-addr", cfg.UIWatchAddr, "address to serve the debug live-state websocket on (empty disables)")
	flag.StringVar(&cfg.ConsoleBackend, "console-backend", cfg.ConsoleBackend, `console backend: "vt" or "none"`)
	flag.StringVar(&cfg.InputBackend, "input-backend", cfg.InputBackend, `input backend: "evdev" or "none"`)
	ttyPath := flag.String("tty", "/dev/tty0", "VT device path for the console backend")
	vtBase := flag.Int("vt-base", 1, "virtual terminal number the host (slot 0) occupies; guest slot N occupies vt-base+N")
	inputPath := flag.String("input-device", "/dev/input/event0", "evdev device path for the input backend")
	debug := flag.Bool("debug", false, "enable debug-level logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.BoolVar(&cfg.Color, "color", cfg.Color, "colorize log output")
	flag.Parse()
	if *showVersion {
		fmt.Println("qipsd " + version.Version())
		return
	}
	cfg.Debug = *debug

	log := logging.New(cfg.Debug, cfg.Color)

	if err := cfg.EnsureDirs(); err != nil {
		log.Error("create socket directory", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint)
	if err != nil {
		log.Error("setup tracing", "err", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	var backend adapter.ConsoleBackend = &adapter.NoopBackend{}
	var frontend adapter.ConsoleFrontend = adapter.NoopFrontend{}
	if cfg.ConsoleBackend == "vt" {
		backend = vt.New(*ttyPath)
		frontend = vt.NewFrontend(*ttyPath, *vtBase)
	}

	m := lifecycle.New(cfg, backend, frontend, nil, log)

	var input adapter.InputBackend = adapter.NoopInput{}
	if cfg.InputBackend == "evdev" {
		input = evdev.New(*inputPath, m.Pipeline)
	}
	m.SetInputBackend(input)

	if cfg.UIWatchAddr != "" {
		hub := uiwatch.NewHub(log)
		m.Registry.OnFocus(func(slotID int) {
			hub.Broadcast(uiwatch.Event{Kind: "focus", SlotID: slotID})
		})
		mux := http.NewServeMux()
		mux.Handle("/", hub)
		go func() {
			if err := http.ListenAndServe(cfg.UIWatchAddr, mux); err != nil {
				log.Warn("uiwatch server stopped", "err", err)
			}
		}()
	}

	if err := m.Start(ctx); err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "qipsd started, watching %s\n", cfg.SocketDir)
	m.RunUntilSignal(ctx)
}
