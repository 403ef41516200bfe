// Package metrics declares the prometheus counters/gauges SPEC_FULL.md §4
// adds as ambient observability: attach/detach/focus/regulator/protocol
// counters, mirroring how the pack's Jeeves-Cluster-Organization-jeeves-core
// repo exposes its own registry metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AttachTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qips_attach_total",
		Help: "Total number of client endpoints attached.",
	})

	DetachTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qips_detach_total",
		Help: "Total number of client endpoints detached, by reason.",
	}, []string{"reason"})

	FocusTransitionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qips_focus_transition_total",
		Help: "Total number of focus transitions performed.",
	})

	RegulatorInflight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qips_regulator_inflight",
		Help: "Number of outbound messages queued per endpoint (0 or 1 in flight, remainder queued).",
	}, []string{"slot"})

	ProtocolViolationTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qips_protocol_violation_total",
		Help: "Total number of malformed frames or id-mismatched responses observed.",
	})
)

// Serve starts a blocking HTTP server exposing /metrics on addr, the same
// promhttp.Handler() wiring the pack's sibling repos use for their own
// registries.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
