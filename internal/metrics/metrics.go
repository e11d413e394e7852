// Package metrics holds the Prometheus collectors of the scanner and the
// small ops HTTP server that exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "densityscanner"

// SymbolScans counts finished symbol scans by result (ok, error, skipped).
var SymbolScans = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "symbol_scans_total",
		Help:      "Symbol scans by exchange and result",
	},
	[]string{"exchange", "result"},
)

// FetchErrors counts failed order book fetch attempts by error kind.
var FetchErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "fetch_errors_total",
		Help:      "Failed order book fetch attempts by exchange and kind",
	},
	[]string{"exchange", "kind"},
)

var AlertDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "decisions_total",
		Help:      "Anti-spam decisions by exchange and reason",
	},
	[]string{"exchange", "reason"},
)

// AlertsDropped counts alerts discarded because the delivery queue was full.
var AlertsDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "dropped_total",
		Help:      "Alerts dropped on a full delivery queue",
	},
)

var StreamReconnects = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "reconnects_total",
		Help:      "Order book stream reconnect attempts by exchange",
	},
	[]string{"exchange"},
)

var TrackedDensities = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "tracked_densities",
		Help:      "Densities currently tracked for lifetime",
	},
)

var InflightScans = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "inflight_scans",
		Help:      "Symbol scans currently running per exchange",
	},
	[]string{"exchange"},
)

// PassDuration observes how long one REST pass over an exchange takes.
var PassDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "pass_duration_seconds",
		Help:      "Duration of a full REST pass per exchange",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	},
	[]string{"exchange"},
)
