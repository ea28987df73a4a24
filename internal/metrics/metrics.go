// Package metrics registers the Prometheus series exposed at /metrics.
//
//   - copy_dispatch_total{strategy_id,result}        – dispatch attempts by outcome
//   - copy_dispatch_errors_total{strategy_id,reason} – dispatch errors by reason
//   - copy_dispatch_latency_seconds                  – ledger submission latency
//   - copy_executor_disabled / copy_executor_up      – operator-facing gauges
//   - copy_missing_symbol_rules_total{strategy_id,symbol} – debounced per symbol
//   - copy_circuit_open{name}                        – breaker state (1 = open)
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Dispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copy_dispatch_total",
			Help: "Total copy-dispatch attempts",
		},
		[]string{"strategy_id", "result"},
	)

	DispatchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copy_dispatch_errors_total",
			Help: "Copy-dispatch errors",
		},
		[]string{"strategy_id", "reason"},
	)

	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copy_dispatch_latency_seconds",
			Help:    "Copy-dispatch latency",
			Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5},
		},
	)

	Disabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "copy_executor_disabled",
			Help: "Whether the copy dispatcher is disabled (1=yes,0=no)",
		},
	)

	Up = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "copy_executor_up",
			Help: "Copy dispatcher up (1 = running)",
		},
	)

	MissingSymbolRules = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copy_missing_symbol_rules_total",
			Help: "Number of times a trade referenced a symbol with no rules",
		},
		[]string{"strategy_id", "symbol"},
	)

	CircuitOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "copy_circuit_open",
			Help: "Whether a circuit breaker is open (1 = open)",
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(Dispatch, DispatchErrors, DispatchLatency)
	prometheus.MustRegister(Disabled, Up, MissingSymbolRules, CircuitOpen)
}
