// Package metrics exposes the controller's Prometheus series, served at
// /metrics by the status API in the text exposition format.
//
//   - controller_decisions_total{outcome}  – admission verdicts by outcome
//   - controller_slots_active              – current slot counter (gauge)
//   - controller_circuit_level{level}      – active circuit level as 0/1 series
//   - controller_trims_total               – trim-and-switch executions
//   - controller_risk_reductions_total     – sizings shrunk to portfolio headroom
//   - controller_tick_duration_seconds     – tick latency histogram
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controller_decisions_total",
			Help: "Admission verdicts by outcome",
		},
		[]string{"outcome"},
	)

	SlotsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controller_slots_active",
			Help: "Current slot counter value",
		},
	)

	// One labeled series per level, flipped between 0/1 so dashboards
	// stay simple.
	CircuitLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "controller_circuit_level",
			Help: "Active circuit breaker level as 0/1 labeled series",
		},
		[]string{"level"},
	)

	Trims = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "controller_trims_total",
			Help: "Trim-and-switch executions",
		},
	)

	RiskReductions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "controller_risk_reductions_total",
			Help: "Sizings reduced to portfolio risk headroom",
		},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "controller_tick_duration_seconds",
			Help:    "Wall time of a full tick",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register installs all series on the default registry. Called once at
// startup.
func Register() {
	prometheus.MustRegister(
		Decisions,
		SlotsActive,
		CircuitLevel,
		Trims,
		RiskReductions,
		TickDuration,
	)
}

// SetCircuitLevel flips the level gauge series so exactly one reads 1.
func SetCircuitLevel(active string) {
	for _, level := range []string{"NONE", "L1", "L2", "L3"} {
		v := 0.0
		if level == active {
			v = 1.0
		}
		CircuitLevel.WithLabelValues(level).Set(v)
	}
}
