package monitor

import (
	"time"

	"riskgate/risk"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Decision metrics
	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_verdicts_total",
			Help: "Total number of decisions by verdict",
		},
		[]string{"verdict"},
	)

	reasonsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_decision_reasons_total",
			Help: "Total number of decisions by final reason code",
		},
		[]string{"reason"},
	)

	// Cycle metrics
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "riskgate_cycle_duration_seconds",
			Help:    "Wall time of one evaluation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	executedPerCycle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskgate_executed_trades_last_cycle",
			Help: "Executable decisions in the most recent cycle",
		},
	)

	activeCooldowns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskgate_active_cooldowns",
			Help: "Tickers currently blocked from re-entry",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(verdictsTotal)
	prometheus.MustRegister(reasonsTotal)
	prometheus.MustRegister(cycleDuration)
	prometheus.MustRegister(executedPerCycle)
	prometheus.MustRegister(activeCooldowns)
	prometheus.MustRegister(errorsTotal)

	// Export zeros for every code so dashboards see the full taxonomy from the start.
	for _, v := range []risk.Verdict{risk.Accept, risk.Reject, risk.Resize} {
		verdictsTotal.WithLabelValues(string(v))
	}
	for _, r := range risk.AllReasons {
		reasonsTotal.WithLabelValues(string(r))
	}
}

// RecordDecision counts one decision.
func RecordDecision(d risk.Decision) {
	verdictsTotal.WithLabelValues(string(d.Verdict)).Inc()
	reasonsTotal.WithLabelValues(string(d.Reason)).Inc()
}

// ObserveCycle records a completed cycle.
func ObserveCycle(elapsed time.Duration, executed int) {
	cycleDuration.Observe(elapsed.Seconds())
	executedPerCycle.Set(float64(executed))
}

func SetActiveCooldowns(n int) {
	activeCooldowns.Set(float64(n))
}

// RecordError records an error metric. Types in use: order, journal, snapshot, proposer, state.
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
