package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "asynccts"

// Submit outcomes.
const (
	SubmitCached   = "cached"
	SubmitActive   = "active"
	SubmitLaunched = "launched"
)

// Search completion outcomes.
const (
	SearchHit     = "hit"
	SearchFailed  = "failed"
	SearchInvalid = "invalid"
)

// Search coordinator Prometheus metrics.
var (
	SubmitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submits_total",
			Help:      "Submit decisions by outcome",
		},
		[]string{"outcome"},
	)

	SearchesCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Finished searches by outcome",
		},
		[]string{"outcome"},
	)

	SearchesInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "searches_inflight",
			Help:      "Searches launched by this process and not yet completed",
		},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Searcher run time in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	IntegrityErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_errors_total",
			Help:      "Detected violations of the active/result store invariants",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

// Register registers all metrics with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			SubmitsTotal,
			SearchesCompletedTotal,
			SearchesInflight,
			SearchDuration,
			IntegrityErrorsTotal,
			SearcherRequestsTotal,
			SearcherRequestDuration,
			SearcherTokensTotal,
			SearcherErrorsTotal,
			SearcherBudgetTokensRemaining,
		)
	})
}
