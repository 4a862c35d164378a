package metrics

import "github.com/prometheus/client_golang/prometheus"

// Searcher transport metrics, recorded by the built-in LLM searcher.
var (
	SearcherRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searcher_requests_total",
			Help:      "Total number of searcher API requests",
		},
		[]string{"model", "status"},
	)

	SearcherRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "searcher_request_duration_seconds",
			Help:      "Searcher API request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	SearcherTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searcher_tokens_total",
			Help:      "Tokens consumed by the searcher",
		},
		[]string{"model", "kind"}, // kind: prompt, completion
	)

	SearcherErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searcher_errors_total",
			Help:      "Searcher failures by kind",
		},
		[]string{"model", "kind"}, // kind: api_error, empty_response, invalid_output, rate_limit_wait
	)

	SearcherBudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "searcher_budget_tokens_remaining",
			Help:      "Tokens left in the searcher budget (-1 = unlimited)",
		},
		[]string{"scope", "period"}, // period: daily, monthly
	)
)
