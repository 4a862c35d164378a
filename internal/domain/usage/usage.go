package usage

import (
	"fmt"

	"github.com/kailas-cloud/asynccts/internal/domain/usage/budget"
	"github.com/kailas-cloud/asynccts/internal/domain/usage/metrics"
)

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodTotal Period = "total"
)

// ParsePeriod validates a period name. Empty means month.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return PeriodMonth, nil
	case PeriodDay, PeriodMonth, PeriodTotal:
		return p, nil
	default:
		return "", fmt.Errorf("unknown usage period %q", s)
	}
}

// Report is a searcher usage report for a time period.
type Report struct {
	period      Period
	periodStart int64
	periodEnd   int64
	scope       string
	metrics     metrics.Metrics
	budget      budget.Budget
}

// NewReport creates a usage report. scope is the service id the counters belong to.
func NewReport(period Period, start, end int64, scope string, m metrics.Metrics, b budget.Budget) Report {
	return Report{
		period:      period,
		periodStart: start,
		periodEnd:   end,
		scope:       scope,
		metrics:     m,
		budget:      b,
	}
}

// Period returns the aggregation granularity.
func (r *Report) Period() Period { return r.period }

// PeriodStart returns the period start timestamp (unix millis).
func (r *Report) PeriodStart() int64 { return r.periodStart }

// PeriodEnd returns the period end timestamp (unix millis).
func (r *Report) PeriodEnd() int64 { return r.periodEnd }

// Scope returns the service id of the report.
func (r *Report) Scope() string { return r.scope }

// Metrics returns the usage metrics.
func (r *Report) Metrics() metrics.Metrics { return r.metrics }

// Budget returns the budget status.
func (r *Report) Budget() budget.Budget { return r.budget }
