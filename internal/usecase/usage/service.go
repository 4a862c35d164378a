package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/asynccts/internal/domain/usage"
	"github.com/kailas-cloud/asynccts/internal/domain/usage/budget"
	"github.com/kailas-cloud/asynccts/internal/domain/usage/metrics"
)

// Service handles usage reporting.
type Service struct {
	br             BudgetReader
	scope          string
	costPerMillion float64
}

// New creates a Service. br can be nil when the searcher has no budget.
func New(br BudgetReader, scope string, costPerMillion float64) *Service {
	return &Service{br: br, scope: scope, costPerMillion: costPerMillion}
}

// GetReport builds a usage report for the given period.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := time.Now().UTC()
	var start, end int64
	var limit, used int64
	remaining := int64(-1)

	switch period {
	case domusage.PeriodDay:
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		start = dayStart.UnixMilli()
		end = dayStart.Add(24 * time.Hour).UnixMilli()
		if s.br != nil {
			limit = s.br.DailyLimit()
			used = s.br.DailyUsed()
			remaining = s.br.RemainingDaily()
		}
	case domusage.PeriodMonth:
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start = monthStart.UnixMilli()
		end = monthStart.AddDate(0, 1, 0).UnixMilli()
		if s.br != nil {
			limit = s.br.MonthlyLimit()
			used = s.br.MonthlyUsed()
			remaining = s.br.RemainingMonthly()
		}
	default:
		// total: counters only live for a month, so it reports the monthly budget unbounded
		if s.br != nil {
			limit = s.br.MonthlyLimit()
			used = s.br.MonthlyUsed()
			remaining = s.br.RemainingMonthly()
		}
	}

	exhausted := limit > 0 && remaining <= 0

	b := budget.New(limit, remaining, exhausted, end)
	m := metrics.New(used, metrics.CostFor(used, s.costPerMillion))

	return domusage.NewReport(period, start, end, s.scope, m, b)
}
