package budget

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/asynccts/internal/domain/hit"
	domsearch "github.com/kailas-cloud/asynccts/internal/domain/search"
	"github.com/kailas-cloud/asynccts/internal/metrics"
)

// UsageSearcher is a searcher that reports the tokens each search consumed.
type UsageSearcher interface {
	SearchWithUsage(ctx context.Context, req domsearch.Request) (*hit.Hit, int64, error)
}

// Checker is the budget enforcement side of a Tracker.
type Checker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedSearcher enforces a token budget around a UsageSearcher.
// Transport metrics (requests, duration, tokens) stay in transport/openai.
type InstrumentedSearcher struct {
	inner  UsageSearcher
	scope  string
	model  string
	budget Checker
	logger *zap.Logger
}

// NewInstrumentedSearcher wraps inner with budget enforcement. budget may be nil.
func NewInstrumentedSearcher(
	inner UsageSearcher, scope, model string,
	budget Checker, logger *zap.Logger,
) *InstrumentedSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedSearcher{
		inner:  inner,
		scope:  scope,
		model:  model,
		budget: budget,
		logger: logger,
	}
}

// Search checks the budget, delegates, and records the tokens spent even when
// the searcher failed after the model answered.
func (p *InstrumentedSearcher) Search(ctx context.Context, req domsearch.Request) (*hit.Hit, error) {
	if p.budget != nil {
		if err := p.budget.Check(ctx); err != nil {
			p.logger.Error("Budget exceeded",
				zap.String("scope", p.scope),
				zap.String("model", p.model),
				zap.Error(err),
			)
			return nil, fmt.Errorf("budget check: %w", err)
		}
	}

	start := time.Now()
	h, tokens, err := p.inner.SearchWithUsage(ctx, req)
	duration := time.Since(start)

	if p.budget != nil && tokens > 0 {
		p.budget.Record(tokens)
		remaining := metrics.SearcherBudgetTokensRemaining
		remaining.WithLabelValues(p.scope, "daily").Set(float64(p.budget.RemainingDaily()))
		remaining.WithLabelValues(p.scope, "monthly").Set(float64(p.budget.RemainingMonthly()))
	}

	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	p.logger.Debug("Budgeted search completed",
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int64("tokens", tokens),
	)
	return h, nil
}

// HealthCheck forwards to the inner searcher when it supports it.
func (p *InstrumentedSearcher) HealthCheck(ctx context.Context) error {
	hc, ok := p.inner.(interface{ HealthCheck(context.Context) error })
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("searcher health check: %w", err)
	}
	return nil
}
