package client

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// UsagePeriod is the aggregation granularity for usage reports.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
	PeriodTotal UsagePeriod = "total"
)

// UsageReport contains the token consumption of the built-in searcher.
type UsageReport struct {
	Period      UsagePeriod
	Scope       string
	PeriodStart time.Time // zero for PeriodTotal
	PeriodEnd   time.Time
	Tokens      int64
	// CostMillidollars is zero when the service has no token price configured.
	CostMillidollars int64
	Budget           BudgetStatus
}

// BudgetStatus tracks token quota state. TokensRemaining is -1 when no limit applies.
type BudgetStatus struct {
	TokensLimit     int64
	TokensRemaining int64
	IsExhausted     bool
	ResetsAt        time.Time
}

// Usage fetches the searcher usage report. Services without a searcher
// budget do not serve it.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) (report UsageReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, err) }()

	var body struct {
		Period        string     `json:"period"`
		Scope         string     `json:"scope"`
		PeriodStartAt *time.Time `json:"period_start_at"`
		PeriodEndAt   *time.Time `json:"period_end_at"`
		Usage         struct {
			Tokens           int64  `json:"tokens"`
			CostMillidollars *int64 `json:"cost_millidollars"`
		} `json:"usage"`
		Budget struct {
			TokensLimit     int64      `json:"tokens_limit"`
			TokensRemaining int64      `json:"tokens_remaining"`
			IsExhausted     bool       `json:"is_exhausted"`
			ResetsAt        *time.Time `json:"resets_at"`
		} `json:"budget"`
	}

	path := "/usage"
	if period != "" {
		path += "?" + url.Values{"period": {string(period)}}.Encode()
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &body); err != nil {
		return UsageReport{}, err
	}

	report = UsageReport{
		Period: UsagePeriod(body.Period),
		Scope:  body.Scope,
		Tokens: body.Usage.Tokens,
		Budget: BudgetStatus{
			TokensLimit:     body.Budget.TokensLimit,
			TokensRemaining: body.Budget.TokensRemaining,
			IsExhausted:     body.Budget.IsExhausted,
		},
	}
	if body.Usage.CostMillidollars != nil {
		report.CostMillidollars = *body.Usage.CostMillidollars
	}
	if body.PeriodStartAt != nil {
		report.PeriodStart = *body.PeriodStartAt
	}
	if body.PeriodEndAt != nil {
		report.PeriodEnd = *body.PeriodEndAt
	}
	if body.Budget.ResetsAt != nil {
		report.Budget.ResetsAt = *body.Budget.ResetsAt
	}
	return report, nil
}
