package metrics

// Metrics holds searcher token consumption for a time period.
type Metrics struct {
	tokens           int64
	costMillidollars int64
}

// New creates a Metrics snapshot.
func New(tokens, costMillidollars int64) Metrics {
	return Metrics{tokens: tokens, costMillidollars: costMillidollars}
}

// Tokens returns the total tokens consumed.
func (m Metrics) Tokens() int64 { return m.tokens }

// CostMillidollars returns cost in millidollars (1 USD = 1000).
func (m Metrics) CostMillidollars() int64 { return m.costMillidollars }

// CostFor converts tokens into millidollars at a price per million tokens.
func CostFor(tokens int64, costPerMillion float64) int64 {
	if costPerMillion <= 0 || tokens <= 0 {
		return 0
	}
	return int64(float64(tokens) * costPerMillion / 1000)
}
