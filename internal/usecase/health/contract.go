package health

import "context"

// StorePinger checks that the persistent store answers.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// SearcherChecker checks that the searcher's upstream answers.
type SearcherChecker interface {
	HealthCheck(ctx context.Context) error
}
