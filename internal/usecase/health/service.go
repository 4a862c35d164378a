package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the searcher is failing; cached answers still work.
	Degraded Status = "degraded"
	// Unhealthy indicates the store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names used in Report.Checks.
const (
	ComponentStore    = "store"
	ComponentSearcher = "searcher"
)

const defaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store    StorePinger
	searcher SearcherChecker
	timeout  time.Duration
}

// New creates a Service. searcher can be nil when the searcher exposes no check.
func New(store StorePinger, searcher SearcherChecker) *Service {
	return &Service{store: store, searcher: searcher, timeout: defaultCheckTimeout}
}

// Check runs the component checks in parallel, each bounded by the check timeout.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, 2)
	)
	run := func(name string, fn func(context.Context) error) {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		res := CheckOK
		if err := fn(cctx); err != nil {
			res = CheckError
		}
		mu.Lock()
		checks[name] = res
		mu.Unlock()
	}

	wg.Add(1)
	go run(ComponentStore, s.store.Ping)
	if s.searcher != nil {
		wg.Add(1)
		go run(ComponentSearcher, s.searcher.HealthCheck)
	}
	wg.Wait()

	status := Healthy
	switch {
	case checks[ComponentStore] == CheckError:
		status = Unhealthy
	case checks[ComponentSearcher] == CheckError:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}
