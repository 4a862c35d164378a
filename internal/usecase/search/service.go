package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/asynccts/internal/domain"
	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
	"github.com/kailas-cloud/asynccts/internal/domain/hit"
	domsearch "github.com/kailas-cloud/asynccts/internal/domain/search"
	"github.com/kailas-cloud/asynccts/internal/metrics"
)

// Service coordinates searches: it answers from the result cache, reports
// running searches, and launches new ones in the background.
type Service struct {
	repo     Repository
	searcher Searcher
	cfg      domain.ServiceConfig
	logger   *zap.Logger

	locks *keyLock
	wg    sync.WaitGroup
}

// New creates a search coordinator.
func New(repo Repository, searcher Searcher, cfg domain.ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{repo: repo, searcher: searcher, cfg: cfg, logger: logger}
	if cfg.SerializeSubmits {
		s.locks = newKeyLock()
	}
	return s
}

// Prepare initializes the store schema and, when purge is set, removes the
// active searches left behind by a previous process. They can never complete.
func (s *Service) Prepare(ctx context.Context, purge bool) error {
	if err := s.repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if !purge {
		return nil
	}
	n, err := s.repo.PurgeActive(ctx)
	if err != nil {
		return fmt.Errorf("purge active searches: %w", err)
	}
	if n > 0 {
		s.logger.Warn("Purged stale active searches", zap.Int("count", n))
	}
	return nil
}

// Capabilities reports what the service accepts.
func (s *Service) Capabilities() domsearch.Capabilities {
	return domsearch.Capabilities{SupportsAttachments: s.cfg.UploadsEnabled}
}

// Submit answers a search request: the cached result when one is live, the
// running search when one exists, or a freshly launched search otherwise.
// The attachment is owned by Submit from here on.
func (s *Service) Submit(ctx context.Context, req domsearch.Request) (domsearch.Response, error) {
	launched := false
	defer func() {
		if !launched {
			s.release(req)
		}
	}()

	if err := req.Artifact.Validate(); err != nil {
		return domsearch.Response{}, err
	}
	if req.Attachment != nil && !s.cfg.UploadsEnabled {
		return domsearch.Response{}, domain.ErrAttachmentsUnsupported
	}
	if req.Attachment != nil && s.cfg.MaxUploadSize > 0 && req.Attachment.Size > s.cfg.MaxUploadSize {
		return domsearch.Response{}, domain.ErrPayloadTooLarge
	}

	if s.locks != nil {
		unlock := s.locks.Lock(req.Artifact)
		defer unlock()
	}

	results, active, found, err := s.lookupArtifact(ctx, req.Artifact)
	if err != nil {
		return domsearch.Response{}, err
	}

	if r, ok := domsearch.Newest(results); ok {
		metrics.SubmitsTotal.WithLabelValues(metrics.SubmitCached).Inc()
		s.logger.Info("Returning cached result",
			zap.String("search_id", r.SearchID()),
			zap.Stringer("artifact", req.Artifact),
		)
		return domsearch.NewHitsResponse(r.SearchID(), r.Hit())
	}

	if found {
		metrics.SubmitsTotal.WithLabelValues(metrics.SubmitActive).Inc()
		s.logger.Info("Search already running",
			zap.String("search_id", active.ID()),
			zap.Stringer("artifact", req.Artifact),
		)
		return domsearch.NewPendingResponse(active.ID(), s.cfg.RetrySecs)
	}

	created, err := s.repo.CreateActive(ctx, req.Artifact)
	if err != nil {
		return domsearch.Response{}, fmt.Errorf("create active search: %w", err)
	}
	resp, err := domsearch.NewPendingResponse(created.ID(), s.cfg.RetrySecs)
	if err != nil {
		return domsearch.Response{}, err
	}

	launched = true
	s.launch(ctx, created.ID(), req)
	metrics.SubmitsTotal.WithLabelValues(metrics.SubmitLaunched).Inc()
	s.logger.Info("Search launched",
		zap.String("search_id", created.ID()),
		zap.Stringer("artifact", req.Artifact),
	)
	return resp, nil
}

// lookupArtifact reads the result cache and the active searches concurrently.
func (s *Service) lookupArtifact(
	ctx context.Context, key artifact.Key,
) ([]domsearch.Result, domsearch.ActiveSearch, bool, error) {
	lookup := domsearch.ByArtifact(key)

	var (
		wg        sync.WaitGroup
		results   []domsearch.Result
		resultErr error
		active    domsearch.ActiveSearch
		found     bool
		activeErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results, resultErr = s.repo.FindResults(ctx, lookup)
	}()
	go func() {
		defer wg.Done()
		active, found, activeErr = s.repo.FindActive(ctx, lookup)
	}()
	wg.Wait()

	if resultErr != nil {
		return nil, domsearch.ActiveSearch{}, false, fmt.Errorf("find results: %w", resultErr)
	}
	if activeErr != nil {
		return nil, domsearch.ActiveSearch{}, false, fmt.Errorf("find active search: %w", activeErr)
	}
	return results, active, found, nil
}

// Poll reports the state of search id.
func (s *Service) Poll(ctx context.Context, id string) (domsearch.Response, error) {
	lookup := domsearch.ByID(id)
	if err := lookup.Validate(); err != nil {
		return domsearch.Response{}, err
	}

	active, found, err := s.repo.FindActive(ctx, lookup)
	if err != nil {
		return domsearch.Response{}, fmt.Errorf("find active search: %w", err)
	}
	if found {
		return domsearch.NewPendingResponse(active.ID(), s.cfg.RetrySecs)
	}

	results, err := s.repo.FindResults(ctx, lookup)
	if err != nil {
		return domsearch.Response{}, fmt.Errorf("find results: %w", err)
	}

	r, ok := domsearch.Newest(results)
	if !ok {
		metrics.IntegrityErrorsTotal.WithLabelValues("unknown_search_id").Inc()
		s.logger.Error("Search id is neither active nor resulted", zap.String("search_id", id))
		return domsearch.Response{}, domain.NewIntegrityError(id, domain.ErrUnknownSearchID)
	}
	if len(results) > 1 {
		metrics.IntegrityErrorsTotal.WithLabelValues("multiple_results").Inc()
		s.logger.Error("Multiple results for search id",
			zap.String("search_id", id),
			zap.Int("count", len(results)),
			zap.Time("selected_found_at", r.FoundAt()),
			zap.Error(domain.NewIntegrityError(id, domain.ErrMultipleResults)),
		)
	}
	return domsearch.NewHitsResponse(id, r.Hit())
}

// Wait blocks until every launched search has completed or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for searches: %w", ctx.Err())
	}
}

// launch runs the searcher in the background. The search outlives the
// request that triggered it.
func (s *Service) launch(ctx context.Context, id string, req domsearch.Request) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	metrics.SearchesInflight.Inc()
	go func() {
		defer s.wg.Done()
		defer metrics.SearchesInflight.Dec()
		s.run(ctx, id, req)
	}()
}

func (s *Service) run(ctx context.Context, id string, req domsearch.Request) {
	start := time.Now()
	h, err := s.search(ctx, req)
	duration := time.Since(start)

	s.release(req)

	outcome := metrics.SearchHit
	switch {
	case errors.Is(err, domain.ErrInvalidSearcherReturn):
		outcome = metrics.SearchInvalid
		s.logger.Error("Searcher returned no hit and no error",
			zap.String("search_id", id),
			zap.Stringer("artifact", req.Artifact),
		)
	case err != nil:
		outcome = metrics.SearchFailed
		s.logger.Error("Search failed",
			zap.String("search_id", id),
			zap.Stringer("artifact", req.Artifact),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	}
	if err != nil {
		h = hit.Empty()
	}
	metrics.SearchesCompletedTotal.WithLabelValues(outcome).Inc()
	metrics.SearchDuration.WithLabelValues(outcome).Observe(duration.Seconds())

	s.complete(ctx, id, req.Artifact, h)
}

// search calls the searcher, turning panics and nil hits into errors.
func (s *Service) search(ctx context.Context, req domsearch.Request) (h *hit.Hit, err error) {
	defer func() {
		if p := recover(); p != nil {
			h, err = nil, fmt.Errorf("%w: panic: %v", domain.ErrSearcherFailed, p)
		}
	}()

	h, err = s.searcher.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSearcherFailed, err)
	}
	if h == nil {
		return nil, domain.ErrInvalidSearcherReturn
	}
	return h, nil
}

// complete stores the outcome and then removes the active entry. When the
// store fails the active entry is kept so the id never vanishes; the next
// start-up purge clears it.
func (s *Service) complete(ctx context.Context, id string, key artifact.Key, h *hit.Hit) {
	if _, err := s.repo.StoreResult(ctx, id, key, h); err != nil {
		s.logger.Error("Failed to store search result, keeping active entry",
			zap.String("search_id", id),
			zap.Stringer("artifact", key),
			zap.Error(err),
		)
		return
	}

	err := s.repo.RemoveActive(ctx, id)
	switch {
	case err == nil:
		s.logger.Info("Search completed",
			zap.String("search_id", id),
			zap.Int("properties", h.Len()),
		)
	case errors.Is(err, domain.ErrMultipleActiveSearchesRemoved):
		metrics.IntegrityErrorsTotal.WithLabelValues("multiple_active_removed").Inc()
		s.logger.Error("Multiple active searches removed",
			zap.String("search_id", id),
			zap.Error(domain.NewIntegrityError(id, err)),
		)
	case errors.Is(err, domain.ErrActiveSearchNotFound):
		s.logger.Warn("Active search already gone", zap.String("search_id", id))
	default:
		s.logger.Error("Failed to remove active search",
			zap.String("search_id", id),
			zap.Error(err),
		)
	}
}

func (s *Service) release(req domsearch.Request) {
	if err := req.Attachment.Release(); err != nil {
		s.logger.Warn("Failed to release attachment",
			zap.String("path", req.Attachment.Path),
			zap.Error(err),
		)
	}
}
