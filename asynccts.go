package asynccts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/asynccts/internal/config"
	dbRedis "github.com/kailas-cloud/asynccts/internal/db/redis"
	logpkg "github.com/kailas-cloud/asynccts/internal/logger"
	"github.com/kailas-cloud/asynccts/internal/metrics"
	budgetrepo "github.com/kailas-cloud/asynccts/internal/repository/budget"
	searchrepo "github.com/kailas-cloud/asynccts/internal/repository/search"
	"github.com/kailas-cloud/asynccts/internal/repository/sqlstore"
	chiTransport "github.com/kailas-cloud/asynccts/internal/transport/chi"
	"github.com/kailas-cloud/asynccts/internal/transport/openai"
	budgetuc "github.com/kailas-cloud/asynccts/internal/usecase/budget"
	healthuc "github.com/kailas-cloud/asynccts/internal/usecase/health"
	searchuc "github.com/kailas-cloud/asynccts/internal/usecase/search"
	usageuc "github.com/kailas-cloud/asynccts/internal/usecase/usage"
	"github.com/kailas-cloud/asynccts/internal/version"
)

// ErrNoSearcher is returned by New when neither a Searcher nor a configured
// searcher provider is available.
var ErrNoSearcher = errors.New("asynccts: searcher required (pass one to New or set searcher.provider)")

// Service is a running search coordinator bound to its store.
type Service struct {
	cfg        config.Config
	logger     *zap.Logger
	ownsLogger bool
	closeStore func()
	coord      *searchuc.Service
	handler    http.Handler
}

// Budget counters expire well after the period they count.
const (
	budgetDailyTTL   = 48 * time.Hour
	budgetMonthlyTTL = 62 * 24 * time.Hour
)

// counterStore holds the searcher budget counters.
type counterStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// backend is the store a Service runs on.
type backend struct {
	repo     searchuc.Repository
	pinger   healthuc.StorePinger
	counters counterStore
	close    func()
}

// New builds a Service and prepares its store: the schema is created and,
// unless disabled, active searches left by a previous process are purged.
// searcher may be nil when the configuration names a built-in provider.
func New(searcher Searcher, opts ...Option) (*Service, error) {
	sc := &serviceConfig{}
	for _, o := range opts {
		o(sc)
	}

	cfg, err := sc.config()
	if err != nil {
		return nil, err
	}

	logger, owned, err := sc.buildLogger(cfg)
	if err != nil {
		return nil, err
	}

	var (
		inner   searchuc.Searcher
		checker healthuc.SearcherChecker
		builtin *openai.Searcher
	)
	switch {
	case searcher != nil:
		a := &searcherAdapter{inner: searcher}
		inner = a
		if _, ok := searcher.(HealthChecker); ok {
			checker = a
		}
	case cfg.Searcher.Provider == config.ProviderOpenAI:
		s := openai.NewSearcher(&openai.Config{
			APIKey:            cfg.Searcher.APIKey,
			BaseURL:           cfg.Searcher.BaseURL,
			Model:             cfg.Searcher.Model,
			RequestsPerSecond: cfg.Searcher.RequestsPerSecond,
			Burst:             cfg.Searcher.Burst,
			Timeout:           time.Duration(cfg.Searcher.TimeoutSec) * time.Second,
			Logger:            logger,
		})
		inner, checker, builtin = s, s, s
	default:
		return nil, ErrNoSearcher
	}

	metrics.Register()

	logger.Info("Starting asynccts",
		zap.String("version", version.String()),
		zap.String("service_id", cfg.CTS.ID),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("upload_files", cfg.CTS.UploadFiles),
	)

	ctx := context.Background()
	be, err := openBackend(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to database")

	var tracker *budgetuc.Tracker
	if builtin != nil && cfg.Searcher.Budget.Enabled() {
		b := cfg.Searcher.Budget
		tracker = budgetuc.NewTracker(cfg.CTS.ID, b.DailyTokenLimit, b.MonthlyTokenLimit,
			budgetuc.Action(b.Action), logger).
			WithStore(ctx, budgetrepo.New(be.counters, budgetDailyTTL, budgetMonthlyTTL))
		is := budgetuc.NewInstrumentedSearcher(builtin, cfg.CTS.ID, cfg.Searcher.Model, tracker, logger)
		inner, checker = is, is
		logger.Info("Searcher budget enabled",
			zap.Int64("daily_token_limit", b.DailyTokenLimit),
			zap.Int64("monthly_token_limit", b.MonthlyTokenLimit),
			zap.String("action", b.Action),
		)
	}

	coord := searchuc.New(be.repo, inner, cfg.Service(), logger)
	if err := coord.Prepare(ctx, cfg.PurgeOnStart()); err != nil {
		be.close()
		return nil, fmt.Errorf("asynccts: prepare store: %w", err)
	}

	server := chiTransport.NewServer(
		coord,
		healthuc.New(be.pinger, checker),
		chiTransport.UploadConfig{Dir: cfg.CTS.UploadDir, MaxSize: cfg.CTS.MaxUploadSize},
		logger,
	)
	if tracker != nil {
		server.WithUsage(usageuc.New(tracker, cfg.CTS.ID, cfg.Searcher.Budget.CostPerMillionTokens))
	}

	return &Service{
		cfg:        cfg,
		logger:     logger,
		ownsLogger: owned,
		closeStore: be.close,
		coord:      coord,
		handler:    chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger),
	}, nil
}

// Handler returns the HTTP API: POST /, GET /{id}, OPTIONS /, GET /health,
// GET /metrics and, when the built-in searcher has a budget, GET /usage.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Logger returns the service logger.
func (s *Service) Logger() *zap.Logger {
	return s.logger
}

// Run serves the HTTP API until ctx is cancelled, then shuts down gracefully
// and waits for running searches within the shutdown timeout.
func (s *Service) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  time.Duration(s.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		s.logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error during shutdown", zap.Error(err))
	}
	if err := s.coord.Wait(shutdownCtx); err != nil {
		s.logger.Warn("Searches still running at shutdown", zap.Error(err))
	}

	s.logger.Info("Server stopped gracefully")
	return nil
}

// Wait blocks until every background search has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	if err := s.coord.Wait(ctx); err != nil {
		return fmt.Errorf("wait for searches: %w", err)
	}
	return nil
}

// Close releases the store. Searches still running will fail to record their result.
func (s *Service) Close() {
	if s.closeStore != nil {
		s.closeStore()
	}
	if s.ownsLogger {
		_ = s.logger.Sync()
	}
}

// PurgeReport counts what Purge removed.
type PurgeReport struct {
	Active  int // active searches left by stopped processes
	Expired int // expired results (SQLite only; Redis expires keys itself)
}

// Purge removes every active search of the configured service and reclaims
// expired results. Run it only while no process serves the same service id.
func Purge(ctx context.Context, opts ...Option) (PurgeReport, error) {
	sc := &serviceConfig{}
	for _, o := range opts {
		o(sc)
	}
	cfg, err := sc.config()
	if err != nil {
		return PurgeReport{}, err
	}

	be, err := openBackend(ctx, &cfg)
	if err != nil {
		return PurgeReport{}, err
	}
	defer be.close()

	if err := be.repo.EnsureSchema(ctx); err != nil {
		return PurgeReport{}, fmt.Errorf("asynccts: ensure schema: %w", err)
	}

	var report PurgeReport
	if report.Active, err = be.repo.PurgeActive(ctx); err != nil {
		return PurgeReport{}, fmt.Errorf("asynccts: purge active searches: %w", err)
	}
	if exp, ok := be.repo.(interface {
		PurgeExpired(ctx context.Context) (int, error)
	}); ok {
		if report.Expired, err = exp.PurgeExpired(ctx); err != nil {
			return report, fmt.Errorf("asynccts: purge expired results: %w", err)
		}
	}
	return report, nil
}

func (sc *serviceConfig) config() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	switch {
	case sc.configPath != "":
		cfg, err = config.LoadFile(sc.configPath)
	case sc.env != "":
		cfg, err = config.Load(sc.env)
	default:
		cfg.HTTP.Port = defaultHTTPPort
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("asynccts: %w", err)
	}

	for _, fn := range sc.edits {
		fn(&cfg)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("asynccts: invalid config: %w", err)
	}
	return cfg, nil
}

func (sc *serviceConfig) buildLogger(cfg config.Config) (*zap.Logger, bool, error) {
	if sc.logger != nil {
		return sc.logger, false, nil
	}
	if sc.env == "" {
		return zap.NewNop(), false, nil
	}
	l, err := logpkg.NewLogger(sc.env, cfg.Logging.Level)
	if err != nil {
		return nil, false, fmt.Errorf("asynccts: create logger: %w", err)
	}
	return l, true, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	ttl := time.Duration(cfg.CTS.HitTTLSec) * time.Second

	switch cfg.Database.Driver {
	case config.DriverRedis, config.DriverValkey:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			return backend{}, fmt.Errorf("asynccts: create %s store: %w", cfg.Database.Driver, err)
		}
		readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, readiness); err != nil {
			store.Close()
			return backend{}, fmt.Errorf("asynccts: database not ready: %w", err)
		}
		return backend{
			repo:     searchrepo.New(store, cfg.CTS.ID, ttl),
			pinger:   store,
			counters: store,
			close:    store.Close,
		}, nil
	case config.DriverSQLite:
		store, err := sqlstore.Open(cfg.Database.SQLitePath, cfg.CTS.ID, ttl)
		if err != nil {
			return backend{}, fmt.Errorf("asynccts: open sqlite store: %w", err)
		}
		return backend{
			repo:     store,
			pinger:   store,
			counters: store,
			close:    func() { _ = store.Close() },
		}, nil
	default:
		return backend{}, fmt.Errorf("asynccts: unknown driver %q", cfg.Database.Driver)
	}
}
