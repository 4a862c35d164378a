package chi

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/asynccts/internal/domain"
	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
	domsearch "github.com/kailas-cloud/asynccts/internal/domain/search"
	domusage "github.com/kailas-cloud/asynccts/internal/domain/usage"
	"github.com/kailas-cloud/asynccts/internal/logger"
	healthuc "github.com/kailas-cloud/asynccts/internal/usecase/health"
)

// maxMetadataSize bounds the JSON artifact document of a submit request.
const maxMetadataSize = 64 << 10

// ErrorCode is the machine-readable error class returned to clients.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest           ErrorCode = "bad_request"
	ErrorCodeValidationFailed     ErrorCode = "validation_failed"
	ErrorCodeUnauthorized         ErrorCode = "unauthorized"
	ErrorCodePayloadTooLarge      ErrorCode = "payload_too_large"
	ErrorCodeUnsupportedMediaType ErrorCode = "unsupported_media_type"
	ErrorCodeServiceUnavailable   ErrorCode = "service_unavailable"
	ErrorCodeIntegrityError       ErrorCode = "integrity_error"
	ErrorCodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// HealthResponse is the JSON body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// UsageResponse is the JSON body of GET /usage.
type UsageResponse struct {
	Period        string       `json:"period"`
	Scope         string       `json:"scope"`
	PeriodStartAt *time.Time   `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time   `json:"period_end_at,omitempty"`
	Usage         UsageMetrics `json:"usage"`
	Budget        BudgetStatus `json:"budget"`
}

// UsageMetrics is the consumption part of a usage report.
type UsageMetrics struct {
	Tokens           int64  `json:"tokens"`
	CostMillidollars *int64 `json:"cost_millidollars,omitempty"`
}

// BudgetStatus is the budget part of a usage report. TokensRemaining is -1
// when no limit applies.
type BudgetStatus struct {
	TokensLimit     int64      `json:"tokens_limit"`
	TokensRemaining int64      `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

type artifactRequest struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Coordinator is the search use case served over HTTP.
type Coordinator interface {
	Submit(ctx context.Context, req domsearch.Request) (domsearch.Response, error)
	Poll(ctx context.Context, id string) (domsearch.Response, error)
	Capabilities() domsearch.Capabilities
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// UsageReporter builds searcher usage reports.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

// UploadConfig bounds attachment spooling.
type UploadConfig struct {
	Dir     string
	MaxSize int64
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the search coordinator over HTTP.
type Server struct {
	search        Coordinator
	health        HealthChecker
	usage         UsageReporter
	uploads       UploadConfig
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. health can be nil.
func NewServer(search Coordinator, health HealthChecker, uploads UploadConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:  search,
		health:  health,
		uploads: uploads,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidArtifact, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrMissingLookupCriteria, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge),
		sentinelHandler(domain.ErrAttachmentsUnsupported,
			http.StatusUnsupportedMediaType, ErrorCodeUnsupportedMediaType),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, ErrorCodeServiceUnavailable),
		integrityHandler,
	}
	return s
}

// WithUsage enables GET /usage.
func (s *Server) WithUsage(u UsageReporter) *Server {
	s.usage = u
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	if s.usage != nil {
		r.Get("/usage", s.GetUsage)
	}
	r.Post("/", s.SubmitSearch)
	r.Options("/", s.GetCapabilities)
	r.Get("/{id}", s.PollSearch)
}

// SubmitSearch handles POST /. The body is either a JSON artifact or a
// multipart form whose first part is the JSON artifact and whose second part
// is the attachment.
func (s *Server) SubmitSearch(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = "application/json"
	}

	var req domsearch.Request
	switch mediaType {
	case "application/json":
		meta, err := decodeArtifact(http.MaxBytesReader(w, r.Body, maxMetadataSize))
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
			return
		}
		req.Artifact = artifact.New(meta.Type, meta.Value)
	case "multipart/form-data":
		if !s.search.Capabilities().SupportsAttachments {
			s.handleDomainError(r.Context(), w, domain.ErrAttachmentsUnsupported)
			return
		}
		req, err = s.readMultipart(r)
		if err != nil {
			if errors.Is(err, errBadMultipart) {
				writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
				return
			}
			s.handleDomainError(r.Context(), w, err)
			return
		}
	default:
		writeError(w, http.StatusUnsupportedMediaType, ErrorCodeUnsupportedMediaType,
			"content type must be application/json or multipart/form-data")
		return
	}

	resp, err := s.search.Submit(r.Context(), req)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PollSearch handles GET /{id}.
func (s *Server) PollSearch(w http.ResponseWriter, r *http.Request) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter id: "+err.Error())
		return
	}

	resp, err := s.search.Poll(r.Context(), id)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCapabilities handles OPTIONS /.
func (s *Server) GetCapabilities(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", "GET, POST, OPTIONS")
	writeJSON(w, http.StatusOK, s.search.Capabilities())
}

// GetUsage handles GET /usage?period=day|month|total.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	var raw *string
	if err := runtime.BindQueryParameter("form", true, false, "period", r.URL.Query(), &raw); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter period: "+err.Error())
		return
	}
	var name string
	if raw != nil {
		name = *raw
	}
	period, err := domusage.ParsePeriod(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	report := s.usage.GetReport(r.Context(), period)

	resp := UsageResponse{
		Period: string(report.Period()),
		Scope:  report.Scope(),
		Usage:  UsageMetrics{Tokens: report.Metrics().Tokens()},
		Budget: BudgetStatus{
			TokensLimit:     report.Budget().TokensLimit(),
			TokensRemaining: report.Budget().TokensRemaining(),
			IsExhausted:     report.Budget().IsExhausted(),
		},
	}
	if cost := report.Metrics().CostMillidollars(); cost > 0 {
		resp.Usage.CostMillidollars = &cost
	}
	if report.PeriodStart() > 0 {
		start := time.UnixMilli(report.PeriodStart()).UTC()
		end := time.UnixMilli(report.PeriodEnd()).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}
	if report.Budget().ResetsAt() > 0 {
		resetsAt := time.UnixMilli(report.Budget().ResetsAt()).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: string(healthuc.Healthy), Checks: map[string]string{}})
		return
	}
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidArtifact,
		domain.ErrMissingLookupCriteria,
		domain.ErrPayloadTooLarge,
		domain.ErrAttachmentsUnsupported,
		domain.ErrStoreUnavailable,
		domain.ErrUnknownSearchID,
		domain.ErrMultipleActiveSearchesRemoved,
		domain.ErrMultipleResults,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			if errors.Is(s, domain.ErrInvalidArtifact) {
				// keeps the "type is required" detail
				return err.Error()
			}
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// integrityHandler reports broken store invariants as server faults.
func integrityHandler(w http.ResponseWriter, err error, msg string) bool {
	if !domain.IsIntegrityError(err) {
		return false
	}
	writeError(w, http.StatusInternalServerError, ErrorCodeIntegrityError, msg)
	return true
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.FromContext(ctx)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
