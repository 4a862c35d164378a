package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/asynccts/internal/domain"
	"github.com/kailas-cloud/asynccts/internal/domain/hit"
	domsearch "github.com/kailas-cloud/asynccts/internal/domain/search"
	"github.com/kailas-cloud/asynccts/internal/metrics"
)

const systemPrompt = `You are a threat intelligence enrichment service.
You receive an artifact as JSON {"type": ..., "value": ...} and optionally the name and size of an attached file.
Answer with a JSON object {"properties": [...]} describing what you know about the artifact.
Each property is {"type": T, "name": N, "value": V} where T is one of:
  "string"  - V is a string
  "number"  - V is an integer
  "uri"     - V is a URI string
  "ip"      - V is an IP address string
  "lat_lng" - V is {"lat": float, "lng": float}
Property names must be unique. Answer {"properties": []} when you know nothing.`

// Searcher enriches artifacts through an OpenAI-compatible chat completion API.
type Searcher struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// Config holds the searcher settings.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration // per request, 0 = none
	Logger            *zap.Logger
}

// NewSearcher creates an OpenAI-compatible searcher.
func NewSearcher(cfg *Config) *Searcher {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Searcher{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

type promptArtifact struct {
	Type       string            `json:"type"`
	Value      string            `json:"value"`
	Attachment *promptAttachment `json:"attachment,omitempty"`
}

type promptAttachment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type modelOutput struct {
	Properties []hit.Property `json:"properties"`
}

// Search asks the model about the artifact and validates its answer into a Hit.
func (s *Searcher) Search(ctx context.Context, req domsearch.Request) (*hit.Hit, error) {
	h, _, err := s.SearchWithUsage(ctx, req)
	return h, err
}

// SearchWithUsage is Search that also reports the tokens the request consumed,
// including when the answer turned out to be invalid.
func (s *Searcher) SearchWithUsage(ctx context.Context, req domsearch.Request) (*hit.Hit, int64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		metrics.SearcherErrorsTotal.WithLabelValues(s.model, "rate_limit_wait").Inc()
		return nil, 0, fmt.Errorf("rate limit wait: %w: %w", domain.ErrSearcherFailed, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt, err := userPrompt(req)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	duration := time.Since(start)

	if err != nil {
		metrics.SearcherRequestsTotal.WithLabelValues(s.model, "error").Inc()
		metrics.SearcherErrorsTotal.WithLabelValues(s.model, "api_error").Inc()
		return nil, 0, parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.SearcherRequestsTotal.WithLabelValues(s.model, "error").Inc()
		metrics.SearcherErrorsTotal.WithLabelValues(s.model, "empty_response").Inc()
		return nil, int64(resp.Usage.TotalTokens), fmt.Errorf("empty completion response: %w", domain.ErrSearcherFailed)
	}

	metrics.SearcherRequestsTotal.WithLabelValues(s.model, "success").Inc()
	metrics.SearcherRequestDuration.WithLabelValues(s.model).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.SearcherTokensTotal.WithLabelValues(s.model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.SearcherTokensTotal.WithLabelValues(s.model, "completion").Add(float64(resp.Usage.CompletionTokens))
	}

	tokens := int64(resp.Usage.TotalTokens)
	h, err := parseOutput(resp.Choices[0].Message.Content)
	if err != nil {
		metrics.SearcherErrorsTotal.WithLabelValues(s.model, "invalid_output").Inc()
		s.logger.Warn("Model returned an invalid answer",
			zap.String("model", s.model),
			zap.Stringer("artifact", req.Artifact),
			zap.Error(err),
		)
		return nil, tokens, err
	}

	s.logger.Debug("Searcher request completed",
		zap.String("model", s.model),
		zap.Stringer("artifact", req.Artifact),
		zap.Duration("duration", duration),
		zap.Int("properties", h.Len()),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return h, tokens, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (s *Searcher) HealthCheck(ctx context.Context) error {
	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func userPrompt(req domsearch.Request) (string, error) {
	p := promptArtifact{Type: req.Artifact.Type(), Value: req.Artifact.Value()}
	if a := req.Attachment; a != nil {
		p.Attachment = &promptAttachment{Name: a.Name, Size: a.Size}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	return string(data), nil
}

// parseOutput validates the model's JSON answer. Every property goes through
// the same checks as any other hit.
func parseOutput(content string) (*hit.Hit, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out modelOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode model output: %w: %w", domain.ErrSearcherFailed, err)
	}
	h, err := hit.New(out.Properties...)
	if err != nil {
		return nil, fmt.Errorf("validate model output: %w: %w", domain.ErrSearcherFailed, err)
	}
	return h, nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrSearcherFailed.
func parseAPIError(err error) error {
	wrap := domain.ErrSearcherFailed

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("searcher API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("searcher API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("searcher request failed: %w: %w", wrap, err)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
