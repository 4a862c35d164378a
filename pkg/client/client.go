package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/kailas-cloud/asynccts"
	domsearch "github.com/kailas-cloud/asynccts/internal/domain/search"
)

// maxErrorBody bounds how much of an error reply is read.
const maxErrorBody = 64 << 10

// Client talks to one asynccts service.
type Client struct {
	baseURL         *url.URL
	http            *http.Client
	apiKey          string
	maxPollInterval time.Duration
	obs             *observer
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: base url must be http or https, got %q", baseURL)
	}

	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = http.DefaultClient
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:         u,
		http:            cfg.httpClient,
		apiKey:          cfg.apiKey,
		maxPollInterval: cfg.maxPollInterval,
		obs:             obs,
	}, nil
}

// Submit starts a search for artifact, or returns the cached hits.
func (c *Client) Submit(ctx context.Context, a asynccts.Artifact) (resp Response, err error) {
	start := time.Now()
	defer func() { c.obs.observe("submit", start, err) }()

	body, err := json.Marshal(artifactBody(a))
	if err != nil {
		return Response{}, fmt.Errorf("encode artifact: %w", err)
	}
	return c.doSearch(ctx, http.MethodPost, "/", bytes.NewReader(body), "application/json")
}

// SubmitFile starts a search for artifact with an attached file. The service
// must report SupportsAttachments.
func (c *Client) SubmitFile(
	ctx context.Context, a asynccts.Artifact, name string, file io.Reader,
) (resp Response, err error) {
	start := time.Now()
	defer func() { c.obs.observe("submit_file", start, err) }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	meta := textproto.MIMEHeader{}
	meta.Set("Content-Disposition", `form-data; name="artifact"`)
	meta.Set("Content-Type", "application/json")
	pw, err := mw.CreatePart(meta)
	if err != nil {
		return Response{}, fmt.Errorf("create artifact part: %w", err)
	}
	if err := json.NewEncoder(pw).Encode(artifactBody(a)); err != nil {
		return Response{}, fmt.Errorf("encode artifact: %w", err)
	}

	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return Response{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(fw, file); err != nil {
		return Response{}, fmt.Errorf("copy attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Response{}, fmt.Errorf("close multipart body: %w", err)
	}

	return c.doSearch(ctx, http.MethodPost, "/", &buf, mw.FormDataContentType())
}

// Poll returns the current state of search id.
func (c *Client) Poll(ctx context.Context, id string) (resp Response, err error) {
	start := time.Now()
	defer func() { c.obs.observe("poll", start, err) }()

	if id == "" {
		return Response{}, errors.New("client: search id is required")
	}
	return c.doSearch(ctx, http.MethodGet, "/"+id, nil, "")
}

// Await submits artifact and polls until the hits are ready or ctx is done.
func (c *Client) Await(ctx context.Context, a asynccts.Artifact) ([]asynccts.Property, error) {
	resp, err := c.Submit(ctx, a)
	if err != nil {
		return nil, err
	}

	for resp.Pending() {
		wait := resp.RetryAfter()
		if c.maxPollInterval > 0 && wait > c.maxPollInterval {
			wait = c.maxPollInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("await search %s: %w", resp.ID, ctx.Err())
		case <-timer.C:
		}

		if resp, err = c.Poll(ctx, resp.ID); err != nil {
			return nil, err
		}
	}
	return resp.Hits, nil
}

// Capabilities asks the service what it accepts.
func (c *Client) Capabilities(ctx context.Context) (caps Capabilities, err error) {
	start := time.Now()
	defer func() { c.obs.observe("capabilities", start, err) }()

	var body domsearch.Capabilities
	if err := c.doJSON(ctx, http.MethodOptions, "/", nil, &body); err != nil {
		return Capabilities{}, err
	}
	return Capabilities{SupportsAttachments: body.SupportsAttachments}, nil
}

// Health reports the service health. An unhealthy service answers 503,
// which is returned as a status rather than an error.
func (c *Client) Health(ctx context.Context) (status HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return HealthStatus{}, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("health: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusServiceUnavailable {
		return HealthStatus{}, decodeAPIError(res)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return HealthStatus{}, fmt.Errorf("decode health: %w", err)
	}
	return HealthStatus{Status: body.Status, Checks: body.Checks}, nil
}

func artifactBody(a asynccts.Artifact) map[string]string {
	return map[string]string{"type": a.Type, "value": a.Value}
}

func (c *Client) doSearch(ctx context.Context, method, path string, body io.Reader, contentType string) (Response, error) {
	var wire domsearch.Response
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return Response{}, err
	}
	if err := c.do(req, &wire); err != nil {
		return Response{}, err
	}

	resp := Response{ID: wire.ID()}
	if h, ok := wire.Hits(); ok {
		resp.Hits = h.Properties()
		resp.done = true
	} else {
		resp.RetrySecs, _ = wire.RetrySecs()
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	contentType := ""
	if body != nil {
		contentType = "application/json"
	}
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(
	ctx context.Context, method, path string, body io.Reader, contentType string,
) (*http.Request, error) {
	u := *c.baseURL
	u.Path += path
	if i := strings.IndexByte(path, '?'); i >= 0 {
		u.Path = c.baseURL.Path + path[:i]
		u.RawQuery = path[i+1:]
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return decodeAPIError(res)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: res.StatusCode}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Code != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
