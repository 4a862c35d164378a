package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/asynccts"
	"github.com/kailas-cloud/asynccts/internal/repository/sqlstore"
)

// --- Helpers ---

func newService(t *testing.T, searcher asynccts.Searcher, opts ...asynccts.Option) *httptest.Server {
	t.Helper()
	opts = append([]asynccts.Option{asynccts.WithSQLite(sqlstore.MemoryPath), asynccts.WithRetrySecs(1)}, opts...)
	svc, err := asynccts.New(searcher, opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithMaxPollInterval(20 * time.Millisecond)}, opts...)
	c, err := New(url, opts...)
	require.NoError(t, err)
	return c
}

// --- Tests ---

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("localhost:8080")
	assert.Error(t, err)

	_, err = New("ftp://example.com")
	assert.Error(t, err)
}

func TestClient_Await(t *testing.T) {
	release := make(chan struct{})
	searcher := asynccts.SearcherFunc(func(ctx context.Context, q asynccts.Query) ([]asynccts.Property, error) {
		<-release
		return []asynccts.Property{asynccts.StringProperty("owner", "acme-"+q.Artifact.Value)}, nil
	})
	ts := newService(t, searcher)
	c := newClient(t, ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := c.Submit(ctx, asynccts.Artifact{Type: "net.name", Value: "x"})
	require.NoError(t, err)
	assert.True(t, first.Pending())
	assert.Equal(t, time.Second, first.RetryAfter())

	close(release)

	hits, err := c.Await(ctx, asynccts.Artifact{Type: "net.name", Value: "x"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "owner", hits[0].Name())
	assert.Equal(t, "acme-x", hits[0].Value())

	polled, err := c.Poll(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, polled.Pending())
	assert.Len(t, polled.Hits, 1)
}

func TestClient_AwaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	searcher := asynccts.SearcherFunc(func(context.Context, asynccts.Query) ([]asynccts.Property, error) {
		<-block
		return nil, nil
	})
	ts := newService(t, searcher)
	c := newClient(t, ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Await(ctx, asynccts.Artifact{Type: "net.ip", Value: "10.0.0.1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_SubmitInvalidArtifact(t *testing.T) {
	ts := newService(t, asynccts.SearcherFunc(func(context.Context, asynccts.Query) ([]asynccts.Property, error) {
		return nil, nil
	}))
	c := newClient(t, ts.URL)

	_, err := c.Submit(context.Background(), asynccts.Artifact{Value: "no type"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClient_SubmitFile(t *testing.T) {
	got := make(chan string, 1)
	searcher := asynccts.SearcherFunc(func(_ context.Context, q asynccts.Query) ([]asynccts.Property, error) {
		if q.Attachment == nil {
			got <- ""
			return nil, nil
		}
		f, err := q.Attachment.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		got <- q.Attachment.Name + ":" + string(data)
		return nil, nil
	})
	ts := newService(t, searcher, asynccts.WithUploads(t.TempDir(), 1024))
	c := newClient(t, ts.URL)

	caps, err := c.Capabilities(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.SupportsAttachments)

	_, err = c.SubmitFile(context.Background(), asynccts.Artifact{Type: "malware.sample", Value: "abc"},
		"sample.bin", strings.NewReader("MZ payload"))
	require.NoError(t, err)

	select {
	case s := <-got:
		assert.Equal(t, "sample.bin:MZ payload", s)
	case <-time.After(5 * time.Second):
		t.Fatal("searcher was not called")
	}
}

func TestClient_SubmitFileUnsupported(t *testing.T) {
	ts := newService(t, asynccts.SearcherFunc(func(context.Context, asynccts.Query) ([]asynccts.Property, error) {
		return nil, nil
	}))
	c := newClient(t, ts.URL)

	_, err := c.SubmitFile(context.Background(), asynccts.Artifact{Type: "t", Value: "v"},
		"f", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrAttachmentsUnsupported)
}

func TestClient_APIKey(t *testing.T) {
	ts := newService(t, asynccts.SearcherFunc(func(context.Context, asynccts.Query) ([]asynccts.Property, error) {
		return nil, nil
	}), asynccts.WithAPIKeys("secret"))

	_, err := newClient(t, ts.URL).Submit(context.Background(), asynccts.Artifact{Type: "t", Value: "v"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = newClient(t, ts.URL, WithAPIKey("secret")).Submit(context.Background(),
		asynccts.Artifact{Type: "t", Value: "v"})
	assert.NoError(t, err)
}

func TestClient_Health(t *testing.T) {
	ts := newService(t, asynccts.SearcherFunc(func(context.Context, asynccts.Query) ([]asynccts.Property, error) {
		return nil, nil
	}))

	h, err := newClient(t, ts.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "ok", h.Checks["store"])
}

func TestClient_HealthUnhealthyIsNotAnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"status":"error","checks":{"store":"error"}}`)
	}))
	defer ts.Close()

	h, err := newClient(t, ts.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "error", h.Status)
}

func TestClient_Usage(t *testing.T) {
	var query string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		assert.Equal(t, "/usage", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"period":"day","scope":"intel",
			"period_start_at":"2026-10-17T00:00:00Z","period_end_at":"2026-10-18T00:00:00Z",
			"usage":{"tokens":1200,"cost_millidollars":3},
			"budget":{"tokens_limit":5000,"tokens_remaining":3800,"is_exhausted":false,
				"resets_at":"2026-10-18T00:00:00Z"}}`)
	}))
	defer ts.Close()

	r, err := newClient(t, ts.URL).Usage(context.Background(), PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, "period=day", query)
	assert.Equal(t, PeriodDay, r.Period)
	assert.Equal(t, "intel", r.Scope)
	assert.Equal(t, int64(1200), r.Tokens)
	assert.Equal(t, int64(3), r.CostMillidollars)
	assert.Equal(t, int64(3800), r.Budget.TokensRemaining)
	assert.True(t, r.Budget.ResetsAt.Equal(time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 24*time.Hour, r.PeriodEnd.Sub(r.PeriodStart))
}

func TestClient_PlainTextError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := newClient(t, ts.URL).Poll(context.Background(), "abc")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestClient_Prometheus(t *testing.T) {
	ts := newService(t, asynccts.SearcherFunc(func(context.Context, asynccts.Query) ([]asynccts.Property, error) {
		return nil, nil
	}))
	reg := prometheus.NewRegistry()
	c := newClient(t, ts.URL, WithPrometheus(reg))

	_, err := c.Capabilities(context.Background())
	require.NoError(t, err)
	_, err = c.Poll(context.Background(), "")
	require.Error(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("capabilities", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("poll", "error")), 0)

	// a second client on the same registry reuses the collectors
	_, err = New(ts.URL, WithPrometheus(reg))
	assert.NoError(t, err)
}
