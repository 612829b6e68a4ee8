package search

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/seedforge/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingClient 按脚本返回错误，耗尽后复用最后一项。
type failingClient struct {
	name    string
	scripts []error
	calls   int
}

func (f *failingClient) Name() string { return f.name }

func (f *failingClient) Search(_ context.Context, query string, maxResults int) (*Response, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.scripts) {
		idx = len(f.scripts) - 1
	}
	if err := f.scripts[idx]; err != nil {
		return nil, err
	}
	return &Response{
		Query:   query,
		Results: []Result{{Title: "real", URL: "https://real.example.com/1", Snippet: "real result"}},
	}, nil
}

func newTestAdapter(backend Client, cfg AdapterConfig) *Adapter {
	// 独立限流器 + 零延时 sleep，测试不等真实时钟。
	a := NewAdapter(cfg, backend, NewLimiter(time.Nanosecond), nil)
	a.sleep = func(context.Context, time.Duration) {}
	return a
}

func TestAdapter_MockWhenRealDisabled(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(nil, AdapterConfig{EnableReal: false})
	resp := a.Search(context.Background(), "golang concurrency", 3)

	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "mock", resp.Metadata["backend"])
}

func TestAdapter_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	backend := &failingClient{name: "flaky", scripts: []error{
		&llm.Error{Kind: llm.KindServer, Message: "500", Retryable: true},
		nil,
	}}
	a := newTestAdapter(backend, AdapterConfig{EnableReal: true, MaxRetries: 2})

	resp := a.Search(context.Background(), "q", 3)
	require.True(t, resp.Success)
	assert.Equal(t, "https://real.example.com/1", resp.Results[0].URL)
	assert.Equal(t, 2, backend.calls)
}

func TestAdapter_RecoverableFailureDegradesToMock(t *testing.T) {
	t.Parallel()

	backend := &failingClient{name: "down", scripts: []error{
		&llm.Error{Kind: llm.KindNetwork, Message: "connection refused"},
	}}
	a := newTestAdapter(backend, AdapterConfig{EnableReal: true, MaxRetries: 1})

	resp := a.Search(context.Background(), "q", 3)
	require.True(t, resp.Success, "recoverable failure must degrade to mock, not surface")
	assert.Equal(t, "down", resp.Metadata["degraded_from"])
	assert.Equal(t, 2, backend.calls, "network errors are retried before degrading")
}

func TestAdapter_AuthFailureSurfaces(t *testing.T) {
	t.Parallel()

	backend := &failingClient{name: "locked", scripts: []error{
		&llm.Error{Kind: llm.KindAuth, Message: "bad api key", HTTPStatus: 401},
	}}
	a := newTestAdapter(backend, AdapterConfig{EnableReal: true, MaxRetries: 2})

	resp := a.Search(context.Background(), "q", 3)
	require.False(t, resp.Success, "auth failures must not silently degrade to mock")
	require.NotNil(t, resp.Err)
	assert.Equal(t, llm.KindAuth, resp.Err.Kind)
	assert.Equal(t, 1, backend.calls, "auth failures are not retried")
}

func TestAdapter_BackoffDelayCapsAndRetryAfter(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(nil, AdapterConfig{RetryBaseDelay: 20 * time.Second})

	serverErr := &llm.Error{Kind: llm.KindServer}
	assert.Equal(t, 20*time.Second, a.backoffDelay(0, serverErr))
	assert.Equal(t, backoffCap, a.backoffDelay(1, serverErr), "server backoff caps at 30s")

	rateErr := &llm.Error{Kind: llm.KindRateLimit}
	assert.Equal(t, 40*time.Second, a.backoffDelay(1, rateErr))
	assert.Equal(t, backoffCapRateLimit, a.backoffDelay(2, rateErr), "rate-limit backoff caps at 60s")

	hinted := &llm.Error{Kind: llm.KindRateLimit, RetryAfter: 9 * time.Second}
	assert.Equal(t, 9*time.Second, a.backoffDelay(0, hinted), "retry-after hint wins when within cap")

	tooLong := &llm.Error{Kind: llm.KindRateLimit, RetryAfter: 10 * time.Minute}
	assert.Equal(t, 40*time.Second, a.backoffDelay(1, tooLong), "oversized retry-after hints are ignored")
}

func TestAdapter_CanceledContext(t *testing.T) {
	t.Parallel()

	a := NewAdapter(AdapterConfig{}, nil, NewLimiter(time.Hour), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := a.Search(ctx, "q", 3)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Err)
	assert.Equal(t, llm.KindTimeout, resp.Err.Kind)
}

// emptyClient 违反契约地返回 (nil, nil)。
type emptyClient struct{ calls int }

func (e *emptyClient) Name() string { return "empty" }

func (e *emptyClient) Search(context.Context, string, int) (*Response, error) {
	e.calls++
	return nil, nil
}

func TestAdapter_NilResponseWithoutError(t *testing.T) {
	t.Parallel()

	backend := &emptyClient{}
	a := newTestAdapter(backend, AdapterConfig{EnableReal: true, MaxRetries: 2})

	resp := a.Search(context.Background(), "q", 3)
	require.True(t, resp.Success, "contract-breaking backend must degrade to mock, not panic")
	assert.Equal(t, "empty", resp.Metadata["degraded_from"])
	assert.Equal(t, 1, backend.calls, "unknown errors are not retried")
}

func TestMockClient_Deterministic(t *testing.T) {
	t.Parallel()

	m := NewMockClient()
	first, err := m.Search(context.Background(), "stable query", 3)
	require.NoError(t, err)
	second, err := m.Search(context.Background(), "stable query", 3)
	require.NoError(t, err)
	assert.Equal(t, first.Results, second.Results, "mock output must be a pure function of the query")
}
