package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/seedforge/llm"
	"github.com/BaSui01/seedforge/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	resp *search.Response
}

func (s *stubSearcher) Name() string { return "stub" }

func (s *stubSearcher) Search(_ context.Context, query string, _ int) *search.Response {
	if s.resp != nil {
		return s.resp
	}
	return &search.Response{
		Query:   query,
		Success: true,
		Results: []search.Result{{Title: "t", Snippet: "s", URL: "https://u.example.com", Relevance: 0.9}},
	}
}

type stubCompleter struct {
	out string
	err error
}

func (s *stubCompleter) Call(context.Context, string, string, float32) (string, error) {
	return s.out, s.err
}

func TestRegistry_RegisterAndHas(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.False(t, reg.Has("x"))

	err := reg.Register("x", func(context.Context, map[string]any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.True(t, reg.Has("x"))

	err = reg.Register("x", func(context.Context, map[string]any) (any, error) { return nil, nil })
	assert.Error(t, err, "duplicate registration must fail")
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	res := reg.Execute(context.Background(), "missing", nil)
	require.False(t, res.Success)
	require.NotNil(t, res.Err)
	assert.Equal(t, llm.KindInvalidRequest, res.Err.Kind)
}

func TestRegistry_ExecuteWrapsErrors(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("broken", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("boom")
	}))

	res := reg.Execute(context.Background(), "broken", nil)
	require.False(t, res.Success)
	require.NotNil(t, res.Err)
	assert.Contains(t, res.Metadata, "duration_ms")
}

func TestRegistry_ExecuteRecoversPanic(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("panicky", func(context.Context, map[string]any) (any, error) {
		panic("unexpected state")
	}))

	res := reg.Execute(context.Background(), "panicky", nil)
	require.False(t, res.Success, "panics must become failed results, not crashes")
	require.NotNil(t, res.Err)
	assert.Equal(t, llm.KindUnknown, res.Err.Kind)
}

func TestWebSearchTool(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, RegisterWebSearch(reg, &stubSearcher{}))

	res := reg.Execute(context.Background(), WebSearchToolName, map[string]any{"query": "golang"})
	require.True(t, res.Success)
	data, ok := res.Data.(*WebSearchData)
	require.True(t, ok)
	assert.Equal(t, "golang", data.Query)
	assert.Equal(t, "stub", data.Backend)
	require.Len(t, data.Results, 1)

	// query 缺失是入参错误。
	res = reg.Execute(context.Background(), WebSearchToolName, nil)
	require.False(t, res.Success)
	assert.Equal(t, llm.KindInvalidRequest, res.Err.Kind)
}

func TestWebSearchTool_BackendFailure(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	failing := &stubSearcher{resp: &search.Response{
		Success: false,
		Err:     &llm.Error{Kind: llm.KindAuth, Message: "bad key"},
	}}
	require.NoError(t, RegisterWebSearch(reg, failing))

	res := reg.Execute(context.Background(), WebSearchToolName, map[string]any{"query": "q"})
	require.False(t, res.Success)
	assert.Equal(t, llm.KindAuth, res.Err.Kind)
}

func TestIdeaVerificationTool_LLMVerdict(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	completer := &stubCompleter{out: `{"feasibility_score": 0.75, "key_findings": ["solid approach"], "reasoning": "ok"}`}
	require.NoError(t, RegisterIdeaVerification(reg, completer, &stubSearcher{}))

	res := reg.Execute(context.Background(), IdeaVerificationToolName, map[string]any{
		"idea":       "用缓存分层解决读放大",
		"user_query": "如何优化读性能",
	})
	require.True(t, res.Success)
	data, ok := res.Data.(*IdeaVerificationData)
	require.True(t, ok)
	assert.Equal(t, 0.75, data.FeasibilityScore)
	assert.True(t, data.VerificationPassed, "pipeline is never blocked on the raw score")
	assert.NotEmpty(t, data.SearchResults)
}

func TestIdeaVerificationTool_ConservativeFallback(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	completer := &stubCompleter{err: errors.New("llm unavailable")}
	require.NoError(t, RegisterIdeaVerification(reg, completer, &stubSearcher{}))

	res := reg.Execute(context.Background(), IdeaVerificationToolName, map[string]any{"idea": "some idea"})
	require.True(t, res.Success, "llm failure degrades, it does not fail the tool")
	data := res.Data.(*IdeaVerificationData)
	assert.Equal(t, 0.5, data.FeasibilityScore)
	assert.True(t, data.VerificationPassed)
}

func TestIdeaVerificationTool_ScoreClamped(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	completer := &stubCompleter{out: `{"feasibility_score": 3.5}`}
	require.NoError(t, RegisterIdeaVerification(reg, completer, nil))

	res := reg.Execute(context.Background(), IdeaVerificationToolName, map[string]any{"idea": "idea"})
	require.True(t, res.Success)
	data := res.Data.(*IdeaVerificationData)
	assert.Equal(t, 1.0, data.FeasibilityScore)
}
