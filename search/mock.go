package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// MockClient 从查询文本确定性地生成桩结果。
// 真实后端被配置关闭、或以可恢复错误失败时使用，
// 让流水线在没有凭证的环境下仍可演示。
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (m *MockClient) Name() string { return "mock" }

func (m *MockClient) Search(_ context.Context, query string, maxResults int) (*Response, error) {
	if maxResults <= 0 || maxResults > 5 {
		maxResults = 3
	}
	h := fnv.New32a()
	h.Write([]byte(query))
	seed := h.Sum32()

	topics := []string{"overview", "analysis", "best practices", "case study", "reference"}
	results := make([]Result, 0, maxResults)
	for i := 0; i < maxResults; i++ {
		topic := topics[(int(seed)+i)%len(topics)]
		results = append(results, Result{
			Title:     fmt.Sprintf("%s - %s", strings.TrimSpace(query), topic),
			Snippet:   fmt.Sprintf("Simulated research notes on %q covering %s. Generated locally without network access.", query, topic),
			URL:       fmt.Sprintf("https://example.org/research/%08x/%d", seed, i),
			Relevance: 0.9 - 0.15*float64(i),
		})
	}
	return &Response{
		Query:    query,
		Results:  results,
		Latency:  time.Millisecond,
		Success:  true,
		Metadata: map[string]any{"backend": "mock", "simulated": true},
	}, nil
}
