package search

import (
	"context"
	"time"

	"github.com/BaSui01/seedforge/llm"
)

// Result 是单条搜索结果。URL 是去重的唯一键。
type Result struct {
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	URL       string  `json:"url"`
	Relevance float64 `json:"relevance"` // [0,1]
}

// Response 聚合一次搜索。终止性失败时 Success=false、Results 为空，
// 错误以数据返回，不向调用方抛出。
type Response struct {
	Query    string         `json:"query"`
	Results  []Result       `json:"results"`
	Latency  time.Duration  `json:"latency"`
	Success  bool           `json:"success"`
	Err      *llm.Error     `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Client 是搜索后端的统一能力（Tavily、Mock 等）。
// 实现返回 error 供适配器分类重试；适配器对外从不返回 error。
type Client interface {
	Search(ctx context.Context, query string, maxResults int) (*Response, error)
	Name() string
}
