package tools

import (
	"context"
	"fmt"

	"github.com/BaSui01/seedforge/llm"
	"github.com/BaSui01/seedforge/search"
)

// WebSearchToolName 验证器要求的搜索能力名。
const WebSearchToolName = "web_search"

// Searcher 是搜索能力的最小接口；*search.Adapter 满足。
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) *search.Response
	Name() string
}

// WebSearchData 是 web_search 能力的出参。
type WebSearchData struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Backend string          `json:"backend"`
}

// RegisterWebSearch 把搜索适配器桥接为 web_search 能力。
// args: query (必填), max_results (可选)。
func RegisterWebSearch(reg *Registry, searcher Searcher) error {
	return reg.Register(WebSearchToolName, func(ctx context.Context, args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		if query == "" {
			return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: "web_search: query is required"}
		}
		maxResults := intArg(args, "max_results", 0)

		resp := searcher.Search(ctx, query, maxResults)
		if resp == nil {
			return nil, &llm.Error{Kind: llm.KindUnknown, Message: "web_search: nil response"}
		}
		if !resp.Success {
			if resp.Err != nil {
				return nil, resp.Err
			}
			return nil, fmt.Errorf("web_search: query %q failed", query)
		}
		return &WebSearchData{
			Query:   resp.Query,
			Results: resp.Results,
			Backend: searcher.Name(),
		}, nil
	})
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		// JSON 解码后的数值。
		return int(v)
	default:
		return def
	}
}
