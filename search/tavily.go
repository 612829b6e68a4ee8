package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/BaSui01/seedforge/llm"
	"github.com/BaSui01/seedforge/llm/providers"
	"go.uber.org/zap"
)

const tavilyBaseURL = "https://api.tavily.com"

// TavilyConfig 配置 Tavily 搜索后端。
type TavilyConfig struct {
	APIKey         string
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	SearchDepth    string // "basic" 或 "advanced"
}

type TavilyClient struct {
	cfg    TavilyConfig
	client *http.Client
	logger *zap.Logger
}

func NewTavilyClient(cfg TavilyConfig, logger *zap.Logger) *TavilyClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = tavilyBaseURL
	}
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = "basic"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TavilyClient{
		cfg:    cfg,
		client: providers.NewHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout),
		logger: logger,
	}
}

func (t *TavilyClient) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *TavilyClient) Search(ctx context.Context, query string, maxResults int) (*Response, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	payload, err := json.Marshal(tavilyRequest{
		APIKey:      t.cfg.APIKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: t.cfg.SearchDepth,
	})
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: t.Name()}
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: t.Name()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(err, t.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, providers.ParseRetryAfter(resp.Header), t.Name())
	}

	var wire tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &llm.Error{Kind: llm.KindParse, Message: err.Error(), Retryable: true, Provider: t.Name()}
	}

	results := make([]Result, 0, len(wire.Results))
	for _, r := range wire.Results {
		results = append(results, Result{
			Title:     r.Title,
			Snippet:   r.Content,
			URL:       r.URL,
			Relevance: clamp01(r.Score),
		})
	}
	return &Response{
		Query:    query,
		Results:  results,
		Latency:  time.Since(start),
		Success:  true,
		Metadata: map[string]any{"backend": t.Name()},
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
