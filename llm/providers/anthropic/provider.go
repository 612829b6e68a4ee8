// Package anthropic 适配 Anthropic Messages API。
// system 消息被提升为顶层 system 字段，这是该 API 与 OpenAI 线格式的主要差异。
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/seedforge/llm"
	"github.com/BaSui01/seedforge/llm/providers"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	defaultModel   = "claude-3-5-haiku-latest"
)

type Config struct {
	APIKey         string
	BaseURL        string
	DefaultModel   string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxTokens      int // Messages API 要求 max_tokens 必填
}

type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: providers.NewHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout),
		logger: logger,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) headers(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

type wireRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) buildBody(req *llm.ChatRequest, stream bool) wireRequest {
	body := wireRequest{
		Model:       providers.ChooseModel(req.Model, "", p.cfg.DefaultModel),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = p.cfg.MaxTokens
	}
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			if body.System != "" {
				body.System += "\n"
			}
			body.System += m.Content
			continue
		}
		body.Messages = append(body.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return body
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	payload, err := json.Marshal(p.buildBody(req, false))
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: p.Name()}
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: p.Name()}
	}
	p.headers(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, providers.ParseRetryAfter(resp.Header), p.Name())
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &llm.Error{Kind: llm.KindParse, Message: err.Error(), Retryable: true, Provider: p.Name()}
	}

	out := &llm.ChatResponse{
		Success:      true,
		Provider:     p.Name(),
		Model:        wire.Model,
		Latency:      time.Since(start),
		FinishReason: wire.StopReason,
	}
	var sb strings.Builder
	for _, block := range wire.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out.Content = sb.String()
	if wire.Usage != nil {
		out.Usage = &llm.ChatUsage{
			PromptTokens:     wire.Usage.InputTokens,
			CompletionTokens: wire.Usage.OutputTokens,
			TotalTokens:      wire.Usage.InputTokens + wire.Usage.OutputTokens,
		}
	}
	return out, nil
}

// Stream 解析 Messages API 的事件流，仅转发 content_block_delta 的文本增量。
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	payload, err := json.Marshal(p.buildBody(req, true))
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: p.Name()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: p.Name()}
	}
	p.headers(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(err, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, providers.ParseRetryAfter(resp.Header), p.Name())
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					select {
					case <-ctx.Done():
					case ch <- llm.StreamChunk{Err: llm.ClassifyTransportError(err, p.Name())}:
					}
				}
				return
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var event struct {
				Type  string `json:"type"`
				Delta struct {
					Type       string `json:"type"`
					Text       string `json:"text"`
					StopReason string `json:"stop_reason"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue // 忽略无法解析的心跳/未知事件
			}
			switch event.Type {
			case "content_block_delta":
				select {
				case <-ctx.Done():
					return
				case ch <- llm.StreamChunk{Provider: p.Name(), Delta: event.Delta.Text}:
				}
			case "message_delta":
				if event.Delta.StopReason != "" {
					select {
					case <-ctx.Done():
					case ch <- llm.StreamChunk{Provider: p.Name(), FinishReason: event.Delta.StopReason}:
					}
				}
			case "message_stop":
				return
			}
		}
	}()
	return ch, nil
}

// HealthCheck 走 models 列表端点做轻量探活。
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1/models"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.headers(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, llm.ClassifyTransportError(err, p.Name())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			providers.MapHTTPError(resp.StatusCode, msg, providers.ParseRetryAfter(resp.Header), p.Name())
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1/models"), nil)
	if err != nil {
		return nil, err
	}
	p.headers(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(err, p.Name())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, providers.ParseRetryAfter(resp.Header), p.Name())
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &llm.Error{Kind: llm.KindParse, Message: err.Error(), Provider: p.Name()}
	}
	names := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		names = append(names, m.ID)
	}
	return names, nil
}
