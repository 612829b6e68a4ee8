// =============================================================================
// seedforge OpenAI-Compatible Provider Base
// =============================================================================
// Shared implementation for all OpenAI-compatible LLM providers.
// OpenAI, DeepSeek, Azure OpenAI and Ollama reuse this and only override
// what differs (name, base URL, default model, headers).
// =============================================================================

package openaicompat

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

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider (e.g., "deepseek").
	ProviderName string

	// APIKey is the authentication key. Ollama leaves it empty.
	APIKey string

	// BaseURL is the API base URL (e.g., "https://api.deepseek.com").
	BaseURL string

	// DefaultModel is used when the request names no model.
	DefaultModel string

	// ConnectTimeout/ReadTimeout form the adapter timeout pair.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string

	// ModelsEndpoint defaults to "/v1/models"; it backs HealthCheck and ListModels.
	ModelsEndpoint string

	// BuildHeaders optionally replaces the default bearer-token headers.
	// Azure uses "api-key"; Ollama needs no auth header.
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider is the base adapter for all OpenAI-wire vendors.
// Stateless beyond the HTTP client; it never retries.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/v1/models"
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

func (p *Provider) Name() string { return p.cfg.ProviderName }

func (p *Provider) buildHeaders(req *http.Request) {
	if p.cfg.BuildHeaders != nil {
		p.cfg.BuildHeaders(req, p.cfg.APIKey)
		return
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.cfg.BaseURL, "/"), path)
}

// HealthCheck probes the models endpoint; doubles as config validation.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

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

// ListModels returns the available model names.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, err
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(err, p.Name())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, providers.ParseRetryAfter(resp.Header), p.Name())
	}

	var list providers.OpenAICompatModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &llm.Error{Kind: llm.KindParse, Message: err.Error(), Provider: p.Name()}
	}
	names := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := p.buildBody(req, false)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: p.Name()}
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: p.Name()}
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, providers.ParseRetryAfter(resp.Header), p.Name())
	}

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{Kind: llm.KindParse, Message: err.Error(), Retryable: true, Provider: p.Name()}
	}
	return p.toChatResponse(oaResp, time.Since(start)), nil
}

func (p *Provider) buildBody(req *llm.ChatRequest, stream bool) providers.OpenAICompatRequest {
	msgs := make([]providers.OpenAICompatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, providers.OpenAICompatMessage{Role: string(m.Role), Content: m.Content})
	}
	return providers.OpenAICompatRequest{
		Model:       providers.ChooseModel(req.Model, "", p.cfg.DefaultModel),
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

func (p *Provider) toChatResponse(oa providers.OpenAICompatResponse, latency time.Duration) *llm.ChatResponse {
	out := &llm.ChatResponse{
		Success:  true,
		Provider: p.Name(),
		Model:    oa.Model,
		Latency:  latency,
	}
	if len(oa.Choices) > 0 {
		c := oa.Choices[0]
		out.FinishReason = c.FinishReason
		if c.Message != nil {
			out.Content = c.Message.Content
		}
	}
	if oa.Usage != nil {
		out.Usage = &llm.ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	return out
}

// Stream performs a streaming chat completion via SSE.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	body := p.buildBody(req, true)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: p.Name()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: p.Name()}
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(err, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, providers.ParseRetryAfter(resp.Header), p.Name())
	}

	return StreamSSE(ctx, resp.Body, p.Name()), nil
}

// StreamSSE parses an OpenAI-wire SSE stream into a chunk channel.
// The caller must have verified the response status before calling this.
func StreamSSE(ctx context.Context, body io.ReadCloser, providerName string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					select {
					case <-ctx.Done():
					case ch <- llm.StreamChunk{Err: llm.ClassifyTransportError(err, providerName)}:
					}
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var oaResp providers.OpenAICompatResponse
			if err := json.Unmarshal([]byte(data), &oaResp); err != nil {
				select {
				case <-ctx.Done():
				case ch <- llm.StreamChunk{Err: &llm.Error{Kind: llm.KindParse, Message: err.Error(), Provider: providerName}}:
				}
				return
			}

			for _, choice := range oaResp.Choices {
				chunk := llm.StreamChunk{
					Provider:     providerName,
					Model:        oaResp.Model,
					FinishReason: choice.FinishReason,
				}
				if choice.Delta != nil {
					chunk.Delta = choice.Delta.Content
				}
				if oaResp.Usage != nil {
					chunk.Usage = &llm.ChatUsage{
						PromptTokens:     oaResp.Usage.PromptTokens,
						CompletionTokens: oaResp.Usage.CompletionTokens,
						TotalTokens:      oaResp.Usage.TotalTokens,
					}
				}
				select {
				case <-ctx.Done():
					return
				case ch <- chunk:
				}
			}
		}
	}()
	return ch
}
