// Package gemini 适配 Google Gemini generateContent API。
// 消息映射：system 合并进 systemInstruction；assistant 角色映射为 "model"。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/seedforge/llm"
	"github.com/BaSui01/seedforge/llm/providers"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

type Config struct {
	APIKey         string
	BaseURL        string
	DefaultModel   string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
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
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: providers.NewHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout),
		logger: logger,
	}
}

func (p *Provider) Name() string { return "gemini" }

type wirePart struct {
	Text string `json:"text"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireRequest struct {
	SystemInstruction *wireContent `json:"systemInstruction,omitempty"`
	Contents          []wireContent `json:"contents"`
	GenerationConfig  *struct {
		Temperature     float32 `json:"temperature,omitempty"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type wireResponse struct {
	Candidates []struct {
		Content      wireContent `json:"content"`
		FinishReason string      `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p *Provider) buildBody(req *llm.ChatRequest) wireRequest {
	var body wireRequest
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			if body.SystemInstruction == nil {
				body.SystemInstruction = &wireContent{}
			}
			body.SystemInstruction.Parts = append(body.SystemInstruction.Parts, wirePart{Text: m.Content})
		case llm.RoleAssistant:
			body.Contents = append(body.Contents, wireContent{Role: "model", Parts: []wirePart{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, wireContent{Role: "user", Parts: []wirePart{{Text: m.Content}}})
		}
	}
	if req.Temperature != 0 || req.MaxTokens != 0 {
		body.GenerationConfig = &struct {
			Temperature     float32 `json:"temperature,omitempty"`
			MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		}{Temperature: req.Temperature, MaxOutputTokens: req.MaxTokens}
	}
	return body
}

func (p *Provider) endpoint(model, verb string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), model, verb, p.cfg.APIKey)
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := providers.ChooseModel(req.Model, "", p.cfg.DefaultModel)
	payload, err := json.Marshal(p.buildBody(req))
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: p.Name()}
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(model, "generateContent"), bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Message: err.Error(), Provider: p.Name()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
		Success:  true,
		Provider: p.Name(),
		Model:    model,
		Latency:  time.Since(start),
	}
	if len(wire.Candidates) > 0 {
		cand := wire.Candidates[0]
		out.FinishReason = cand.FinishReason
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
		out.Content = sb.String()
	}
	if wire.UsageMetadata != nil {
		out.Usage = &llm.ChatUsage{
			PromptTokens:     wire.UsageMetadata.PromptTokenCount,
			CompletionTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wire.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

// Stream 以单次补全模拟流：整体作为一个 chunk 发出。
// generateContent 的 SSE 变体暂未接入；验证器在单 chunk 流上行为不变。
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.Completion(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{
		Provider:     p.Name(),
		Model:        resp.Model,
		Delta:        resp.Content,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
	}
	close(ch)
	return ch, nil
}

func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/v1beta/models?key=%s&pageSize=1", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

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
	url := fmt.Sprintf("%s/v1beta/models?key=%s", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
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
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &llm.Error{Kind: llm.KindParse, Message: err.Error(), Provider: p.Name()}
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}
