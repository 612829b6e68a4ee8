package llm

import (
	"context"
	"os"
	"strings"
	"time"
)

// VendorKind 标识 Provider 的厂商协议族。
type VendorKind string

const (
	VendorDeepSeek  VendorKind = "deepseek"
	VendorOpenAI    VendorKind = "openai"
	VendorAnthropic VendorKind = "anthropic"
	VendorGemini    VendorKind = "gemini"
	VendorOllama    VendorKind = "ollama"
	VendorAzure     VendorKind = "azure"
)

// ProviderConfig 描述一个 LLM 厂商实例，构造后不可变。
type ProviderConfig struct {
	Vendor          VendorKind    `json:"vendor" yaml:"vendor"`
	Name            string        `json:"name" yaml:"name"` // 唯一标识，默认取 Vendor
	APIKey          string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIKeyEnv       string        `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Model           string        `json:"model" yaml:"model"`
	BaseURL         string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Temperature     float32       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens       int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	ConnectTimeout  time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
	ReadTimeout     time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	MaxRetries      int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryBaseDelay  time.Duration `json:"retry_base_delay,omitempty" yaml:"retry_base_delay,omitempty"`
	MinInterval     time.Duration `json:"min_interval,omitempty" yaml:"min_interval,omitempty"`
	InputCostPer1K  float64       `json:"input_cost_per_1k,omitempty" yaml:"input_cost_per_1k,omitempty"`
	OutputCostPer1K float64       `json:"output_cost_per_1k,omitempty" yaml:"output_cost_per_1k,omitempty"`
	Enabled         bool          `json:"enabled" yaml:"enabled"`
}

// ResolveAPIKey 解析凭证：配置字面值优先，其次读 APIKeyEnv 指定的环境变量。
// 两者皆空时返回空串，由调用方决定跳过该 Provider。
func (c *ProviderConfig) ResolveAPIKey() string {
	if k := strings.TrimSpace(c.APIKey); k != "" {
		return k
	}
	if c.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
	}
	return ""
}

// Provider 定义统一的 ChatCompletion 能力。适配器除 HTTP 客户端外无状态，
// 从不重试：重试与回退策略属于路由器。
type Provider interface {
	// Completion 发起同步补全请求。
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream 发起流式补全请求，返回增量 chunk 通道。
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// HealthCheck 执行轻量探活（models/version 端点），用于配置校验与路由降级。
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// ListModels 返回可用模型名列表。
	ListModels(ctx context.Context) ([]string, error)

	// Name 返回 Provider 的唯一标识。
	Name() string
}
