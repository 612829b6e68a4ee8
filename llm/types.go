package llm

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 是路由器与适配器之间的统一请求。
// Provider 为空时由路由器按选择策略决定；非空时指名调用（仍受健康状态约束）。
type ChatRequest struct {
	TraceID     string            `json:"trace_id,omitempty"`
	Provider    string            `json:"provider,omitempty"`
	Model       string            `json:"model,omitempty"`
	Messages    []Message         `json:"messages"`
	Temperature float32           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse 聚合一次补全的结果。失败时 Success=false、Content 为空且 Err 必填；
// 错误始终以数据形式返回，路由器公共边界不抛异常（Call 包装器除外）。
type ChatResponse struct {
	Success      bool          `json:"success"`
	Content      string        `json:"content"`
	Provider     string        `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
	Latency      time.Duration `json:"latency"`
	Usage        *ChatUsage    `json:"usage,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Err          *Error        `json:"error,omitempty"`
}

// StreamChunk 是流式响应的最小增量。最终 chunk 可带 Usage。
type StreamChunk struct {
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	Delta        string     `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *ChatUsage `json:"usage,omitempty"`
	Err          *Error     `json:"error,omitempty"`
}

// HealthStatus 表示一次探活的结果。
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}
