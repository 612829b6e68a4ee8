package providers

// OpenAI 兼容 API 通用类型。
// DeepSeek、Azure、Ollama 等兼容 OpenAI 线格式的厂商共享这些定义。

type OpenAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAICompatRequest struct {
	Model       string                `json:"model"`
	Messages    []OpenAICompatMessage `json:"messages"`
	Temperature float32               `json:"temperature,omitempty"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
	Stream      bool                  `json:"stream,omitempty"`
}

type OpenAICompatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAICompatChoice struct {
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason,omitempty"`
	Message      *struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message,omitempty"`
	Delta *struct {
		Content string `json:"content"`
	} `json:"delta,omitempty"`
}

type OpenAICompatResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Created int64                `json:"created"`
	Choices []OpenAICompatChoice `json:"choices"`
	Usage   *OpenAICompatUsage   `json:"usage,omitempty"`
}

type OpenAICompatModelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}
