package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/seedforge/llm"
)

// MapHTTPError 将 HTTP 状态码与错误消息映射为类型化错误。
// 这是所有适配器共用的分类表：
//   401/403 或消息含 "api key"           -> Auth
//   429 或消息含 rate/limit/retry after  -> RateLimit（解析 Retry-After 提示）
//   400                                  -> InvalidRequest
//   404 且消息含 model                   -> ModelNotFound
//   >= 500                               -> Server
func MapHTTPError(status int, msg string, retryAfter time.Duration, provider string) *llm.Error {
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		strings.Contains(lower, "api key") || strings.Contains(lower, "api_key"):
		return &llm.Error{Kind: llm.KindAuth, Message: msg, HTTPStatus: status, Provider: provider}
	case status == http.StatusTooManyRequests ||
		strings.Contains(lower, "rate") || strings.Contains(lower, "retry after") ||
		(status == http.StatusBadRequest && strings.Contains(lower, "limit")):
		return &llm.Error{
			Kind: llm.KindRateLimit, Message: msg, HTTPStatus: status,
			Retryable: true, Provider: provider, RetryAfter: retryAfter,
		}
	case status == http.StatusBadRequest:
		return &llm.Error{Kind: llm.KindInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	case status == http.StatusNotFound && strings.Contains(lower, "model"):
		return &llm.Error{Kind: llm.KindModelNotFound, Message: msg, HTTPStatus: status, Provider: provider}
	case status >= 500:
		return &llm.Error{Kind: llm.KindServer, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &llm.Error{Kind: llm.KindUnknown, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: provider}
	}
}

// ParseRetryAfter 解析 Retry-After 响应头（秒数或 HTTP 日期），未知返回 0。
func ParseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// ReadErrorMessage 从错误响应体提取消息；JSON 解析失败时回退到原始文本。
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 8<<10))
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil {
		if errResp.Error.Message != "" {
			if errResp.Error.Type != "" {
				return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
			}
			return errResp.Error.Message
		}
		if errResp.Message != "" {
			return errResp.Message
		}
	}
	return strings.TrimSpace(string(data))
}

// NewHTTPClient 构造带连接/读取双超时的客户端。connect 控制拨号与 TLS 握手，
// read 为整个请求的总上限。
func NewHTTPClient(connect, read time.Duration) *http.Client {
	if connect <= 0 {
		connect = 10 * time.Second
	}
	if read <= 0 {
		read = 60 * time.Second
	}
	return &http.Client{
		Timeout: read,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: connect}).DialContext,
			TLSHandshakeTimeout:   connect,
			ResponseHeaderTimeout: read,
			MaxIdleConnsPerHost:   8,
		},
	}
}

// ChooseModel 按优先级选择模型：请求指定 > 配置默认 > 厂商兜底。
func ChooseModel(reqModel, configModel, defaultModel string) string {
	if reqModel != "" {
		return reqModel
	}
	if configModel != "" {
		return configModel
	}
	return defaultModel
}
