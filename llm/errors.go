package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"
)

// 统一的 LLM 错误分类，用于对齐可重试性与降级策略。
// 路由器的回退状态机按 Kind 决策：Auth 终止整条回退链，
// RateLimit/Network/Timeout/Server 推进到下一个候选。
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"          // Socket/DNS/TLS 失败
	KindTimeout        ErrorKind = "timeout"          // 连接或读取超时
	KindAuth           ErrorKind = "auth"             // 未授权或密钥失效
	KindRateLimit      ErrorKind = "rate_limit"       // 上游限流或配额用尽
	KindInvalidRequest ErrorKind = "invalid_request"  // 参数/格式错误
	KindModelNotFound  ErrorKind = "model_not_found"  // 模型不存在
	KindServer         ErrorKind = "server"           // 上游 5xx
	KindParse          ErrorKind = "parse"            // 响应解析失败
	KindUnknown        ErrorKind = "unknown"
)

type Error struct {
	Kind       ErrorKind     `json:"kind"`
	Message    string        `json:"message"`
	HTTPStatus int           `json:"http_status,omitempty"`
	Retryable  bool          `json:"retryable"`
	Provider   string        `json:"provider,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"` // 上游 Retry-After 提示，0 表示未知
}

func (e *Error) Error() string { return e.Message }

// AsError 将任意 error 规整为 *Error。已经是 *Error 的原样返回，
// 其余按传输层特征分类。
func AsError(err error, provider string) *Error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	return ClassifyTransportError(err, provider)
}

// ClassifyTransportError 将 HTTP 客户端返回的底层错误映射为类型化错误。
// 超时优先于网络错误判定：context 取消/超时与 net.Error 的 Timeout 均计为 Timeout。
func ClassifyTransportError(err error, provider string) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: err.Error(), Retryable: true, Provider: provider}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindTimeout, Message: err.Error(), Provider: provider}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return &Error{Kind: KindTimeout, Message: err.Error(), Retryable: true, Provider: provider}
		}
		return &Error{Kind: KindNetwork, Message: err.Error(), Retryable: true, Provider: provider}
	}

	var se *json.SyntaxError
	var ue *json.UnmarshalTypeError
	if errors.As(err, &se) || errors.As(err, &ue) {
		return &Error{Kind: KindParse, Message: err.Error(), Retryable: true, Provider: provider}
	}

	var oe *net.OpError
	var de *net.DNSError
	if errors.As(err, &oe) || errors.As(err, &de) {
		return &Error{Kind: KindNetwork, Message: err.Error(), Retryable: true, Provider: provider}
	}

	return &Error{Kind: KindUnknown, Message: err.Error(), Provider: provider}
}
