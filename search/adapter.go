package search

import (
	"context"
	"time"

	"github.com/BaSui01/seedforge/llm"
	"go.uber.org/zap"
)

const (
	backoffCap          = 30 * time.Second
	backoffCapRateLimit = 60 * time.Second
	retryAfterCap       = 120 * time.Second
)

// AdapterConfig 汇集搜索相关的配置键。
type AdapterConfig struct {
	EnableReal     bool          // false 时全部走 Mock
	MaxResults     int           // 默认 8
	MaxRetries     int           // 默认 2
	RetryBaseDelay time.Duration // 默认 2s
	RateInterval   time.Duration // 默认 1.5s
}

func (c AdapterConfig) withDefaults() AdapterConfig {
	if c.MaxResults <= 0 {
		c.MaxResults = 8
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	if c.RateInterval <= 0 {
		c.RateInterval = DefaultRateInterval
	}
	return c
}

// AdapterMetrics 解耦搜索指标上报。
type AdapterMetrics interface {
	ObserveSearch(backend string, outcome string, latency time.Duration)
}

// Adapter 为任意后端施加限流、分类重试与 Mock 降级。
// 对调用方从不返回 error：终止性失败以 Response{Success:false} 表达。
type Adapter struct {
	cfg     AdapterConfig
	backend Client
	mock    *MockClient
	limiter *Limiter
	logger  *zap.Logger
	metrics AdapterMetrics
	sleep   func(context.Context, time.Duration) // 测试注入
}

// NewAdapter 构造搜索适配器。backend 为 nil 或 EnableReal=false 时只用 Mock。
// limiter 传 nil 使用进程级共享限流器。
func NewAdapter(cfg AdapterConfig, backend Client, limiter *Limiter, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = SharedLimiter()
	}
	return &Adapter{
		cfg:     cfg.withDefaults(),
		backend: backend,
		mock:    NewMockClient(),
		limiter: limiter,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// SetMetrics 注入指标采集器。
func (a *Adapter) SetMetrics(m AdapterMetrics) { a.metrics = m }

// Name 返回当前生效的后端名。
func (a *Adapter) Name() string {
	if a.cfg.EnableReal && a.backend != nil {
		return a.backend.Name()
	}
	return a.mock.Name()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Search 执行一次限流搜索。重试可恢复错误；耗尽后按错误类别决定
// Mock 降级（RateLimit/Timeout/Network/Server/Parse）或原样失败（Auth 等）。
func (a *Adapter) Search(ctx context.Context, query string, maxResults int) *Response {
	if maxResults <= 0 {
		maxResults = a.cfg.MaxResults
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return &Response{Query: query, Success: false,
			Err: &llm.Error{Kind: llm.KindTimeout, Message: "rate limiter wait canceled: " + err.Error()}}
	}

	if !a.cfg.EnableReal || a.backend == nil {
		return a.mockSearch(ctx, query, maxResults)
	}

	start := time.Now()
	var lastErr *llm.Error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		resp, err := a.backend.Search(ctx, query, maxResults)
		if err == nil && resp != nil {
			resp.Success = true
			if a.metrics != nil {
				a.metrics.ObserveSearch(a.backend.Name(), "success", time.Since(start))
			}
			return resp
		}
		lastErr = llm.AsError(err, a.backend.Name())
		if lastErr == nil {
			// err 与 resp 同时为 nil 属后端契约破坏，按未知错误归类。
			lastErr = &llm.Error{Kind: llm.KindUnknown,
				Message: "backend returned empty response", Provider: a.backend.Name()}
		}
		a.logger.Warn("search attempt failed",
			zap.String("backend", a.backend.Name()),
			zap.String("query", truncate(query, 60)),
			zap.Int("attempt", attempt),
			zap.String("kind", string(lastErr.Kind)),
			zap.Error(lastErr))

		if !retryableSearchKind(lastErr.Kind) || attempt == a.cfg.MaxRetries || ctx.Err() != nil {
			break
		}
		a.sleep(ctx, a.backoffDelay(attempt, lastErr))
	}

	if a.metrics != nil {
		a.metrics.ObserveSearch(a.backend.Name(), "error", time.Since(start))
	}

	if recoverableSearchKind(lastErr.Kind) {
		// 可恢复失败降级到 Mock，保证流水线可演示；鉴权失败必须上浮。
		a.logger.Warn("search unavailable, using mock fallback",
			zap.String("backend", a.backend.Name()),
			zap.String("kind", string(lastErr.Kind)))
		resp := a.mockSearch(ctx, query, maxResults)
		if resp.Metadata == nil {
			resp.Metadata = map[string]any{}
		}
		resp.Metadata["degraded_from"] = a.backend.Name()
		return resp
	}

	return &Response{Query: query, Success: false, Err: lastErr, Latency: time.Since(start)}
}

func (a *Adapter) mockSearch(ctx context.Context, query string, maxResults int) *Response {
	resp, _ := a.mock.Search(ctx, query, min(maxResults, 3))
	if a.metrics != nil {
		a.metrics.ObserveSearch("mock", "success", resp.Latency)
	}
	return resp
}

// backoffDelay 计算指数退避：base * 2^attempt，RateLimit 封顶 60s、其余 30s；
// 上游 Retry-After 提示在 120s 内优先。
func (a *Adapter) backoffDelay(attempt int, lerr *llm.Error) time.Duration {
	if lerr.RetryAfter > 0 && lerr.RetryAfter <= retryAfterCap {
		return lerr.RetryAfter
	}
	d := a.cfg.RetryBaseDelay << uint(attempt)
	limit := backoffCap
	if lerr.Kind == llm.KindRateLimit {
		limit = backoffCapRateLimit
	}
	if d > limit {
		d = limit
	}
	return d
}

func retryableSearchKind(k llm.ErrorKind) bool {
	switch k {
	case llm.KindRateLimit, llm.KindNetwork, llm.KindTimeout, llm.KindServer, llm.KindParse:
		return true
	}
	return false
}

func recoverableSearchKind(k llm.ErrorKind) bool {
	switch k {
	case llm.KindRateLimit, llm.KindNetwork, llm.KindTimeout, llm.KindServer, llm.KindParse, llm.KindUnknown:
		return true
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
