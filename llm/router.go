package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 主 Provider 选择模式："auto" 表示按偏好顺序取第一个健康者。
const PrimaryAuto = "auto"

// probeTimeout 回退链中对不健康主选 Provider 的单次探活上限。
const probeTimeout = 10 * time.Second

// RouterOptions 控制路由器的选择与回退行为。
type RouterOptions struct {
	PrimaryProvider     string        // 名称或 "auto"
	PreferredProviders  []string      // auto 模式下的偏好顺序
	FallbackProviders   []string      // 运维配置的回退顺序，初始化后补全
	AutoFallback        bool          // 关闭后只尝试选中的 Provider
	HealthCheckInterval time.Duration // HealthCheck(force=false) 的节流窗口
	TokenUsageTracking  bool          // 关闭后不估算缺失的 usage
	Logger              *zap.Logger
	Metrics             MetricsSink
}

func normalizeRouterOptions(opts RouterOptions) RouterOptions {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PrimaryProvider == "" {
		opts.PrimaryProvider = PrimaryAuto
	}
	if opts.HealthCheckInterval <= 0 {
		opts.HealthCheckInterval = 5 * time.Minute
	}
	return opts
}

// MetricsSink 解耦指标上报；internal/metrics.Collector 实现它。
type MetricsSink interface {
	ObserveLLMRequest(provider string, outcome string, latency time.Duration)
	AddTokens(provider string, prompt, completion int)
	AddCost(provider string, usd float64)
	IncFallback()
}

// EmergencyProviderFactory 按厂商标签构造适配器，供 AddEmergencyFallback 使用。
// 由工厂包注入，避免 llm 包反向依赖具体适配器实现。
type EmergencyProviderFactory func(vendor VendorKind, apiKey string) (Provider, *ProviderConfig, error)

// Router 在多个 Provider 之间选择、分发并按类型化错误回退。
// 对并发 Complete 调用线程安全；状态记录使用每 Provider 独立锁。
type Router struct {
	mu        sync.RWMutex // 保护 providers/configs/order/primary
	providers map[string]Provider
	configs   map[string]*ProviderConfig
	status    map[string]*statusRecord
	order     []string // 注册顺序
	fallback  []string // 回退顺序（已补全）
	primary   string

	opts      RouterOptions
	logger    *zap.Logger
	metrics   MetricsSink
	estimator *TokenEstimator
	factory   EmergencyProviderFactory

	stats routerStats

	healthMu        sync.Mutex
	lastHealthCheck time.Time
	lastHealthSnap  map[string]bool
}

// NewRouter 注册已通过初始化的 Provider 并组装回退顺序：
// 先是运维配置的列表，再追加其余健康 Provider（按注册顺序）。
func NewRouter(providers map[string]Provider, configs map[string]*ProviderConfig, order []string, opts RouterOptions) *Router {
	opts = normalizeRouterOptions(opts)
	r := &Router{
		providers: make(map[string]Provider, len(providers)),
		configs:   make(map[string]*ProviderConfig, len(configs)),
		status:    make(map[string]*statusRecord, len(providers)),
		primary:   opts.PrimaryProvider,
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if opts.TokenUsageTracking {
		r.estimator = NewTokenEstimator()
	}
	for _, name := range order {
		p, ok := providers[name]
		if !ok {
			continue
		}
		r.providers[name] = p
		r.order = append(r.order, name)
		r.status[name] = newStatusRecord(true)
		if cfg := configs[name]; cfg != nil {
			r.configs[name] = cfg
			if cfg.InputCostPer1K > 0 && cfg.OutputCostPer1K == 0 {
				// 配置缺失补全侧价格时按零计费，记录一次警告。
				r.logger.Warn("provider has no completion-side cost rate, cost accounting treats it as free",
					zap.String("provider", name))
			}
		}
	}
	r.fallback = r.composeFallbackOrder(opts.FallbackProviders)
	return r
}

// SetEmergencyFactory 注入紧急回退 Provider 的构造工厂。
func (r *Router) SetEmergencyFactory(f EmergencyProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = f
}

func (r *Router) composeFallbackOrder(configured []string) []string {
	seen := make(map[string]bool, len(r.order))
	var out []string
	for _, name := range configured {
		if _, ok := r.providers[name]; ok && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	for _, name := range r.order {
		if !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	return out
}

// Providers 返回注册顺序的 Provider 名称列表。
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Status 返回所有 Provider 的状态快照。
func (r *Router) Status() map[string]ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ProviderStatus, len(r.status))
	for name, rec := range r.status {
		out[name] = rec.snapshot()
	}
	return out
}

// SwitchPrimary 切换主 Provider；仅当目标存在且健康时生效。
func (r *Router) SwitchPrimary(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.status[name]
	if !ok || !rec.healthy() {
		return false
	}
	r.primary = name
	r.logger.Info("primary provider switched", zap.String("provider", name))
	return true
}

// AddEmergencyFallback 动态注册最后兜底的 Provider 并追加到回退链末尾。
func (r *Router) AddEmergencyFallback(vendor VendorKind, apiKey string) bool {
	r.mu.Lock()
	factory := r.factory
	r.mu.Unlock()
	if factory == nil {
		r.logger.Warn("no emergency provider factory configured", zap.String("vendor", string(vendor)))
		return false
	}
	p, cfg, err := factory(vendor, apiKey)
	if err != nil {
		r.logger.Warn("emergency fallback provider construction failed",
			zap.String("vendor", string(vendor)), zap.Error(err))
		return false
	}
	name := p.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return false
	}
	r.providers[name] = p
	r.configs[name] = cfg
	r.status[name] = newStatusRecord(true)
	r.order = append(r.order, name)
	r.fallback = append(r.fallback, name)
	r.logger.Info("emergency fallback provider registered", zap.String("provider", name))
	return true
}

// HealthCheck 探活所有 Provider。force=false 时在节流窗口内返回缓存快照。
func (r *Router) HealthCheck(ctx context.Context, force bool) map[string]bool {
	r.healthMu.Lock()
	if !force && r.lastHealthSnap != nil && time.Since(r.lastHealthCheck) < r.opts.HealthCheckInterval {
		snap := r.lastHealthSnap
		r.healthMu.Unlock()
		return snap
	}
	r.healthMu.Unlock()

	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.RUnlock()

	out := make(map[string]bool, len(names))
	for _, name := range names {
		out[name] = r.probe(ctx, name)
	}

	r.healthMu.Lock()
	r.lastHealthCheck = time.Now()
	r.lastHealthSnap = out
	r.healthMu.Unlock()
	return out
}

// probe 执行单个 Provider 的限时探活并回写状态。
func (r *Router) probe(ctx context.Context, name string) bool {
	r.mu.RLock()
	p, ok := r.providers[name]
	rec := r.status[name]
	r.mu.RUnlock()
	if !ok || rec == nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	st, err := p.HealthCheck(probeCtx)
	healthy := err == nil && st != nil && st.Healthy
	rec.setHealthy(healthy)
	if err != nil {
		r.logger.Warn("provider health probe failed", zap.String("provider", name), zap.Error(err))
	}
	return healthy
}

// selectProvider 实现选择策略：指名 > auto 偏好顺序 > 固定主选 > 注册顺序兜底。
func (r *Router) selectProvider(requested string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	isHealthy := func(name string) bool {
		rec, ok := r.status[name]
		return ok && rec.healthy()
	}

	if requested != "" && isHealthy(requested) {
		return requested, true
	}
	if r.primary == PrimaryAuto {
		for _, name := range r.opts.PreferredProviders {
			if isHealthy(name) {
				return name, true
			}
		}
	} else if isHealthy(r.primary) {
		return r.primary, true
	}
	for _, name := range r.order {
		if isHealthy(name) {
			return name, true
		}
	}
	// 全部不健康时仍返回主选（或注册首位），由回退链做受限探活。
	if r.primary != PrimaryAuto {
		if _, ok := r.providers[r.primary]; ok {
			return r.primary, false
		}
	}
	if len(r.order) > 0 {
		return r.order[0], false
	}
	return "", false
}

// attemptList 构造有序尝试列表：[selected, fallback 顺序去重去重复]。
func (r *Router) attemptList(selected string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []string{selected}
	if !r.opts.AutoFallback {
		return out
	}
	for _, name := range r.fallback {
		if name != selected {
			out = append(out, name)
		}
	}
	return out
}

// Complete 是路由器的主操作。失败以数据形式返回（Success=false + Err），
// 公共边界不抛错误。
func (r *Router) Complete(ctx context.Context, req *ChatRequest) *ChatResponse {
	if req == nil || len(req.Messages) == 0 {
		return &ChatResponse{Success: false, Err: &Error{Kind: KindInvalidRequest, Message: "empty request"}}
	}
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}
	r.stats.totalRequests.Add(1)

	selected, _ := r.selectProvider(req.Provider)
	if selected == "" {
		r.stats.failedRequests.Add(1)
		return &ChatResponse{Success: false, Err: &Error{Kind: KindUnknown, Message: "no providers available"}}
	}

	attempts := r.attemptList(selected)
	kindCounts := make(map[ErrorKind]int)
	var lastErr *Error

	for i, name := range attempts {
		r.mu.RLock()
		p := r.providers[name]
		rec := r.status[name]
		cfg := r.configs[name]
		r.mu.RUnlock()
		if p == nil || rec == nil {
			continue
		}

		if !rec.healthy() {
			if i == 0 {
				// 主选不健康：给一次受限探活的恢复机会。
				if !r.probe(ctx, name) {
					continue
				}
			} else {
				continue
			}
		}

		resp, lerr := r.dispatch(ctx, name, p, cfg, req)
		if lerr == nil {
			rec.recordSuccess(resp.Latency)
			r.accountSuccess(name, cfg, req, resp)
			if i > 0 {
				r.stats.fallbackCount.Add(1)
				if r.metrics != nil {
					r.metrics.IncFallback()
				}
				r.logger.Info("request served by fallback provider",
					zap.String("trace_id", req.TraceID),
					zap.String("selected", attempts[0]),
					zap.String("provider", name))
			}
			return resp
		}

		rec.recordFailure(lerr.Kind)
		kindCounts[lerr.Kind]++
		lastErr = lerr
		if r.metrics != nil {
			r.metrics.ObserveLLMRequest(name, "error", 0)
		}
		r.logger.Warn("provider attempt failed",
			zap.String("trace_id", req.TraceID),
			zap.String("provider", name),
			zap.String("kind", string(lerr.Kind)),
			zap.Error(lerr))

		if lerr.Kind == KindAuth {
			// 鉴权失败是终止性的：推进候选无济于事且浪费配额。
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	r.stats.failedRequests.Add(1)
	return &ChatResponse{Success: false, Err: composeExhaustionError(kindCounts, lastErr)}
}

// dispatch 执行单次 Provider 调用并做错误分类，不做重试。
func (r *Router) dispatch(ctx context.Context, name string, p Provider, cfg *ProviderConfig, req *ChatRequest) (*ChatResponse, *Error) {
	callReq := *req
	if cfg != nil {
		if callReq.Model == "" {
			callReq.Model = cfg.Model
		}
		if callReq.Temperature == 0 {
			callReq.Temperature = cfg.Temperature
		}
		if callReq.MaxTokens == 0 {
			callReq.MaxTokens = cfg.MaxTokens
		}
	}

	start := time.Now()
	resp, err := p.Completion(ctx, &callReq)
	latency := time.Since(start)
	if err != nil {
		return nil, AsError(err, name)
	}
	if resp == nil {
		return nil, &Error{Kind: KindParse, Message: "provider returned empty response", Provider: name}
	}
	if !resp.Success && resp.Err != nil {
		return nil, resp.Err
	}
	resp.Success = true
	resp.Provider = name
	if resp.Latency == 0 {
		resp.Latency = latency
	}
	return resp, nil
}

// accountSuccess 更新统计、成本与指标。缺失 usage 时按 tiktoken 估算
//（仅在开启 token_usage_tracking 时）。
func (r *Router) accountSuccess(name string, cfg *ProviderConfig, req *ChatRequest, resp *ChatResponse) {
	r.stats.successfulRequests.Add(1)
	r.stats.addUsage(name)

	usage := resp.Usage
	if usage == nil && r.estimator != nil {
		var promptText string
		for _, m := range req.Messages {
			promptText += m.Content
		}
		usage = &ChatUsage{
			PromptTokens:     r.estimator.Estimate(promptText),
			CompletionTokens: r.estimator.Estimate(resp.Content),
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	if usage != nil && cfg != nil {
		cost := float64(usage.PromptTokens)/1000*cfg.InputCostPer1K +
			float64(usage.CompletionTokens)/1000*cfg.OutputCostPer1K
		r.stats.addCost(name, cost)
		if r.metrics != nil {
			r.metrics.AddTokens(name, usage.PromptTokens, usage.CompletionTokens)
			r.metrics.AddCost(name, cost)
		}
	}
	if r.metrics != nil {
		r.metrics.ObserveLLMRequest(name, "success", resp.Latency)
	}
}

// Call 是便捷包装：单 prompt（可选 system）直接取回文本，失败时返回 error。
// 这是核心中唯一以 error 形式对外暴露失败的公共入口。
func (r *Router) Call(ctx context.Context, prompt, system string, temperature float32) (string, error) {
	var msgs []Message
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: prompt})

	resp := r.Complete(ctx, &ChatRequest{Messages: msgs, Temperature: temperature})
	if !resp.Success {
		if resp.Err != nil {
			return "", resp.Err
		}
		return "", errors.New("llm call failed")
	}
	return resp.Content, nil
}

// Stream 选择健康 Provider 并透传其流式通道。首个 chunk 之前的建流失败
// 按 Complete 的回退语义推进候选（Auth 仍终止整条链）；流建立后的错误
// 通过 chunk.Err 传递，不再回退。
func (r *Router) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &Error{Kind: KindInvalidRequest, Message: "empty request"}
	}
	selected, _ := r.selectProvider(req.Provider)
	if selected == "" {
		return nil, &Error{Kind: KindUnknown, Message: "no providers available for streaming"}
	}

	var lastErr *Error
	for i, name := range r.attemptList(selected) {
		r.mu.RLock()
		p := r.providers[name]
		rec := r.status[name]
		cfg := r.configs[name]
		r.mu.RUnlock()
		if p == nil || rec == nil {
			continue
		}

		if !rec.healthy() {
			if i == 0 {
				if !r.probe(ctx, name) {
					continue
				}
			} else {
				continue
			}
		}

		callReq := *req
		if cfg != nil {
			if callReq.Model == "" {
				callReq.Model = cfg.Model
			}
			if callReq.Temperature == 0 {
				callReq.Temperature = cfg.Temperature
			}
		}
		ch, err := p.Stream(ctx, &callReq)
		if err == nil {
			if i > 0 {
				r.logger.Info("stream served by fallback provider",
					zap.String("selected", selected),
					zap.String("provider", name))
			}
			return ch, nil
		}

		lerr := AsError(err, name)
		rec.recordFailure(lerr.Kind)
		lastErr = lerr
		r.logger.Warn("provider stream attempt failed",
			zap.String("provider", name),
			zap.String("kind", string(lerr.Kind)),
			zap.Error(lerr))

		if lerr.Kind == KindAuth {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &Error{Kind: KindUnknown, Message: "no healthy provider for streaming"}
}

// composeExhaustionError 聚合回退链耗尽后的错误报告。
func composeExhaustionError(kindCounts map[ErrorKind]int, last *Error) *Error {
	kind := KindUnknown
	msg := "all providers failed"
	if last != nil {
		kind = last.Kind
		msg = fmt.Sprintf("all providers failed (network=%d auth=%d rate_limit=%d); last error from %s: %s",
			kindCounts[KindNetwork], kindCounts[KindAuth], kindCounts[KindRateLimit], last.Provider, last.Message)
	}
	return &Error{Kind: kind, Message: msg}
}
