package llm

import (
	"sync"
	"sync/atomic"
)

// RouterStats 是路由器统计的只读快照。
// 不变式：Σ ProviderUsage == SuccessfulRequests；FallbackCount <= SuccessfulRequests。
type RouterStats struct {
	TotalRequests      int64              `json:"total_requests"`
	SuccessfulRequests int64              `json:"successful_requests"`
	FailedRequests     int64              `json:"failed_requests"`
	FallbackCount      int64              `json:"fallback_count"`
	ProviderUsage      map[string]int64   `json:"provider_usage"`
	ProviderCost       map[string]float64 `json:"provider_cost"` // 以 USD 计
}

type routerStats struct {
	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
	fallbackCount      atomic.Int64

	mu    sync.Mutex
	usage map[string]int64
	cost  map[string]float64
}

func (s *routerStats) addUsage(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usage == nil {
		s.usage = make(map[string]int64)
	}
	s.usage[provider]++
}

func (s *routerStats) addCost(provider string, usd float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cost == nil {
		s.cost = make(map[string]float64)
	}
	s.cost[provider] += usd
}

// Stats 返回统计快照。
func (r *Router) Stats() RouterStats {
	out := RouterStats{
		TotalRequests:      r.stats.totalRequests.Load(),
		SuccessfulRequests: r.stats.successfulRequests.Load(),
		FailedRequests:     r.stats.failedRequests.Load(),
		FallbackCount:      r.stats.fallbackCount.Load(),
		ProviderUsage:      make(map[string]int64),
		ProviderCost:       make(map[string]float64),
	}
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()
	for k, v := range r.stats.usage {
		out.ProviderUsage[k] = v
	}
	for k, v := range r.stats.cost {
		out.ProviderCost[k] = v
	}
	return out
}
