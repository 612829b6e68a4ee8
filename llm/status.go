package llm

import (
	"sync"
	"time"
)

// unhealthyThreshold 连续错误达到该值即标记不健康。
const unhealthyThreshold = 3

// ProviderStatus 是对外暴露的状态快照。
// 不变式：ConsecutiveErrors >= 3 ⇔ Healthy == false（任一操作落定之后）。
type ProviderStatus struct {
	Healthy           bool          `json:"healthy"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	SuccessCount      int64         `json:"success_count"`
	AvgLatency        time.Duration `json:"avg_latency"` // 指数移动平均
	LastCheck         time.Time     `json:"last_check"`
	LastErrorKind     ErrorKind     `json:"last_error_kind,omitempty"`
}

// statusRecord 持有单个 Provider 的可变状态，带独立互斥锁，
// 避免一个 Provider 的探活阻塞其他 Provider 的调用方。
type statusRecord struct {
	mu sync.Mutex
	st ProviderStatus
}

func newStatusRecord(healthy bool) *statusRecord {
	return &statusRecord{st: ProviderStatus{Healthy: healthy, LastCheck: time.Now()}}
}

func (r *statusRecord) snapshot() ProviderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st
}

func (r *statusRecord) healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.Healthy
}

// recordSuccess 重置连续错误计数并更新 EMA 延迟：ema = (ema+latency)/2。
func (r *statusRecord) recordSuccess(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Healthy = true
	r.st.ConsecutiveErrors = 0
	r.st.SuccessCount++
	r.st.LastCheck = time.Now()
	r.st.LastErrorKind = ""
	if r.st.AvgLatency > 0 {
		r.st.AvgLatency = (r.st.AvgLatency + latency) / 2
	} else {
		r.st.AvgLatency = latency
	}
}

// recordFailure 返回失败落定后的连续错误数。
func (r *statusRecord) recordFailure(kind ErrorKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.ConsecutiveErrors++
	r.st.LastCheck = time.Now()
	r.st.LastErrorKind = kind
	if r.st.ConsecutiveErrors >= unhealthyThreshold {
		r.st.Healthy = false
	}
	return r.st.ConsecutiveErrors
}

// setHealthy 由探活路径直接设置健康位；恢复健康同时清零连续错误。
func (r *statusRecord) setHealthy(healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Healthy = healthy
	r.st.LastCheck = time.Now()
	if healthy {
		r.st.ConsecutiveErrors = 0
	} else if r.st.ConsecutiveErrors < unhealthyThreshold {
		r.st.ConsecutiveErrors = unhealthyThreshold
	}
}
