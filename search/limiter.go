package search

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRateInterval 是进程级搜索礼貌间隔的默认值。
const DefaultRateInterval = 1500 * time.Millisecond

// Limiter 对搜索后端施加最小请求间隔。有意全局：它建模的是
// 外部服务的礼貌约定，而非单个调用方的预算。
type Limiter struct {
	lim *rate.Limiter
}

func NewLimiter(minInterval time.Duration) *Limiter {
	if minInterval <= 0 {
		minInterval = DefaultRateInterval
	}
	return &Limiter{lim: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait 阻塞到距上次放行至少 minInterval，或 ctx 取消。
func (l *Limiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

var (
	sharedOnce    sync.Once
	sharedLimiter *Limiter
)

// SharedLimiter 返回进程级共享限流器（默认间隔）。
func SharedLimiter() *Limiter {
	sharedOnce.Do(func() {
		sharedLimiter = NewLimiter(DefaultRateInterval)
	})
	return sharedLimiter
}
