// Package tools 提供进程内能力注册中心。验证器按名称调用能力
//（web_search、idea_verification），不直接依赖具体实现。
package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/seedforge/llm"
	"go.uber.org/zap"
)

// ToolFunc 是能力函数签名。实现返回领域数据，不直接构造 Result 外壳。
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// Result 是能力执行的统一出参。
type Result struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Err      *llm.Error     `json:"error,omitempty"`
}

// Registry 是并发安全的能力注册中心。
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]ToolFunc
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]ToolFunc),
		logger: logger,
	}
}

// Register 登记能力；重名报错。
func (r *Registry) Register(name string, fn ToolFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = fn
	r.logger.Info("tool registered", zap.String("name", name))
	return nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Execute 执行能力并包装为 Result。实现 panic 时恢复为失败结果，
// 绝不让 panic 穿透到调用方。
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result *Result) {
	r.mu.RLock()
	fn, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return &Result{
			Success: false,
			Err: &llm.Error{
				Kind:    llm.KindInvalidRequest,
				Message: fmt.Sprintf("tool %s not registered", name),
			},
		}
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked",
				zap.String("name", name), zap.Any("panic", rec))
			result = &Result{
				Success: false,
				Err: &llm.Error{
					Kind:    llm.KindUnknown,
					Message: fmt.Sprintf("tool %s panicked: %v", name, rec),
				},
			}
		}
	}()

	data, err := fn(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Warn("tool execution failed",
			zap.String("name", name), zap.Duration("duration", elapsed), zap.Error(err))
		return &Result{
			Success:  false,
			Metadata: map[string]any{"duration_ms": elapsed.Milliseconds()},
			Err:      llm.AsError(err, ""),
		}
	}
	return &Result{
		Success:  true,
		Data:     data,
		Metadata: map[string]any{"duration_ms": elapsed.Milliseconds()},
	}
}
