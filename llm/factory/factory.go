// Package factory 按厂商标签构造 Provider 适配器，并实现路由器初始化协议：
// 枚举启用且凭证可解析的 Provider，探活通过者注册为健康；
// 全部失败时退化为单 Provider 模式。
package factory

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/seedforge/llm"
	"github.com/BaSui01/seedforge/llm/providers/anthropic"
	"github.com/BaSui01/seedforge/llm/providers/gemini"
	"github.com/BaSui01/seedforge/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const validateTimeout = 10 * time.Second

// 紧急回退时使用的厂商默认模型。
var vendorDefaults = map[llm.VendorKind]struct {
	baseURL string
	model   string
}{
	llm.VendorOpenAI:   {"https://api.openai.com", "gpt-4o-mini"},
	llm.VendorDeepSeek: {"https://api.deepseek.com", "deepseek-chat"},
	llm.VendorOllama:   {"http://localhost:11434", "llama3.1"},
}

// NewProvider 按配置构造适配器。OpenAI 线格式的厂商共用 openaicompat 基座。
func NewProvider(cfg llm.ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	apiKey := cfg.ResolveAPIKey()
	name := cfg.Name
	if name == "" {
		name = string(cfg.Vendor)
	}

	switch cfg.Vendor {
	case llm.VendorOpenAI, llm.VendorDeepSeek, llm.VendorOllama:
		base := cfg.BaseURL
		if base == "" {
			base = vendorDefaults[cfg.Vendor].baseURL
		}
		model := cfg.Model
		if model == "" {
			model = vendorDefaults[cfg.Vendor].model
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName:   name,
			APIKey:         apiKey,
			BaseURL:        base,
			DefaultModel:   model,
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    cfg.ReadTimeout,
		}, logger), nil

	case llm.VendorAzure:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("azure provider requires base_url")
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName:   name,
			APIKey:         apiKey,
			BaseURL:        cfg.BaseURL,
			DefaultModel:   cfg.Model,
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    cfg.ReadTimeout,
			BuildHeaders: func(req *http.Request, apiKey string) {
				req.Header.Set("api-key", apiKey)
				req.Header.Set("Content-Type", "application/json")
			},
		}, logger), nil

	case llm.VendorAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:         apiKey,
			BaseURL:        cfg.BaseURL,
			DefaultModel:   cfg.Model,
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    cfg.ReadTimeout,
			MaxTokens:      cfg.MaxTokens,
		}, logger), nil

	case llm.VendorGemini:
		return gemini.New(gemini.Config{
			APIKey:         apiKey,
			BaseURL:        cfg.BaseURL,
			DefaultModel:   cfg.Model,
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    cfg.ReadTimeout,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown vendor kind %q", cfg.Vendor)
	}
}

// BuildRouter 实现初始化协议并返回就绪的路由器。
// defaultProvider 指定全部探活失败时的单 Provider 兜底（空串取第一个可构造者）。
func BuildRouter(ctx context.Context, cfgs []llm.ProviderConfig, defaultProvider string, opts llm.RouterOptions) (*llm.Router, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	built := make(map[string]llm.Provider)
	builtCfgs := make(map[string]*llm.ProviderConfig)
	var order []string

	for i := range cfgs {
		cfg := cfgs[i]
		if !cfg.Enabled {
			continue
		}
		if cfg.ResolveAPIKey() == "" && cfg.Vendor != llm.VendorOllama {
			// 凭证不可解析：跳过但不让初始化失败。
			logger.Warn("provider skipped: no resolvable credential",
				zap.String("provider", cfg.Name), zap.String("api_key_env", cfg.APIKeyEnv))
			continue
		}
		p, err := NewProvider(cfg, logger)
		if err != nil {
			logger.Warn("provider construction failed", zap.String("provider", cfg.Name), zap.Error(err))
			continue
		}
		name := p.Name()
		built[name] = p
		builtCfgs[name] = &cfg
		order = append(order, name)
	}

	// 探活校验；通过者进入注册表。
	var validated []string
	for _, name := range order {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		st, err := built[name].HealthCheck(vctx)
		cancel()
		if err == nil && st != nil && st.Healthy {
			validated = append(validated, name)
			continue
		}
		logger.Warn("provider failed validation probe", zap.String("provider", name), zap.Error(err))
	}

	if len(validated) == 0 && len(order) > 0 {
		// 单 Provider 退化模式。
		fallback := defaultProvider
		if _, ok := built[fallback]; !ok {
			fallback = order[0]
		}
		logger.Warn("no provider passed validation, entering single-provider mode",
			zap.String("provider", fallback))
		validated = []string{fallback}
	}
	if len(validated) == 0 {
		return nil, fmt.Errorf("no llm providers could be initialized")
	}

	keep := make(map[string]llm.Provider, len(validated))
	keepCfgs := make(map[string]*llm.ProviderConfig, len(validated))
	for _, name := range validated {
		keep[name] = built[name]
		keepCfgs[name] = builtCfgs[name]
	}

	r := llm.NewRouter(keep, keepCfgs, validated, opts)
	r.SetEmergencyFactory(EmergencyProvider)
	return r, nil
}

// EmergencyProvider 为 AddEmergencyFallback 构造最小配置的适配器。
func EmergencyProvider(vendor llm.VendorKind, apiKey string) (llm.Provider, *llm.ProviderConfig, error) {
	cfg := llm.ProviderConfig{
		Vendor:  vendor,
		Name:    "emergency-" + string(vendor),
		APIKey:  apiKey,
		Enabled: true,
	}
	if d, ok := vendorDefaults[vendor]; ok {
		cfg.BaseURL = d.baseURL
		cfg.Model = d.model
	}
	p, err := NewProvider(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	return p, &cfg, nil
}
